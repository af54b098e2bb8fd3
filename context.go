// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"sync"
	"time"
)

const (
	defaultIOThreads  = 1
	defaultMaxSockets = 1023
)

// ContextOption configures a Context.
type ContextOption func(ctx *Context)

// WithIOThreads sets the number of I/O threads running the connections
// of the context's sockets.
func WithIOThreads(n int) ContextOption {
	return func(ctx *Context) {
		if n > 0 {
			ctx.nthreads = n
		}
	}
}

// WithMaxSockets bounds the number of sockets open at once.
func WithMaxSockets(n int) ContextOption {
	return func(ctx *Context) {
		if n > 0 {
			ctx.maxSockets = n
		}
	}
}

// WithContextLogger sets the logger inherited by the context's sockets.
func WithContextLogger(log *Logger) ContextOption {
	return func(ctx *Context) {
		ctx.log = log
	}
}

// WithBlockyTerm selects the default linger of new sockets: infinite
// when blocky (the default), zero otherwise.
func WithBlockyTerm(blocky bool) ContextOption {
	return func(ctx *Context) {
		ctx.blocky = blocky
	}
}

// Context owns a set of sockets and the I/O threads running their
// connections. Sockets of one context can talk over inproc endpoints.
type Context struct {
	log        *Logger
	nthreads   int
	maxSockets int
	blocky     bool

	mu          sync.Mutex
	cond        *sync.Cond
	ios         []*ioThread
	next        int
	sockets     map[*socketBase]struct{}
	terminating bool
	term        chan struct{}

	inproc  map[string]*inprocBinding
	pending map[string][]*inprocPending
}

// NewContext returns a new context with its I/O threads started.
func NewContext(opts ...ContextOption) *Context {
	ctx := &Context{
		log:        DevNullLogger,
		nthreads:   defaultIOThreads,
		maxSockets: defaultMaxSockets,
		blocky:     true,
		sockets:    make(map[*socketBase]struct{}),
		term:       make(chan struct{}),
		inproc:     make(map[string]*inprocBinding),
		pending:    make(map[string][]*inprocPending),
	}
	ctx.cond = sync.NewCond(&ctx.mu)
	for _, opt := range opts {
		opt(ctx)
	}
	ctx.ios = make([]*ioThread, ctx.nthreads)
	for i := range ctx.ios {
		ctx.ios[i] = newIOThread(i, ctx.log.With("io", i))
	}
	return ctx
}

func (ctx *Context) defaultLinger() time.Duration {
	if ctx.blocky {
		return -1
	}
	return 0
}

// register adds s to the context. It fails once the context is
// terminating or when too many sockets are open.
func (ctx *Context) register(s *socketBase) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.terminating {
		return ErrTerminated
	}
	if len(ctx.sockets) >= ctx.maxSockets {
		return ErrTooManySockets
	}
	ctx.sockets[s] = struct{}{}
	return nil
}

// reaped removes a closed socket whose sessions are all done.
func (ctx *Context) reaped(s *socketBase) {
	ctx.mu.Lock()
	delete(ctx.sockets, s)
	ctx.cond.Broadcast()
	ctx.mu.Unlock()
}

// chooseIO assigns an I/O thread to a new session, round-robin.
func (ctx *Context) chooseIO() *ioThread {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	io := ctx.ios[ctx.next%len(ctx.ios)]
	ctx.next++
	return io
}

func (ctx *Context) terminated() bool {
	select {
	case <-ctx.term:
		return true
	default:
		return false
	}
}

// Shutdown makes every blocking operation of the context's sockets return
// ErrTerminated, without waiting for the sockets to close.
func (ctx *Context) Shutdown() {
	ctx.mu.Lock()
	ctx.shutdown()
	ctx.mu.Unlock()
}

func (ctx *Context) shutdown() {
	if !ctx.terminating {
		ctx.terminating = true
		close(ctx.term)
	}
}

// Term shuts the context down and waits until every socket is closed and
// has flushed its pending messages, as per its linger. The I/O threads
// are then stopped.
func (ctx *Context) Term() error {
	ctx.mu.Lock()
	ctx.shutdown()
	for len(ctx.sockets) > 0 {
		ctx.cond.Wait()
	}
	ios := ctx.ios
	ctx.ios = nil
	ctx.mu.Unlock()

	for _, io := range ios {
		io.stop()
	}
	return nil
}
