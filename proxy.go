// Copyright 2020 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Proxy connects a frontend socket to a backend socket.
type Proxy struct {
	ctx    context.Context // life-line of proxy
	cancel context.CancelFunc
	grp    *errgroup.Group
	log    *Logger

	mu     sync.Mutex
	paused bool
	resume chan struct{}

	front, back atomic.Uint64 // messages forwarded to each side
}

// ProxyStats counts the messages forwarded by a Proxy.
type ProxyStats struct {
	Frontend uint64 // messages sent to the frontend
	Backend  uint64 // messages sent to the backend
}

// NewProxy creates a new Proxy value.
// It proxies messages received on the frontend to the backend (and vice versa)
// If capture is not nil, messages proxied are also sent on that socket.
//
// Conceptually, data flows from frontend to backend. Depending on the
// socket types, replies may flow in the opposite direction.
// The direction is conceptual only; the proxy is fully symmetric and
// there is no technical difference between frontend and backend.
//
// Before creating a Proxy, users must set any socket options,
// and Listen or Dial both frontend and backend sockets.
func NewProxy(ctx context.Context, front, back, capture Socket) *Proxy {
	ctx, cancel := context.WithCancel(ctx)
	grp, ctx := errgroup.WithContext(ctx)
	proxy := Proxy{
		ctx:    ctx,
		cancel: cancel,
		grp:    grp,
		log:    DevNullLogger,
		resume: make(chan struct{}),
	}
	if b, ok := front.(interface{ base() *socketBase }); ok {
		proxy.log = b.base().log.With("proxy", "frontend")
	}
	proxy.init(front, back, capture)
	return &proxy
}

// Pause stops forwarding messages until Resume is called.
func (p *Proxy) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

// Resume restarts forwarding after Pause.
func (p *Proxy) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
}

// Stats returns the number of messages forwarded so far.
func (p *Proxy) Stats() ProxyStats {
	return ProxyStats{
		Frontend: p.front.Load(),
		Backend:  p.back.Load(),
	}
}

// Kill stops the proxy. Run returns nil.
func (p *Proxy) Kill() { p.cancel() }

// Run runs the proxy loop.
func (p *Proxy) Run() error {
	err := p.grp.Wait()
	if errors.Is(err, ErrCanceled) {
		return nil
	}
	return err
}

// gate blocks while the proxy is paused.
func (p *Proxy) gate() error {
	p.mu.Lock()
	paused, resume := p.paused, p.resume
	p.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-resume:
		return nil
	case <-p.ctx.Done():
		return ErrCanceled
	}
}

func (p *Proxy) init(front, back, capture Socket) {
	canRecv := func(sck Socket) bool {
		switch sck.Type() {
		case Push, Pub, Scatter, Radio:
			return false
		default:
			return true
		}
	}

	canSend := func(sck Socket) bool {
		switch sck.Type() {
		case Pull, Sub, Gather, Dish:
			return false
		default:
			return true
		}
	}

	type Pipe struct {
		name  string
		dst   Socket
		src   Socket
		count *atomic.Uint64
	}

	pipes := []Pipe{
		{
			name:  "backend",
			dst:   back,
			src:   front,
			count: &p.back,
		},
		{
			name:  "frontend",
			dst:   front,
			src:   back,
			count: &p.front,
		},
	}

	for i := range pipes {
		pipe := pipes[i]
		if pipe.src == nil || !canRecv(pipe.src) {
			continue
		}
		p.grp.Go(func() error {
			canSend := pipe.dst != nil && canSend(pipe.dst)
			for {
				msg, err := pipe.src.RecvContext(p.ctx)
				if err != nil {
					return err
				}
				if err := p.gate(); err != nil {
					return err
				}
				if canSend {
					if err := pipe.dst.SendContext(p.ctx, msg); err != nil {
						if errors.Is(err, ErrCanceled) {
							return err
						}
						p.log.Warn("could not forward to %s: %+v", pipe.name, err)
						continue
					}
					pipe.count.Add(1)
				}
				if capture != nil {
					_ = capture.SendFlags(msg, DontWait)
				}
			}
		})
	}
}
