// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"context"
	"fmt"
	"time"
)

// PollEvent is a set of socket readiness conditions.
type PollEvent int

const (
	PollIn  PollEvent = 1 << iota // a message can be received without blocking
	PollOut                       // a message can be sent without blocking
)

// Polled is a socket found ready by Poll.
type Polled struct {
	Socket Socket
	Events PollEvent
}

type pollItem struct {
	sock   Socket
	base   *socketBase
	events PollEvent
}

// Poller waits for a set of sockets to become ready.
// A Poller is not safe for concurrent use.
type Poller struct {
	items []pollItem
}

// NewPoller returns an empty poller.
func NewPoller() *Poller {
	return &Poller{}
}

// Add registers sock for the given events. Adding a socket again
// replaces its events.
func (p *Poller) Add(sock Socket, events PollEvent) error {
	b, ok := sock.(interface{ base() *socketBase })
	if !ok {
		return fmt.Errorf("zsock: cannot poll %T: %w", sock, ErrNotSupported)
	}
	for i := range p.items {
		if p.items[i].sock == sock {
			p.items[i].events = events
			return nil
		}
	}
	p.items = append(p.items, pollItem{sock: sock, base: b.base(), events: events})
	return nil
}

// Remove unregisters sock.
func (p *Poller) Remove(sock Socket) error {
	for i := range p.items {
		if p.items[i].sock == sock {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("zsock: socket not registered with poller: %w", ErrInvalidEndpoint)
}

// Poll waits until at least one socket is ready, the timeout expires or
// ctx is done. A negative timeout waits forever, a zero timeout checks
// the sockets once. Poll returns ErrCanceled when ctx is done first.
func (p *Poller) Poll(ctx context.Context, timeout time.Duration) ([]Polled, error) {
	if len(p.items) == 0 {
		return nil, fmt.Errorf("zsock: nothing to poll: %w", ErrInvalidEndpoint)
	}

	wake := make(chan struct{}, 1)
	for _, it := range p.items {
		it.base.sig.watch(wake)
		defer it.base.sig.unwatch(wake)
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		deadline = tm.C
	}
	term := p.items[0].base.zctx.term

	for {
		var ready []Polled
		for _, it := range p.items {
			ev, err := it.base.pollEvents()
			if err != nil {
				return nil, err
			}
			if ev &= it.events; ev != 0 {
				ready = append(ready, Polled{Socket: it.sock, Events: ev})
			}
		}
		if len(ready) > 0 || timeout == 0 {
			return ready, nil
		}

		select {
		case <-wake:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ErrCanceled
		case <-term:
			return nil, ErrTerminated
		}
	}
}

func (s *socketBase) pollEvents() (PollEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.events(), nil
}
