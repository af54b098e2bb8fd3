// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"fmt"
	"sort"
)

// NewSub returns a new SUB ZeroMQ socket.
// The returned socket value is initially unbound.
func NewSub(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Sub, opts...)
}

// NewXSub returns a new XSUB ZeroMQ socket.
// The returned socket value is initially unbound.
func NewXSub(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, XSub, opts...)
}

// Topics is an interface that wraps the basic Topics method.
type Topics interface {
	// Topics returns the sorted list of topics a socket is subscribed to.
	Topics() []string
}

// xsubStrategy fair-queues the messages matching its subscriptions, and
// sends its subscriptions to every peer, again after a reconnection.
//
// SUB sockets subscribe through options. XSUB sockets subscribe by
// sending subscription messages, and may send other messages upstream.
type xsubStrategy struct {
	noHooks
	s    *socketBase
	x    bool
	fq   fairQueue
	subs *trie
	next *Msg // matching message read ahead by hasIn
}

func newXSubStrategy(s *socketBase, x bool) *xsubStrategy {
	return &xsubStrategy{s: s, x: x, subs: newTrie()}
}

func (xs *xsubStrategy) attachPipe(p *pipe) {
	xs.fq.add(p)
	xs.sendSubscriptions(p)
}

func (xs *xsubStrategy) pipeTerminated(p *pipe) { xs.fq.remove(p) }
func (xs *xsubStrategy) readActivated(p *pipe)  { xs.fq.activate(p) }
func (xs *xsubStrategy) writeActivated(*pipe)   {}
func (xs *xsubStrategy) hiccuped(p *pipe)       { xs.sendSubscriptions(p) }

func (xs *xsubStrategy) sendSubscriptions(p *pipe) {
	xs.subs.walk(func(topic []byte, _ int) {
		p.write(NewMsg(append([]byte{1}, topic...)))
	})
}

// subscribe updates the subscriptions and tells the peers when it
// changed the set of topics.
func (xs *xsubStrategy) subscribe(topic []byte, on bool) {
	var changed bool
	if on {
		changed = xs.subs.add(topic)
	} else {
		changed = xs.subs.rm(topic)
	}
	if !changed {
		return
	}
	flag := byte(0)
	if on {
		flag = 1
	}
	msg := NewMsg(append([]byte{flag}, topic...))
	for _, p := range xs.fq.pipes {
		p.write(msg)
	}
}

func (xs *xsubStrategy) setOption(name string, value interface{}) (bool, error) {
	switch name {
	case OptionSubscribe, OptionUnsubscribe:
		topic, err := toBytes(value)
		if err != nil {
			return true, fmt.Errorf("zsock: invalid %s value: %w", name, err)
		}
		xs.subscribe(topic, name == OptionSubscribe)
		return true, nil
	}
	return false, nil
}

func (xs *xsubStrategy) send(msg Msg) error {
	if !xs.x {
		return ErrNotSupported
	}
	if subscribe, ok := isSubscription(msg); ok {
		xs.subscribe(msg.Frames[0][1:], subscribe)
		return nil
	}
	for _, p := range xs.fq.pipes {
		p.write(msg)
	}
	return nil
}

func (xs *xsubStrategy) recv() (Msg, error) {
	if msg := xs.next; msg != nil {
		xs.next = nil
		return *msg, nil
	}
	for {
		msg, err := xs.fq.recv()
		if err != nil {
			return msg, err
		}
		if xs.subs.match(msg.Frames[0]) {
			return msg, nil
		}
	}
}

func (xs *xsubStrategy) hasIn() bool {
	if xs.next != nil {
		return true
	}
	msg, err := xs.recv()
	if err != nil {
		return false
	}
	xs.next = &msg
	return true
}

func (xs *xsubStrategy) hasOut() bool { return xs.x }

func (xs *xsubStrategy) topics() []string {
	var topics []string
	xs.subs.walk(func(topic []byte, _ int) {
		topics = append(topics, string(topic))
	})
	sort.Strings(topics)
	return topics
}

// Topics returns the sorted list of topics a SUB or XSUB socket is
// subscribed to.
func (s *socketBase) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if xs, ok := s.strategy.(*xsubStrategy); ok {
		return xs.topics()
	}
	return nil
}

var _ Topics = (*socketBase)(nil)
