// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"fmt"
)

// strategy is the routing policy of a socket type. All methods are
// called with the socket's mutex held. send and recv return ErrAgain
// when the socket has to wait.
type strategy interface {
	attachPipe(p *pipe)
	pipeTerminated(p *pipe)
	readActivated(p *pipe)
	writeActivated(p *pipe)
	hiccuped(p *pipe)

	send(msg Msg) error
	recv() (Msg, error)
	hasIn() bool
	hasOut() bool

	// setOption handles the options specific to the socket type.
	setOption(name string, value interface{}) (handled bool, err error)
}

func newStrategy(s *socketBase) (strategy, error) {
	switch s.typ {
	case Pair, Channel:
		return &pairStrategy{s: s}, nil
	case Pub:
		return newXPubStrategy(s, false), nil
	case XPub:
		return newXPubStrategy(s, true), nil
	case Sub:
		return newXSubStrategy(s, false), nil
	case XSub:
		return newXSubStrategy(s, true), nil
	case Req:
		return &reqStrategy{s: s}, nil
	case Rep:
		return &repStrategy{s: s}, nil
	case Dealer, Client:
		return &dealerStrategy{s: s}, nil
	case Router:
		return newRouterStrategy(s), nil
	case Push, Scatter:
		return &pushStrategy{s: s}, nil
	case Pull, Gather:
		return &pullStrategy{s: s}, nil
	case Stream:
		return newStreamStrategy(s), nil
	case Server, Peer:
		return newServerStrategy(s), nil
	case Radio:
		return newRadioStrategy(s), nil
	case Dish:
		return newDishStrategy(s), nil
	}
	return nil, fmt.Errorf("zsock: socket type %q: %w", s.typ, ErrNotSupported)
}

// noHooks provides the hooks most strategies ignore.
type noHooks struct{}

func (noHooks) hiccuped(*pipe) {}

func (noHooks) setOption(string, interface{}) (bool, error) { return false, nil }

// reidentifier is implemented by strategies routing by peer identity. The
// identity of a dialed peer is only known after its pipe was attached.
type reidentifier interface {
	reidentify(p *pipe)
}

// pipeSet keeps pipes in a slice whose first active elements are the
// pipes currently usable, cur being the next one to try.
type pipeSet struct {
	pipes  []*pipe
	active int
	cur    int
}

func (ps *pipeSet) index(p *pipe) int {
	for i, v := range ps.pipes {
		if v == p {
			return i
		}
	}
	return -1
}

func (ps *pipeSet) swap(i, j int) {
	ps.pipes[i], ps.pipes[j] = ps.pipes[j], ps.pipes[i]
}

// add appends p as an active pipe.
func (ps *pipeSet) add(p *pipe) {
	ps.pipes = append(ps.pipes, p)
	ps.swap(len(ps.pipes)-1, ps.active)
	ps.active++
}

// activate marks p as usable again.
func (ps *pipeSet) activate(p *pipe) {
	i := ps.index(p)
	if i < ps.active {
		return
	}
	ps.swap(i, ps.active)
	ps.active++
}

// deactivate moves the current pipe out of the active ones.
func (ps *pipeSet) deactivate() {
	ps.active--
	ps.swap(ps.cur, ps.active)
	if ps.cur == ps.active {
		ps.cur = 0
	}
}

func (ps *pipeSet) next() {
	ps.cur++
	if ps.cur >= ps.active {
		ps.cur = 0
	}
}

func (ps *pipeSet) remove(p *pipe) {
	i := ps.index(p)
	if i < 0 {
		return
	}
	if i < ps.active {
		ps.active--
		ps.swap(i, ps.active)
		i = ps.active
		if ps.cur == ps.active {
			ps.cur = 0
		}
	}
	last := len(ps.pipes) - 1
	ps.swap(i, last)
	ps.pipes[last] = nil
	ps.pipes = ps.pipes[:last]
}

// fairQueue reads whole messages round-robin from the pipes having some.
type fairQueue struct {
	pipeSet
}

// recvPipe returns the next message and the pipe it was read from.
func (fq *fairQueue) recvPipe() (Msg, *pipe, error) {
	for fq.active > 0 {
		p := fq.pipes[fq.cur]
		msg, ok := p.read()
		if !ok {
			fq.deactivate()
			continue
		}
		fq.next()
		if msg.props == nil {
			msg.props = p.props
		}
		return msg, p, nil
	}
	return Msg{}, nil, ErrAgain
}

func (fq *fairQueue) recv() (Msg, error) {
	msg, _, err := fq.recvPipe()
	return msg, err
}

func (fq *fairQueue) hasIn() bool {
	for fq.active > 0 {
		if fq.pipes[fq.cur].checkRead() {
			return true
		}
		fq.deactivate()
	}
	return false
}

// loadBalancer writes whole messages round-robin to the pipes that can
// take them.
type loadBalancer struct {
	pipeSet
}

// sendPipe writes msg to the next pipe and returns it.
func (lb *loadBalancer) sendPipe(msg Msg) (*pipe, error) {
	for lb.active > 0 {
		p := lb.pipes[lb.cur]
		if p.write(msg) {
			lb.next()
			return p, nil
		}
		lb.deactivate()
	}
	return nil, ErrAgain
}

func (lb *loadBalancer) send(msg Msg) error {
	_, err := lb.sendPipe(msg)
	return err
}

func (lb *loadBalancer) hasOut() bool {
	for lb.active > 0 {
		if lb.pipes[lb.cur].checkWrite() {
			return true
		}
		lb.deactivate()
	}
	return false
}
