// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"bytes"
	"encoding/binary"
	"math/rand"
)

// NewRouter returns a new ROUTER ZeroMQ socket.
// The returned socket value is initially unbound.
func NewRouter(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Router, opts...)
}

// routingIDs hands out the identities of anonymous peers: a zero byte
// followed by a 32-bit big-endian counter.
type routingIDs struct {
	next uint32
}

func newRoutingIDs() routingIDs {
	// a random start keeps ids of a restarted socket from matching stale ones
	return routingIDs{next: rand.Uint32()}
}

func (ids *routingIDs) generate() []byte {
	ids.next++
	id := make([]byte, 5)
	binary.BigEndian.PutUint32(id[1:], ids.next)
	return id
}

// routerStrategy prefixes incoming messages with the identity of their
// peer, and routes outgoing messages with the identity they start with.
type routerStrategy struct {
	noHooks
	s   *socketBase
	fq  fairQueue
	out map[string]*pipe
	ids routingIDs
}

func newRouterStrategy(s *socketBase) *routerStrategy {
	return &routerStrategy{
		s:   s,
		out: make(map[string]*pipe),
		ids: newRoutingIDs(),
	}
}

func (r *routerStrategy) attachPipe(p *pipe) {
	id := p.peerID
	if len(id) == 0 {
		id = r.ids.generate()
	}
	if r.claim(p, id) {
		r.fq.add(p)
	}
}

// reidentify moves a dialed pipe to the identity its peer announced.
func (r *routerStrategy) reidentify(p *pipe) {
	id := p.peerID
	if len(id) == 0 || bytes.Equal(id, p.id) {
		return
	}
	if cur, ok := r.out[string(p.id)]; ok && cur == p {
		delete(r.out, string(p.id))
	}
	r.claim(p, id)
}

// claim routes id to p. A peer already using id is replaced when
// ROUTER_HANDOVER is set, otherwise p is dropped.
func (r *routerStrategy) claim(p *pipe, id []byte) bool {
	if old, dup := r.out[string(id)]; dup && old != p {
		if !r.s.opts.routerHandover {
			r.s.log.Debug("rejecting peer with duplicate identity %q", id)
			r.s.terminatePipe(p, false)
			return false
		}
		delete(r.out, string(id))
		old.id = nil
		r.s.terminatePipe(old, false)
	}
	p.id = id
	r.out[string(id)] = p
	return true
}

func (r *routerStrategy) pipeTerminated(p *pipe) {
	r.fq.remove(p)
	if cur, ok := r.out[string(p.id)]; ok && cur == p {
		delete(r.out, string(p.id))
	}
}

func (r *routerStrategy) readActivated(p *pipe) { r.fq.activate(p) }
func (r *routerStrategy) writeActivated(*pipe)  {}

func (r *routerStrategy) recv() (Msg, error) {
	msg, p, err := r.fq.recvPipe()
	if err != nil {
		return msg, err
	}
	frames := make([][]byte, 0, len(msg.Frames)+1)
	frames = append(frames, p.id)
	msg.Frames = append(frames, msg.Frames...)
	return msg, nil
}

func (r *routerStrategy) send(msg Msg) error {
	mandatory := r.s.opts.routerMandatory
	p, ok := r.out[string(msg.Frames[0])]
	if !ok {
		if mandatory {
			return ErrHostUnreachable
		}
		return nil
	}
	if len(msg.Frames) == 1 {
		return nil
	}
	if p.write(Msg{Frames: msg.Frames[1:]}) {
		return nil
	}
	switch {
	case !mandatory:
		return nil
	case !p.alive():
		return ErrHostUnreachable
	}
	return ErrAgain
}

func (r *routerStrategy) hasIn() bool { return r.fq.hasIn() }

func (r *routerStrategy) hasOut() bool {
	if !r.s.opts.routerMandatory {
		return true
	}
	for _, p := range r.out {
		if p.checkWrite() {
			return true
		}
	}
	return false
}
