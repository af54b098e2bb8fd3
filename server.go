// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"math/rand"
)

// NewServer returns a new SERVER ZeroMQ socket.
// The returned socket value is initially unbound.
//
// Received messages carry the RoutingID of their peer; replies are
// routed with the RoutingID set on the sent message.
func NewServer(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Server, opts...)
}

// NewPeer returns a new PEER ZeroMQ socket.
// The returned socket value is initially unbound.
//
// PEER sockets route like SERVER sockets, and learn the routing id of a
// peer they connect to from ConnectPeer.
func NewPeer(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Peer, opts...)
}

// serverStrategy routes messages with 32-bit routing ids assigned to the
// peers as they attach.
type serverStrategy struct {
	noHooks
	s    *socketBase
	fq   fairQueue
	out  map[uint32]*pipe
	next uint32
}

func newServerStrategy(s *socketBase) *serverStrategy {
	return &serverStrategy{
		s:    s,
		out:  make(map[uint32]*pipe),
		next: rand.Uint32(),
	}
}

func (srv *serverStrategy) attachPipe(p *pipe) {
	for {
		srv.next++
		if _, dup := srv.out[srv.next]; srv.next != 0 && !dup {
			break
		}
	}
	p.routingID = srv.next
	srv.out[p.routingID] = p
	srv.fq.add(p)
}

func (srv *serverStrategy) pipeTerminated(p *pipe) {
	srv.fq.remove(p)
	if cur, ok := srv.out[p.routingID]; ok && cur == p {
		delete(srv.out, p.routingID)
	}
}

func (srv *serverStrategy) readActivated(p *pipe) { srv.fq.activate(p) }
func (srv *serverStrategy) writeActivated(*pipe)  {}

func (srv *serverStrategy) recv() (Msg, error) {
	msg, p, err := srv.fq.recvPipe()
	if err != nil {
		return msg, err
	}
	msg.RoutingID = p.routingID
	return msg, nil
}

func (srv *serverStrategy) send(msg Msg) error {
	p, ok := srv.out[msg.RoutingID]
	if !ok {
		return ErrNoPeer
	}
	msg.RoutingID = 0
	if !p.write(msg) {
		if !p.alive() {
			return ErrNoPeer
		}
		return ErrAgain
	}
	return nil
}

func (srv *serverStrategy) hasIn() bool  { return srv.fq.hasIn() }
func (srv *serverStrategy) hasOut() bool { return true }
