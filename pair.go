// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// NewPair returns a new PAIR ZeroMQ socket.
// The returned socket value is initially unbound.
func NewPair(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Pair, opts...)
}

// NewChannel returns a new CHANNEL ZeroMQ socket.
// The returned socket value is initially unbound.
func NewChannel(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Channel, opts...)
}

// pairStrategy talks to a single peer. Other peers are disconnected as
// soon as they show up.
type pairStrategy struct {
	noHooks
	s *socketBase
	p *pipe
}

func (ps *pairStrategy) attachPipe(p *pipe) {
	if ps.p != nil {
		ps.s.log.Debug("rejecting second peer on %s", p.endpoint)
		ps.s.terminatePipe(p, false)
		return
	}
	ps.p = p
}

func (ps *pairStrategy) pipeTerminated(p *pipe) {
	if ps.p == p {
		ps.p = nil
	}
}

func (ps *pairStrategy) readActivated(*pipe)  {}
func (ps *pairStrategy) writeActivated(*pipe) {}

func (ps *pairStrategy) send(msg Msg) error {
	if ps.p == nil || !ps.p.write(msg) {
		return ErrAgain
	}
	return nil
}

func (ps *pairStrategy) recv() (Msg, error) {
	if ps.p == nil {
		return Msg{}, ErrAgain
	}
	msg, ok := ps.p.read()
	if !ok {
		return Msg{}, ErrAgain
	}
	if msg.props == nil {
		msg.props = ps.p.props
	}
	return msg, nil
}

func (ps *pairStrategy) hasIn() bool  { return ps.p != nil && ps.p.checkRead() }
func (ps *pairStrategy) hasOut() bool { return ps.p != nil && ps.p.checkWrite() }
