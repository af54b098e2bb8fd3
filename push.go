// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// NewPush returns a new PUSH ZeroMQ socket.
// The returned socket value is initially unbound.
func NewPush(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Push, opts...)
}

// NewScatter returns a new SCATTER ZeroMQ socket.
// The returned socket value is initially unbound.
func NewScatter(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Scatter, opts...)
}

// pushStrategy load-balances messages and never receives. SCATTER
// sockets share it.
type pushStrategy struct {
	noHooks
	s  *socketBase
	lb loadBalancer
}

func (push *pushStrategy) attachPipe(p *pipe)     { push.lb.add(p) }
func (push *pushStrategy) pipeTerminated(p *pipe) { push.lb.remove(p) }
func (push *pushStrategy) readActivated(p *pipe)  { p.drain() }
func (push *pushStrategy) writeActivated(p *pipe) { push.lb.activate(p) }

func (push *pushStrategy) send(msg Msg) error { return push.lb.send(msg) }
func (push *pushStrategy) recv() (Msg, error) { return Msg{}, ErrNotSupported }
func (push *pushStrategy) hasIn() bool        { return false }
func (push *pushStrategy) hasOut() bool       { return push.lb.hasOut() }
