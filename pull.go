// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// NewPull returns a new PULL ZeroMQ socket.
// The returned socket value is initially unbound.
func NewPull(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Pull, opts...)
}

// NewGather returns a new GATHER ZeroMQ socket.
// The returned socket value is initially unbound.
func NewGather(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Gather, opts...)
}

// pullStrategy fair-queues messages and never sends. GATHER sockets
// share it.
type pullStrategy struct {
	noHooks
	s  *socketBase
	fq fairQueue
}

func (pull *pullStrategy) attachPipe(p *pipe)     { pull.fq.add(p) }
func (pull *pullStrategy) pipeTerminated(p *pipe) { pull.fq.remove(p) }
func (pull *pullStrategy) readActivated(p *pipe)  { pull.fq.activate(p) }
func (pull *pullStrategy) writeActivated(*pipe)   {}

func (pull *pullStrategy) send(Msg) error     { return ErrNotSupported }
func (pull *pullStrategy) recv() (Msg, error) { return pull.fq.recv() }
func (pull *pullStrategy) hasIn() bool        { return pull.fq.hasIn() }
func (pull *pullStrategy) hasOut() bool       { return false }
