// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// NewDealer returns a new DEALER ZeroMQ socket.
// The returned socket value is initially unbound.
func NewDealer(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Dealer, opts...)
}

// NewClient returns a new CLIENT ZeroMQ socket.
// The returned socket value is initially unbound.
func NewClient(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Client, opts...)
}

// dealerStrategy load-balances outgoing messages and fair-queues incoming
// ones. CLIENT sockets share it.
type dealerStrategy struct {
	noHooks
	s  *socketBase
	lb loadBalancer
	fq fairQueue
}

func (d *dealerStrategy) attachPipe(p *pipe) {
	d.lb.add(p)
	d.fq.add(p)
}

func (d *dealerStrategy) pipeTerminated(p *pipe) {
	d.lb.remove(p)
	d.fq.remove(p)
}

func (d *dealerStrategy) readActivated(p *pipe)  { d.fq.activate(p) }
func (d *dealerStrategy) writeActivated(p *pipe) { d.lb.activate(p) }

func (d *dealerStrategy) send(msg Msg) error { return d.lb.send(msg) }
func (d *dealerStrategy) recv() (Msg, error) { return d.fq.recv() }
func (d *dealerStrategy) hasIn() bool        { return d.fq.hasIn() }
func (d *dealerStrategy) hasOut() bool       { return d.lb.hasOut() }
