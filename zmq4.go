// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zsock implements the ØMQ sockets and protocol for ZeroMQ-4,
// in pure Go.
//
// Sockets belong to a Context, which runs their connections on a small
// pool of I/O goroutines and terminates them as a whole. Every ZeroMQ
// socket type is supported, over the tcp, ipc and inproc transports,
// with the NULL, PLAIN and CURVE security mechanisms.
//
// For more informations, see http://zeromq.org.
package zsock

import (
	"context"
	"net"
)

// Socket represents a ZeroMQ socket.
// Sockets are safe for concurrent use.
type Socket interface {
	// Close closes the open Socket.
	// Pending outbound messages are flushed as per the linger option.
	Close() error

	// Send puts the message on the outbound send queue.
	// Send blocks until the message can be queued or the send timeout expires.
	Send(msg Msg) error

	// SendFlags is Send with flags, e.g. DontWait.
	SendFlags(msg Msg, flags Flag) error

	// SendContext is Send, aborted with ErrCanceled when ctx is done.
	SendContext(ctx context.Context, msg Msg) error

	// Recv receives a complete message.
	Recv() (Msg, error)

	// RecvFlags is Recv with flags, e.g. DontWait.
	RecvFlags(flags Flag) (Msg, error)

	// RecvContext is Recv, aborted with ErrCanceled when ctx is done.
	RecvContext(ctx context.Context) (Msg, error)

	// Listen connects a local endpoint to the Socket.
	Listen(ep string) error

	// Dial connects a remote endpoint to the Socket.
	Dial(ep string) error

	// ConnectPeer dials ep and returns the routing id of the peer.
	// Only PEER sockets support it.
	ConnectPeer(ep string) (uint32, error)

	// Unbind stops listening on ep.
	Unbind(ep string) error

	// Disconnect closes the connection to ep.
	Disconnect(ep string) error

	// Type returns the type of this Socket (PUB, SUB, ...)
	Type() SocketType

	// Addr returns the listener's address.
	// Addr returns nil if the socket isn't a listener.
	Addr() net.Addr

	// GetOption is used to retrieve an option for a socket.
	GetOption(name string) (interface{}, error)

	// SetOption is used to set an option for a socket.
	SetOption(name string, value interface{}) error

	// Monitor publishes the socket events matching events on an inproc
	// endpoint.
	Monitor(ep string, events EventType) error
}

func newSocket(zctx *Context, typ SocketType, opts ...Option) (Socket, error) {
	s, err := newSocketBase(zctx, typ, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSocket returns a new socket of the given type.
func (ctx *Context) NewSocket(typ SocketType, opts ...Option) (Socket, error) {
	return newSocket(ctx, typ, opts...)
}
