// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// SocketType is a ZeroMQ socket type.
type SocketType string

const (
	Pair   SocketType = "PAIR"   // a ZMQ_PAIR socket
	Pub    SocketType = "PUB"    // a ZMQ_PUB socket
	Sub    SocketType = "SUB"    // a ZMQ_SUB socket
	Req    SocketType = "REQ"    // a ZMQ_REQ socket
	Rep    SocketType = "REP"    // a ZMQ_REP socket
	Dealer SocketType = "DEALER" // a ZMQ_DEALER socket
	Router SocketType = "ROUTER" // a ZMQ_ROUTER socket
	Pull   SocketType = "PULL"   // a ZMQ_PULL socket
	Push   SocketType = "PUSH"   // a ZMQ_PUSH socket
	XPub   SocketType = "XPUB"   // a ZMQ_XPUB socket
	XSub   SocketType = "XSUB"   // a ZMQ_XSUB socket
	Stream SocketType = "STREAM" // a ZMQ_STREAM socket

	Server  SocketType = "SERVER"  // a ZMQ_SERVER socket
	Client  SocketType = "CLIENT"  // a ZMQ_CLIENT socket
	Radio   SocketType = "RADIO"   // a ZMQ_RADIO socket
	Dish    SocketType = "DISH"    // a ZMQ_DISH socket
	Gather  SocketType = "GATHER"  // a ZMQ_GATHER socket
	Scatter SocketType = "SCATTER" // a ZMQ_SCATTER socket
	Peer    SocketType = "PEER"    // a ZMQ_PEER socket
	Channel SocketType = "CHANNEL" // a ZMQ_CHANNEL socket
)

// IsCompatible checks whether two sockets are compatible and thus
// can be connected together.
// See https://rfc.zeromq.org/spec:23/ZMTP/ for more informations.
func (sck SocketType) IsCompatible(peer SocketType) bool {
	switch sck {
	case Pair:
		return peer == Pair
	case Pub, XPub:
		return peer == Sub || peer == XSub
	case Sub, XSub:
		return peer == Pub || peer == XPub
	case Req:
		return peer == Rep || peer == Router
	case Rep:
		return peer == Req || peer == Dealer
	case Dealer:
		return peer == Rep || peer == Dealer || peer == Router
	case Router:
		return peer == Req || peer == Dealer || peer == Router
	case Pull:
		return peer == Push
	case Push:
		return peer == Pull
	case Server:
		return peer == Client
	case Client:
		return peer == Server
	case Radio:
		return peer == Dish
	case Dish:
		return peer == Radio
	case Gather:
		return peer == Scatter
	case Scatter:
		return peer == Gather
	case Peer:
		return peer == Peer
	case Channel:
		return peer == Channel
	}
	return false
}

// singlePart reports whether the socket type rejects multipart messages.
func (sck SocketType) singlePart() bool {
	switch sck {
	case Server, Client, Radio, Dish, Gather, Scatter, Peer, Channel:
		return true
	}
	return false
}

// SocketIdentity is the ZMTP metadata socket identity.
// See:
//  https://rfc.zeromq.org/spec:23/ZMTP/.
type SocketIdentity []byte

func (id SocketIdentity) String() string {
	n := len(id)
	if n > 255 { // ZMTP identities are: 0*255OCTET
		n = 255
	}
	return string(id[:n])
}
