// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmtp

// Security mechanism names as announced in the greeting.
const (
	Null  = "NULL"
	Plain = "PLAIN"
	Curve = "CURVE"
)

// Status is the state of a mechanism's handshake.
type Status int

const (
	Handshaking Status = iota
	Ready
	Failed
)

func (st Status) String() string {
	switch st {
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Config is the per-connection input of a mechanism.
type Config struct {
	// Metadata is announced to the peer in READY/INITIATE.
	Metadata Metadata

	// ZAP reports whether a ZAP handler is reachable.
	ZAP bool
	// ZAPDomain is the authentication domain sent in ZAP requests.
	ZAPDomain string

	// Address is the peer's network address, for ZAP requests.
	Address string
}

// Mechanism is a per-connection security handshake state machine.
//
// The engine alternates between draining NextHandshakeCommand until it
// returns ErrAgain and feeding received commands to
// ProcessHandshakeCommand, until Status leaves Handshaking.
// A mechanism reporting an error may still have an ERROR command queued;
// the engine drains it before closing the connection.
type Mechanism interface {
	// NextHandshakeCommand returns the next command to send, or ErrAgain.
	NextHandshakeCommand() (Cmd, error)

	// ProcessHandshakeCommand consumes a command received from the peer.
	ProcessHandshakeCommand(cmd Cmd) error

	// Status returns the handshake state.
	Status() Status

	// ZAPRequest returns the authentication request the mechanism waits
	// on, once. It returns nil when no request is pending.
	ZAPRequest() *ZAPRequest

	// ProcessZAPReply feeds the verdict of the ZAP handler.
	ProcessZAPReply(rep ZAPReply) error

	// Encode and Decode transform frames once the handshake is done.
	Encode(f Frame) (Frame, error)
	Decode(f Frame) (Frame, error)

	// PeerMetadata returns the properties announced by the peer.
	PeerMetadata() Metadata

	// UserID returns the user id assigned by the ZAP handler.
	UserID() string
}

// Security creates mechanism instances for new connections.
type Security interface {
	// Type returns the mechanism name announced in the greeting.
	Type() string

	// AsServer reports the as-server greeting flag.
	AsServer() bool

	// NewMechanism returns a fresh handshake state machine.
	NewMechanism(cfg Config) (Mechanism, error)
}
