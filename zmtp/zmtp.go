// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zmtp implements the wire level pieces of the ZeroMQ Message
// Transport Protocol as defined in https://rfc.zeromq.org/spec:23/ZMTP/
// and https://rfc.zeromq.org/spec:37/ZMTP/:
// greeting, frame codec, commands, metadata and the security mechanism
// contract used during the handshake.
package zmtp

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrGreeting  = errors.New("zmtp: invalid greeting received")
	ErrBadFrame  = errors.New("zmtp: invalid frame")
	ErrBadCmd    = errors.New("zmtp: invalid command")
	ErrMsgSize   = errors.New("zmtp: message exceeds maximum size")
	ErrOverflow  = errors.New("zmtp: overflow")
	ErrAgain     = errors.New("zmtp: no command available")
	ErrMechanism = errors.New("zmtp: security mechanism mismatch")

	errEmptyMDKey = errors.New("zmtp: empty metadata key")
	errDupMDKey   = errors.New("zmtp: duplicate metadata key")
)

const (
	MajorVersion uint8 = 3
	MinorVersion uint8 = 1
)

const (
	maxUint   = ^uint(0)
	maxInt    = int(maxUint >> 1)
	maxUint64 = ^uint64(0)
	maxInt64  = int64(maxUint64 >> 1)
)

// ProtocolError reports a malformed or unexpected peer behaviour during
// or after the handshake.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "zmtp: protocol error: " + e.Reason
}

// Protocolf returns a ProtocolError with a formatted reason.
func Protocolf(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError reports a failed authentication, either locally decided by a
// ZAP handler or announced by the peer with an ERROR command.
type AuthError struct {
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("zmtp: authentication failed (status=%d): %s", e.Status, e.Reason)
}
