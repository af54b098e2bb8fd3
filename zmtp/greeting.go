// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmtp

import (
	"bytes"

	"github.com/pkg/errors"
)

const (
	sigHeader = 0xFF
	sigFooter = 0x7F

	// GreetingSize is the size of a ZMTP 3.x greeting.
	GreetingSize = 64

	// SignatureSize is the size of the leading signature; the major
	// version octet follows it.
	SignatureSize = 10

	mechanismSize = 20
)

// Greeting is the fixed preamble each peer sends when a connection opens.
type Greeting struct {
	Major     uint8
	Minor     uint8
	Mechanism string
	AsServer  bool
}

// NewGreeting returns the greeting announcing this implementation's
// protocol version for the given mechanism.
func NewGreeting(mechanism string, asServer bool) Greeting {
	return Greeting{
		Major:     MajorVersion,
		Minor:     MinorVersion,
		Mechanism: mechanism,
		AsServer:  asServer,
	}
}

// Marshal returns the 64 bytes wire form of the greeting.
func (g Greeting) Marshal() ([]byte, error) {
	if len(g.Mechanism) > mechanismSize {
		return nil, errors.Wrapf(ErrGreeting, "mechanism name %q too long", g.Mechanism)
	}
	buf := make([]byte, GreetingSize)
	buf[0] = sigHeader
	// octets 1..8 are padding
	buf[9] = sigFooter
	buf[10] = g.Major
	buf[11] = g.Minor
	copy(buf[12:12+mechanismSize], g.Mechanism)
	if g.AsServer {
		buf[32] = 1
	}
	// octets 33..63 are filler
	return buf, nil
}

// CheckSignature validates the part of a greeting received so far, so a
// non-ZMTP peer is rejected as soon as possible.
func CheckSignature(p []byte) error {
	if len(p) > 0 && p[0] != sigHeader {
		return errors.Wrapf(ErrGreeting, "invalid signature header 0x%02x", p[0])
	}
	if len(p) > 9 && p[9]&0x01 == 0 {
		return errors.Wrapf(ErrGreeting, "invalid signature footer 0x%02x", p[9])
	}
	if len(p) > 10 && p[10] < MajorVersion {
		return errors.Wrapf(ErrGreeting, "unsupported ZMTP version %d", p[10])
	}
	return nil
}

// ParseGreeting decodes and validates a complete greeting.
func ParseGreeting(p []byte) (Greeting, error) {
	var g Greeting
	if len(p) < GreetingSize {
		return g, errors.Wrapf(ErrGreeting, "short greeting (%d bytes)", len(p))
	}
	if err := CheckSignature(p[:GreetingSize]); err != nil {
		return g, err
	}
	g.Major = p[10]
	g.Minor = p[11]

	mech := p[12 : 12+mechanismSize]
	if i := bytes.IndexByte(mech, 0); i >= 0 {
		mech = mech[:i]
	}
	g.Mechanism = string(mech)

	switch p[32] {
	case 0:
	case 1:
		g.AsServer = true
	default:
		return g, errors.Wrapf(ErrGreeting, "invalid as-server octet 0x%02x", p[32])
	}
	return g, nil
}

// Supports31 reports whether the peer speaks ZMTP 3.1 or later, and thus
// understands PING/PONG and the SUBSCRIBE/CANCEL commands.
func (g Greeting) Supports31() bool {
	return g.Major > 3 || g.Major == 3 && g.Minor >= 1
}
