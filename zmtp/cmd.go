// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmtp

import (
	"encoding/binary"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// ZMTP commands as per:
//
//	https://rfc.zeromq.org/spec:23/ZMTP/#commands
//	https://rfc.zeromq.org/spec:37/ZMTP/
const (
	CmdCancel    = "CANCEL"
	CmdError     = "ERROR"
	CmdHello     = "HELLO"
	CmdInitiate  = "INITIATE"
	CmdJoin      = "JOIN"
	CmdLeave     = "LEAVE"
	CmdMessage   = "MESSAGE"
	CmdPing      = "PING"
	CmdPong      = "PONG"
	CmdReady     = "READY"
	CmdSubscribe = "SUBSCRIBE"
	CmdWelcome   = "WELCOME"
)

// MaxPingContext is the maximum size of a PING context.
const MaxPingContext = 16

// Cmd is a ZMTP command as per:
//
//	https://rfc.zeromq.org/spec:23/ZMTP/#formal-grammar
type Cmd struct {
	Name string
	Body []byte
}

// Marshal returns the command frame body: name length, name, data.
func (cmd Cmd) Marshal() ([]byte, error) {
	n := len(cmd.Name)
	if n == 0 || n > 255 {
		return nil, errors.Wrapf(ErrBadCmd, "invalid command name %q", cmd.Name)
	}

	buf := make([]byte, 0, 1+n+len(cmd.Body))
	buf = append(buf, byte(n))
	buf = append(buf, cmd.Name...)
	buf = append(buf, cmd.Body...)
	return buf, nil
}

// ParseCmd decodes a command frame body.
func ParseCmd(data []byte) (Cmd, error) {
	var cmd Cmd
	if len(data) == 0 {
		return cmd, io.ErrUnexpectedEOF
	}
	n := int(data[0])
	if n == 0 || n > len(data)-1 {
		return cmd, errors.Wrapf(ErrBadCmd, "invalid command name length %d", n)
	}
	cmd.Name = string(data[1 : n+1])
	cmd.Body = data[n+1:]
	return cmd, nil
}

// PingCmd builds a PING command announcing ttl (in deciseconds) and an
// opaque context echoed back by the peer.
func PingCmd(ttl uint16, ctx []byte) Cmd {
	if len(ctx) > MaxPingContext {
		ctx = ctx[:MaxPingContext]
	}
	body := make([]byte, 2, 2+len(ctx))
	binary.BigEndian.PutUint16(body, ttl)
	return Cmd{Name: CmdPing, Body: append(body, ctx...)}
}

// ParsePing decodes the body of a PING command.
func ParsePing(body []byte) (ttl uint16, ctx []byte, err error) {
	if len(body) < 2 {
		return 0, nil, Protocolf("short PING command (%d bytes)", len(body))
	}
	ctx = body[2:]
	if len(ctx) > MaxPingContext {
		return 0, nil, Protocolf("PING context too large (%d bytes)", len(ctx))
	}
	return binary.BigEndian.Uint16(body[:2]), ctx, nil
}

// ErrorCmd builds an ERROR command carrying reason.
func ErrorCmd(reason string) Cmd {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	body := make([]byte, 0, 1+len(reason))
	body = append(body, byte(len(reason)))
	body = append(body, reason...)
	return Cmd{Name: CmdError, Body: body}
}

// ParseErrorReason extracts the reason of an ERROR command.
func ParseErrorReason(body []byte) (string, error) {
	if len(body) < 1 || int(body[0]) > len(body)-1 {
		return "", Protocolf("malformed ERROR command")
	}
	return string(body[1 : 1+int(body[0])]), nil
}

// PeerError turns a received ERROR command into an AuthError. A reason
// made of a ZAP status code is reported as that status.
func PeerError(body []byte) error {
	reason, err := ParseErrorReason(body)
	if err != nil {
		return err
	}
	status, err := strconv.Atoi(reason)
	if err != nil || len(reason) != 3 {
		status = 0
	}
	return &AuthError{Status: status, Reason: reason}
}
