// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plain provides the ZeroMQ PLAIN security mechanism as specified by:
// https://rfc.zeromq.org/spec:24/ZMTP-PLAIN/
package plain

import (
	"github.com/pkg/errors"

	"github.com/destiny/zsock/zmtp"
)

// security implements the PLAIN security mechanism.
type security struct {
	server bool
	user   []byte
	pass   []byte
}

// Security returns the client side of the PLAIN security mechanism,
// authenticating with the given credentials.
func Security(user, pass string) zmtp.Security {
	return &security{user: []byte(user), pass: []byte(pass)}
}

// ServerSecurity returns the server side of the PLAIN security mechanism.
// Credentials are checked by the ZAP handler, if any.
func ServerSecurity() zmtp.Security {
	return &security{server: true}
}

// Type returns the security mechanism type.
func (*security) Type() string { return zmtp.Plain }

// AsServer reports whether this is the server side.
func (sec *security) AsServer() bool { return sec.server }

// NewMechanism returns the per-connection PLAIN handshake.
func (sec *security) NewMechanism(cfg zmtp.Config) (zmtp.Mechanism, error) {
	if !sec.server && (len(sec.user) > 255 || len(sec.pass) > 255) {
		return nil, errors.Errorf("security/plain: credentials too long")
	}
	m := &mechanism{sec: sec, cfg: cfg}
	if sec.server {
		m.state = waitHello
	} else {
		m.state = sendHello
	}
	return m, nil
}

type state int

const (
	sendHello state = iota
	waitWelcome
	sendInitiate
	waitReady

	waitHello
	waitZAP
	sendWelcome
	waitInitiate
	sendReady

	ready
	failed
)

type mechanism struct {
	sec   *security
	cfg   zmtp.Config
	state state

	errPending *zmtp.Cmd
	zapReq     *zmtp.ZAPRequest

	peer   zmtp.Metadata
	userID string
}

func (m *mechanism) NextHandshakeCommand() (zmtp.Cmd, error) {
	if m.errPending != nil {
		cmd := *m.errPending
		m.errPending = nil
		return cmd, nil
	}

	switch m.state {
	case sendHello:
		hello := make([]byte, 0, len(m.sec.user)+len(m.sec.pass)+2)
		hello = append(hello, byte(len(m.sec.user)))
		hello = append(hello, m.sec.user...)
		hello = append(hello, byte(len(m.sec.pass)))
		hello = append(hello, m.sec.pass...)
		m.state = waitWelcome
		return zmtp.Cmd{Name: zmtp.CmdHello, Body: hello}, nil

	case sendInitiate:
		raw, err := m.cfg.Metadata.MarshalZMTP()
		if err != nil {
			return zmtp.Cmd{}, errors.WithMessage(err, "security/plain: could not serialize metadata")
		}
		m.state = waitReady
		return zmtp.Cmd{Name: zmtp.CmdInitiate, Body: raw}, nil

	case sendWelcome:
		m.state = waitInitiate
		return zmtp.Cmd{Name: zmtp.CmdWelcome}, nil

	case sendReady:
		raw, err := m.cfg.Metadata.MarshalZMTP()
		if err != nil {
			return zmtp.Cmd{}, errors.WithMessage(err, "security/plain: could not serialize metadata")
		}
		m.state = ready
		return zmtp.Cmd{Name: zmtp.CmdReady, Body: raw}, nil
	}
	return zmtp.Cmd{}, zmtp.ErrAgain
}

func (m *mechanism) ProcessHandshakeCommand(cmd zmtp.Cmd) error {
	if cmd.Name == zmtp.CmdError && m.state != failed {
		m.state = failed
		return zmtp.PeerError(cmd.Body)
	}

	switch m.state {
	case waitWelcome:
		if cmd.Name != zmtp.CmdWelcome {
			return m.protocolError("expected a WELCOME command from server, got %s", cmd.Name)
		}
		m.state = sendInitiate
		return nil

	case waitReady:
		if cmd.Name != zmtp.CmdReady {
			return m.protocolError("expected a READY command from server, got %s", cmd.Name)
		}
		if err := m.parseMetadata(cmd.Body); err != nil {
			return err
		}
		m.state = ready
		return nil

	case waitHello:
		if cmd.Name != zmtp.CmdHello {
			return m.protocolError("expected a HELLO command from client, got %s", cmd.Name)
		}
		user, pass, err := parseHello(cmd.Body)
		if err != nil {
			return m.protocolError("%v", err)
		}
		if !m.cfg.ZAP {
			m.state = sendWelcome
			return nil
		}
		m.zapReq = &zmtp.ZAPRequest{
			RequestID:   []byte("1"),
			Domain:      m.cfg.ZAPDomain,
			Address:     m.cfg.Address,
			Identity:    []byte(m.cfg.Metadata[zmtp.PropIdentity]),
			Mechanism:   zmtp.Plain,
			Credentials: [][]byte{user, pass},
		}
		m.state = waitZAP
		return nil

	case waitInitiate:
		if cmd.Name != zmtp.CmdInitiate {
			return m.protocolError("expected an INITIATE command from client, got %s", cmd.Name)
		}
		if err := m.parseMetadata(cmd.Body); err != nil {
			return err
		}
		m.state = sendReady
		return nil
	}
	return m.protocolError("unexpected %s command", cmd.Name)
}

func (m *mechanism) parseMetadata(body []byte) error {
	var md zmtp.Metadata
	if err := md.UnmarshalZMTP(body); err != nil {
		return m.protocolError("could not unmarshal peer metadata: %v", err)
	}
	m.peer = md
	return nil
}

func (m *mechanism) protocolError(format string, args ...interface{}) error {
	if m.sec.server {
		cmd := zmtp.ErrorCmd("invalid command")
		m.errPending = &cmd
	}
	m.state = failed
	return zmtp.Protocolf("security/plain: "+format, args...)
}

func (m *mechanism) Status() zmtp.Status {
	switch m.state {
	case ready:
		return zmtp.Ready
	case failed:
		return zmtp.Failed
	}
	return zmtp.Handshaking
}

func (m *mechanism) ZAPRequest() *zmtp.ZAPRequest {
	req := m.zapReq
	m.zapReq = nil
	return req
}

func (m *mechanism) ProcessZAPReply(rep zmtp.ZAPReply) error {
	if m.state != waitZAP {
		return m.protocolError("unexpected ZAP reply")
	}
	if err := rep.StatusError(); err != nil {
		cmd := zmtp.ErrorCmd(rep.StatusCode)
		m.errPending = &cmd
		m.state = failed
		return err
	}
	m.userID = rep.UserID
	m.state = sendWelcome
	return nil
}

func (*mechanism) Encode(f zmtp.Frame) (zmtp.Frame, error) { return f, nil }
func (*mechanism) Decode(f zmtp.Frame) (zmtp.Frame, error) { return f, nil }

func (m *mechanism) PeerMetadata() zmtp.Metadata { return m.peer }
func (m *mechanism) UserID() string              { return m.userID }

// parseHello extracts the user/passwd credentials.
func parseHello(body []byte) (user, pass []byte, err error) {
	if len(body) < 1 {
		return nil, nil, errors.Errorf("empty HELLO command")
	}
	n := int(body[0])
	body = body[1:]
	if n > len(body) {
		return nil, nil, errors.Errorf("invalid username length %d", n)
	}
	user, body = body[:n], body[n:]

	if len(body) < 1 {
		return nil, nil, errors.Errorf("missing password")
	}
	n = int(body[0])
	body = body[1:]
	if n != len(body) {
		return nil, nil, errors.Errorf("invalid password length %d", n)
	}
	return user, body, nil
}

var (
	_ zmtp.Security  = (*security)(nil)
	_ zmtp.Mechanism = (*mechanism)(nil)
)
