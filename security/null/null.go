// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package null provides the ZeroMQ NULL security mechanism as specified by:
// https://rfc.zeromq.org/spec:23/ZMTP/#the-null-security-mechanism
package null

import (
	"github.com/pkg/errors"

	"github.com/destiny/zsock/zmtp"
)

// security implements the NULL security mechanism.
type security struct{}

// Security returns a value that implements the NULL security mechanism
func Security() zmtp.Security {
	return security{}
}

// Type returns the security mechanism type.
func (security) Type() string { return zmtp.Null }

// AsServer returns false: NULL has no client/server topology.
func (security) AsServer() bool { return false }

// NewMechanism returns the per-connection NULL handshake.
func (security) NewMechanism(cfg zmtp.Config) (zmtp.Mechanism, error) {
	return &mechanism{
		cfg:     cfg,
		zapWant: cfg.ZAP && cfg.ZAPDomain != "",
	}, nil
}

// mechanism exchanges READY commands. When a ZAP domain is configured and
// a handler is available, READY is only sent once the handler accepted the
// peer.
type mechanism struct {
	cfg zmtp.Config

	readySent  bool
	readyRecv  bool
	errPending *zmtp.Cmd
	failed     bool

	zapWant bool
	zapSent bool
	zapDone bool
	zapReq  *zmtp.ZAPRequest

	peer   zmtp.Metadata
	userID string
}

func (m *mechanism) NextHandshakeCommand() (zmtp.Cmd, error) {
	if m.errPending != nil {
		cmd := *m.errPending
		m.errPending = nil
		return cmd, nil
	}
	if m.failed || m.readySent {
		return zmtp.Cmd{}, zmtp.ErrAgain
	}

	if m.zapWant && !m.zapDone {
		if !m.zapSent {
			m.zapSent = true
			m.zapReq = &zmtp.ZAPRequest{
				RequestID: []byte("1"),
				Domain:    m.cfg.ZAPDomain,
				Address:   m.cfg.Address,
				Identity:  []byte(m.cfg.Metadata[zmtp.PropIdentity]),
				Mechanism: zmtp.Null,
			}
		}
		return zmtp.Cmd{}, zmtp.ErrAgain
	}

	raw, err := m.cfg.Metadata.MarshalZMTP()
	if err != nil {
		return zmtp.Cmd{}, errors.WithMessage(err, "security/null: could not marshal metadata")
	}
	m.readySent = true
	return zmtp.Cmd{Name: zmtp.CmdReady, Body: raw}, nil
}

func (m *mechanism) ProcessHandshakeCommand(cmd zmtp.Cmd) error {
	switch cmd.Name {
	case zmtp.CmdReady:
		if m.readyRecv {
			return m.fail(zmtp.Protocolf("security/null: duplicate READY command"))
		}
		var md zmtp.Metadata
		if err := md.UnmarshalZMTP(cmd.Body); err != nil {
			return m.fail(zmtp.Protocolf("security/null: invalid metadata: %v", err))
		}
		m.peer = md
		m.readyRecv = true
		return nil

	case zmtp.CmdError:
		m.failed = true
		return zmtp.PeerError(cmd.Body)

	default:
		return m.fail(zmtp.Protocolf("security/null: unexpected %s command", cmd.Name))
	}
}

func (m *mechanism) fail(err error) error {
	m.failed = true
	return err
}

func (m *mechanism) Status() zmtp.Status {
	switch {
	case m.failed:
		return zmtp.Failed
	case m.readySent && m.readyRecv:
		return zmtp.Ready
	}
	return zmtp.Handshaking
}

func (m *mechanism) ZAPRequest() *zmtp.ZAPRequest {
	req := m.zapReq
	m.zapReq = nil
	return req
}

func (m *mechanism) ProcessZAPReply(rep zmtp.ZAPReply) error {
	m.zapDone = true
	if err := rep.StatusError(); err != nil {
		cmd := zmtp.ErrorCmd(rep.StatusCode)
		m.errPending = &cmd
		m.failed = true
		return err
	}
	m.userID = rep.UserID
	return nil
}

func (*mechanism) Encode(f zmtp.Frame) (zmtp.Frame, error) { return f, nil }
func (*mechanism) Decode(f zmtp.Frame) (zmtp.Frame, error) { return f, nil }

func (m *mechanism) PeerMetadata() zmtp.Metadata { return m.peer }
func (m *mechanism) UserID() string              { return m.userID }

var (
	_ zmtp.Security  = (*security)(nil)
	_ zmtp.Mechanism = (*mechanism)(nil)
)
