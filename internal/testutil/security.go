// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/destiny/zsock/security/curve"
	"github.com/destiny/zsock/zmtp"
)

// TestKeyPair holds a test key pair with its Z85 encodings
type TestKeyPair struct {
	*curve.KeyPair
	PublicZ85 string
	SecretZ85 string
}

// NewTestKeyPair generates a new test key pair
func NewTestKeyPair(t testing.TB) *TestKeyPair {
	t.Helper()
	keyPair, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate test key pair: %v", err)
	}

	publicZ85, err := keyPair.PublicKeyZ85()
	if err != nil {
		t.Fatalf("Failed to encode public key as Z85: %v", err)
	}

	secretZ85, err := keyPair.SecretKeyZ85()
	if err != nil {
		t.Fatalf("Failed to encode secret key as Z85: %v", err)
	}

	return &TestKeyPair{
		KeyPair:   keyPair,
		PublicZ85: publicZ85,
		SecretZ85: secretZ85,
	}
}

// TestKeySet holds a complete set of keys for testing
type TestKeySet struct {
	Server *TestKeyPair
	Client *TestKeyPair
}

// NewTestKeySet generates a complete key set for client-server testing
func NewTestKeySet(t testing.TB) *TestKeySet {
	return &TestKeySet{
		Server: NewTestKeyPair(t),
		Client: NewTestKeyPair(t),
	}
}

// ZAPFunc answers a ZAP request during a shuttled handshake.
type ZAPFunc func(req zmtp.ZAPRequest) zmtp.ZAPReply

// ZAPAllow accepts every peer as the given user.
func ZAPAllow(user string) ZAPFunc {
	return func(req zmtp.ZAPRequest) zmtp.ZAPReply {
		return zmtp.ZAPReply{RequestID: req.RequestID, StatusCode: zmtp.ZAPStatusOK, StatusText: "OK", UserID: user}
	}
}

// ZAPDeny rejects every peer with a 400.
func ZAPDeny(req zmtp.ZAPRequest) zmtp.ZAPReply {
	return zmtp.ZAPReply{RequestID: req.RequestID, StatusCode: zmtp.ZAPStatusFailure, StatusText: "denied"}
}

// Handshake shuttles commands between two mechanisms until neither makes
// progress. Commands are marshaled and parsed on the way, as an engine
// would. It returns the first error reported by each side.
func Handshake(client, server zmtp.Mechanism, zap ZAPFunc) (cerr, serr error) {
	sides := [2]zmtp.Mechanism{client, server}
	var errs [2]error

	answer := func(i int) (bool, error) {
		req := sides[i].ZAPRequest()
		if req == nil {
			return false, nil
		}
		if zap == nil {
			return false, errors.Errorf("testutil: unexpected ZAP request")
		}
		if err := sides[i].ProcessZAPReply(zap(*req)); err != nil && errs[i] == nil {
			errs[i] = err
		}
		return true, nil
	}

	turn := func(i int) (bool, error) {
		m, peer := sides[i], sides[1-i]
		progress := false
		for {
			ok, err := answer(i)
			if err != nil {
				return progress, err
			}
			progress = progress || ok

			cmd, err := m.NextHandshakeCommand()
			if errors.Is(err, zmtp.ErrAgain) {
				ok, err := answer(i)
				if err != nil || !ok {
					return progress, err
				}
				progress = true
				continue
			}
			if err != nil {
				if errs[i] == nil {
					errs[i] = err
				}
				return progress, nil
			}
			progress = true

			raw, err := cmd.Marshal()
			if err != nil {
				return progress, err
			}
			cmd, err = zmtp.ParseCmd(raw)
			if err != nil {
				return progress, err
			}
			if err := peer.ProcessHandshakeCommand(cmd); err != nil && errs[1-i] == nil {
				errs[1-i] = err
			}
		}
	}

	for round := 0; round < 32; round++ {
		moved := false
		for i := range sides {
			ok, err := turn(i)
			if err != nil {
				return err, err
			}
			moved = moved || ok
		}
		if !moved {
			break
		}
	}
	return errs[0], errs[1]
}
