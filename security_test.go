// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
	"github.com/destiny/zsock/security/curve"
	"github.com/destiny/zsock/security/plain"
	"github.com/destiny/zsock/zmtp"
)

// zapHandler serves ZAP requests of zctx with auth until the test ends.
func zapHandler(t *testing.T, zctx *zsock.Context, auth testutil.ZAPFunc) {
	t.Helper()
	handler, err := zsock.NewRouter(zctx, zsock.WithTimeout(-1))
	require.NoError(t, err)
	require.NoError(t, handler.Listen("inproc://"+zmtp.ZAPEndpoint))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := handler.Recv()
			if err != nil {
				return
			}
			if len(msg.Frames) < 2 || len(msg.Frames[1]) != 0 {
				t.Errorf("invalid ZAP envelope: %q", msg.Frames)
				return
			}
			req, err := zmtp.ParseZAPRequest(msg.Frames[2:])
			if err != nil {
				t.Errorf("invalid ZAP request: %+v", err)
				return
			}
			frames, err := auth(req).Frames()
			if err != nil {
				t.Errorf("could not encode ZAP reply: %+v", err)
				return
			}
			reply := zsock.NewMsgFrom(append([][]byte{msg.Frames[0], {}}, frames...)...)
			if err := handler.Send(reply); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		handler.Close()
		<-done
	})
}

// plainAuth accepts the admin user with its password.
func plainAuth(req zmtp.ZAPRequest) zmtp.ZAPReply {
	if req.Mechanism != zmtp.Plain || len(req.Credentials) != 2 ||
		string(req.Credentials[0]) != "admin" || string(req.Credentials[1]) != "secret" {
		return testutil.ZAPDeny(req)
	}
	return testutil.ZAPAllow("admin")(req)
}

func TestPlainZAP(t *testing.T) {
	zctx := newTestContext(t)
	zapHandler(t, zctx, plainAuth)

	ep := testutil.MustEndpoint(t)
	pull := newSocket(t, zctx, zsock.NewPull, zsock.WithSecurity(plain.ServerSecurity()))
	require.NoError(t, pull.Listen(ep))
	mon := monitor(t, zctx, pull, zsock.EventHandshakeSucceeded|zsock.EventHandshakeFailedAuth)

	t.Run("denied", func(t *testing.T) {
		push := newSocket(t, zctx, zsock.NewPush, zsock.WithSecurity(plain.Security("admin", "wrong")))
		require.NoError(t, push.Dial(ep))

		ev := recvEvent(t, mon)
		assert.Equal(t, zsock.EventHandshakeFailedAuth, ev.Type)
		assert.Equal(t, uint32(400), ev.Value)
		require.NoError(t, push.Close())
	})

	t.Run("allowed", func(t *testing.T) {
		push := newSocket(t, zctx, zsock.NewPush)
		require.NoError(t, push.SetOption(zsock.OptionPlainUsername, "admin"))
		require.NoError(t, push.SetOption(zsock.OptionPlainPassword, "secret"))
		require.NoError(t, push.Dial(ep))

		require.NoError(t, push.Send(zsock.NewMsgString("authorized")))
		msg, err := pull.Recv()
		require.NoError(t, err)
		assert.Equal(t, "authorized", string(msg.Frames[0]))
		uid, ok := msg.Property(zmtp.PropUserID)
		assert.True(t, ok)
		assert.Equal(t, "admin", uid)

		// the denied peer keeps retrying
		for {
			ev := recvEvent(t, mon)
			if ev.Type == zsock.EventHandshakeSucceeded {
				break
			}
			require.Equal(t, zsock.EventHandshakeFailedAuth, ev.Type)
		}
	})
}

func TestCurve(t *testing.T) {
	for _, ep := range endpoints(t, "curve") {
		ep := ep
		t.Run(transportName(ep), func(t *testing.T) {
			keys := testutil.NewTestKeySet(t)
			zctx := newTestContext(t)

			rep := newSocket(t, zctx, zsock.NewRep, zsock.WithSecurity(curve.NewServerSecurity(keys.Server.KeyPair)))
			req := newSocket(t, zctx, zsock.NewReq)
			require.NoError(t, req.SetOption(zsock.OptionCurveServerKey, keys.Server.PublicZ85))
			require.NoError(t, req.SetOption(zsock.OptionCurvePublic, keys.Client.PublicZ85))
			require.NoError(t, req.SetOption(zsock.OptionCurveSecret, keys.Client.SecretZ85))

			require.NoError(t, rep.Listen(ep))
			require.NoError(t, req.Dial(ep))

			body := bytes.Repeat([]byte("x"), 1024)
			require.NoError(t, req.Send(zsock.NewMsgFrom([]byte("big"), body)))
			msg, err := rep.Recv()
			require.NoError(t, err)
			assert.Equal(t, [][]byte{[]byte("big"), body}, msg.Frames)

			require.NoError(t, rep.Send(zsock.NewMsgString("ok")))
			msg, err = req.Recv()
			require.NoError(t, err)
			assert.Equal(t, "ok", string(msg.Frames[0]))
		})
	}
}

func TestCurveZAP(t *testing.T) {
	keys := testutil.NewTestKeySet(t)
	zctx := newTestContext(t)
	zapHandler(t, zctx, func(req zmtp.ZAPRequest) zmtp.ZAPReply {
		if req.Mechanism != zmtp.Curve || len(req.Credentials) != 1 ||
			!bytes.Equal(req.Credentials[0], keys.Client.Public[:]) {
			return testutil.ZAPDeny(req)
		}
		return testutil.ZAPAllow(keys.Client.PublicZ85)(req)
	})

	ep := testutil.MustEndpoint(t)
	pull := newSocket(t, zctx, zsock.NewPull)
	require.NoError(t, pull.SetOption(zsock.OptionCurveServer, true))
	require.NoError(t, pull.SetOption(zsock.OptionCurveSecret, keys.Server.Secret[:]))
	require.NoError(t, pull.SetOption(zsock.OptionZAPDomain, "test"))
	require.NoError(t, pull.Listen(ep))

	push := newSocket(t, zctx, zsock.NewPush,
		zsock.WithSecurity(curve.NewClientSecurity(keys.Client.KeyPair, keys.Server.Public)),
	)
	require.NoError(t, push.Dial(ep))
	require.NoError(t, push.Send(zsock.NewMsgString("sealed")))

	msg, err := pull.Recv()
	require.NoError(t, err)
	assert.Equal(t, "sealed", string(msg.Frames[0]))
	uid, ok := msg.Property(zmtp.PropUserID)
	assert.True(t, ok)
	assert.Equal(t, keys.Client.PublicZ85, uid)
}

func TestCurveOptions(t *testing.T) {
	zctx := newTestContext(t)
	keys := testutil.NewTestKeySet(t)

	pull := newSocket(t, zctx, zsock.NewPull)
	assert.ErrorIs(t, pull.SetOption(zsock.OptionCurveSecret, "too short"), curve.ErrInvalidKey)
	require.NoError(t, pull.SetOption(zsock.OptionCurveSecret, keys.Server.SecretZ85))
	require.NoError(t, pull.SetOption(zsock.OptionCurveServer, true))

	v, err := pull.GetOption(zsock.OptionCurveServer)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
