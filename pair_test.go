// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
	"github.com/destiny/zsock/zmtp"
)

func TestPair(t *testing.T) {
	for _, ep := range endpoints(t, "pair") {
		ep := ep
		t.Run(transportName(ep), func(t *testing.T) {
			zctx := newTestContext(t)
			a := newSocket(t, zctx, zsock.NewPair)
			b := newSocket(t, zctx, zsock.NewPair)
			require.NoError(t, a.Listen(ep))
			require.NoError(t, b.Dial(ep))

			require.NoError(t, b.Send(zsock.NewMsgFrom([]byte("multi"), []byte("part"))))
			msg, err := a.Recv()
			require.NoError(t, err)
			assert.Equal(t, [][]byte{[]byte("multi"), []byte("part")}, msg.Frames)

			require.NoError(t, a.Send(zsock.NewMsgString("back")))
			msg, err = b.Recv()
			require.NoError(t, err)
			assert.Equal(t, "back", string(msg.Frames[0]))
		})
	}
}

func TestPairRejectsSecondPeer(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.InprocEndpoint("pair")
	a := newSocket(t, zctx, zsock.NewPair)
	b := newSocket(t, zctx, zsock.NewPair)
	c := newSocket(t, zctx, zsock.NewPair, zsock.WithTimeout(50*time.Millisecond))
	require.NoError(t, a.Listen(ep))
	require.NoError(t, b.Dial(ep))
	require.NoError(t, c.Dial(ep))

	require.NoError(t, b.Send(zsock.NewMsgString("first")))
	msg, err := a.Recv()
	require.NoError(t, err)
	assert.Equal(t, "first", string(msg.Frames[0]))

	// c has no peer and cannot send
	err = c.Send(zsock.NewMsgString("second"))
	assert.True(t, errors.Is(err, zsock.ErrAgain), "got %v", err)
}

func TestChannel(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	a := newSocket(t, zctx, zsock.NewChannel)
	b := newSocket(t, zctx, zsock.NewChannel, zsock.WithMetadata(zmtp.Metadata{"x-tenant": "blue"}))
	require.NoError(t, a.Listen(ep))
	require.NoError(t, b.Dial(ep))

	require.NoError(t, b.Send(zsock.NewMsgString("ping")))
	msg, err := a.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(msg.Frames[0]))
	tenant, ok := msg.Property("X-Tenant")
	assert.True(t, ok)
	assert.Equal(t, "blue", tenant)
	typ, _ := msg.Property(zmtp.PropSocketType)
	assert.Equal(t, "CHANNEL", typ)

	assert.ErrorIs(t, a.Send(zsock.NewMsgFrom([]byte("a"), []byte("b"))), zsock.ErrMultipart)

	// channels only talk to channels
	pair := newSocket(t, zctx, zsock.NewPair)
	mon := monitor(t, zctx, pair, zsock.EventHandshakeFailedProtocol)
	require.NoError(t, pair.Dial(ep))
	ev := recvEvent(t, mon)
	assert.Equal(t, zsock.EventHandshakeFailedProtocol, ev.Type)
}
