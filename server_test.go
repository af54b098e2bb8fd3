// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
)

func TestHelloDisconnectMsg(t *testing.T) {
	for _, ep := range endpoints(t, "hello") {
		ep := ep
		t.Run(transportName(ep), func(t *testing.T) {
			zctx := newTestContext(t)
			server := newSocket(t, zctx, zsock.NewServer, zsock.WithDisconnectMsg([]byte("D")))
			client := newSocket(t, zctx, zsock.NewClient, zsock.WithHelloMsg([]byte("H")))
			require.NoError(t, server.Listen(ep))
			require.NoError(t, client.Dial(ep))

			msg, err := server.Recv()
			require.NoError(t, err)
			assert.Equal(t, "H", string(msg.Frames[0]))
			rid := msg.RoutingID
			assert.NotZero(t, rid)

			require.NoError(t, client.Close())

			msg, err = server.Recv()
			require.NoError(t, err)
			assert.Equal(t, "D", string(msg.Frames[0]))
			assert.Equal(t, rid, msg.RoutingID)
		})
	}
}

func TestHiccupMsg(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	dealer := newSocket(t, zctx, zsock.NewDealer,
		zsock.WithHiccupMsg([]byte("hiccup")),
		zsock.WithReconnectIVL(10*time.Millisecond, 0),
	)

	router := newSocket(t, zctx, zsock.NewRouter)
	require.NoError(t, router.Listen(ep))
	require.NoError(t, dealer.Dial(ep))

	require.NoError(t, dealer.Send(zsock.NewMsgString("1")))
	msg, err := router.Recv()
	require.NoError(t, err)
	assert.Equal(t, "1", string(msg.Frames[1]))
	require.NoError(t, router.Close())

	msg, err = dealer.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hiccup", string(msg.Frames[0]))

	// the dealer reconnects to the new router
	router = newSocket(t, zctx, zsock.NewRouter)
	require.NoError(t, router.Listen(ep))
	require.NoError(t, dealer.Send(zsock.NewMsgString("2")))
	msg, err = router.Recv()
	require.NoError(t, err)
	assert.Equal(t, "2", string(msg.Frames[1]))
}

func TestServerClient(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	server := newSocket(t, zctx, zsock.NewServer)
	require.NoError(t, server.Listen(ep))

	clients := []zsock.Socket{
		newSocket(t, zctx, zsock.NewClient),
		newSocket(t, zctx, zsock.NewClient),
	}
	for i, client := range clients {
		require.NoError(t, client.Dial(ep))
		require.NoError(t, client.Send(zsock.NewMsg([]byte{byte(i)})))
	}

	for range clients {
		msg, err := server.Recv()
		require.NoError(t, err)
		reply := zsock.NewMsg([]byte{msg.Frames[0][0] + 10})
		reply.RoutingID = msg.RoutingID
		require.NoError(t, server.Send(reply))
	}
	for i, client := range clients {
		msg, err := client.Recv()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i + 10)}, msg.Frames[0])
	}

	err := server.Send(zsock.NewMsgString("nobody"))
	assert.ErrorIs(t, err, zsock.ErrNoPeer)
	err = clients[0].Send(zsock.NewMsgFrom([]byte("a"), []byte("b")))
	assert.ErrorIs(t, err, zsock.ErrMultipart)
}

func TestPeerConnectPeer(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	a := newSocket(t, zctx, zsock.NewPeer)
	b := newSocket(t, zctx, zsock.NewPeer)
	require.NoError(t, b.Listen(ep))

	rid, err := a.ConnectPeer(ep)
	require.NoError(t, err)
	assert.NotZero(t, rid)

	msg := zsock.NewMsgString("hello")
	msg.RoutingID = rid
	require.NoError(t, a.Send(msg))

	got, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got.Frames[0]))

	reply := zsock.NewMsgString("world")
	reply.RoutingID = got.RoutingID
	require.NoError(t, b.Send(reply))
	got, err = a.Recv()
	require.NoError(t, err)
	assert.Equal(t, "world", string(got.Frames[0]))
	assert.Equal(t, rid, got.RoutingID)

	server := newSocket(t, zctx, zsock.NewServer)
	_, err = server.ConnectPeer(ep)
	assert.ErrorIs(t, err, zsock.ErrNotSupported)
}
