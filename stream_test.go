// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
	"github.com/destiny/zsock/zmtp"
)

func TestStreamRawPeer(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	stream := newSocket(t, zctx, zsock.NewStream)
	require.NoError(t, stream.Listen(ep))

	conn := testutil.DialTCP(t, ep, testTimeout)

	// connection notification
	msg, err := stream.Recv()
	require.NoError(t, err)
	require.Len(t, msg.Frames, 2)
	id := msg.Frames[0]
	assert.Empty(t, msg.Frames[1])
	peer, ok := msg.Property(zmtp.PropPeerAddress)
	assert.True(t, ok)
	assert.Equal(t, "127.0.0.1", peer)

	_, err = conn.Write([]byte("GET /"))
	require.NoError(t, err)
	msg, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, id, msg.Frames[0])
	assert.Equal(t, "GET /", string(msg.Frames[1]))

	require.NoError(t, stream.Send(zsock.NewMsgFrom(id, []byte("200 OK"))))
	buf := make([]byte, 6)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "200 OK", string(buf))

	// an empty frame closes the connection
	require.NoError(t, stream.Send(zsock.NewMsgFrom(id, nil)))
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	err = stream.Send(zsock.NewMsgFrom(id, []byte("gone")))
	assert.ErrorIs(t, err, zsock.ErrHostUnreachable)
}

func TestStreamDisconnectNotification(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	stream := newSocket(t, zctx, zsock.NewStream)
	require.NoError(t, stream.Listen(ep))

	conn := testutil.DialTCP(t, ep, testTimeout)

	msg, err := stream.Recv()
	require.NoError(t, err)
	id := msg.Frames[0]
	require.NoError(t, conn.Close())

	msg, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{id, {}}, msg.Frames)
}
