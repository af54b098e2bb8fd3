// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
	"github.com/destiny/zsock/zmtp"
)

// monitor starts monitoring sck and returns the socket receiving the
// events.
func monitor(t *testing.T, zctx *zsock.Context, sck zsock.Socket, events zsock.EventType) zsock.Socket {
	t.Helper()
	ep := testutil.InprocEndpoint("monitor")
	require.NoError(t, sck.Monitor(ep, events))
	mon := newSocket(t, zctx, zsock.NewPair)
	require.NoError(t, mon.Dial(ep))
	return mon
}

func recvEvent(t *testing.T, mon zsock.Socket) zsock.Event {
	t.Helper()
	msg, err := mon.Recv()
	require.NoError(t, err)
	ev, err := zsock.ParseEvent(msg)
	require.NoError(t, err)
	return ev
}

func TestMonitorLifecycle(t *testing.T) {
	zctx := newTestContext(t)
	rep := newSocket(t, zctx, zsock.NewRep)
	req := newSocket(t, zctx, zsock.NewReq)
	mon := monitor(t, zctx, rep, zsock.EventAll)

	require.NoError(t, rep.Listen("tcp://127.0.0.1:*"))
	ep, err := rep.GetOption(zsock.OptionLastEndpoint)
	require.NoError(t, err)
	require.NoError(t, req.Dial(ep.(string)))

	require.NoError(t, req.Send(zsock.NewMsgString("ping")))
	_, err = rep.Recv()
	require.NoError(t, err)

	require.NoError(t, rep.Close())

	var got []zsock.EventType
	for {
		ev := recvEvent(t, mon)
		got = append(got, ev.Type)
		if ev.Type == zsock.EventListening {
			assert.Equal(t, ep, ev.Endpoint)
		}
		if ev.Type == zsock.EventMonitorStopped {
			break
		}
	}
	assert.Equal(t, []zsock.EventType{
		zsock.EventListening,
		zsock.EventAccepted,
		zsock.EventHandshakeSucceeded,
		zsock.EventClosed,
		zsock.EventMonitorStopped,
	}, got)
}

func TestMonitorConnectEvents(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	pull := newSocket(t, zctx, zsock.NewPull)
	push := newSocket(t, zctx, zsock.NewPush)
	mon := monitor(t, zctx, push, zsock.EventConnectDelayed|zsock.EventConnected|zsock.EventHandshakeSucceeded)

	require.NoError(t, pull.Listen(ep))
	require.NoError(t, push.Dial(ep))

	for _, want := range []zsock.EventType{
		zsock.EventConnectDelayed,
		zsock.EventConnected,
		zsock.EventHandshakeSucceeded,
	} {
		ev := recvEvent(t, mon)
		assert.Equal(t, want, ev.Type, "got %v", ev.Type)
		assert.Equal(t, ep, ev.Endpoint)
	}
}

func TestMonitorInvalidEndpoint(t *testing.T) {
	zctx := newTestContext(t)
	sck := newSocket(t, zctx, zsock.NewPair)
	err := sck.Monitor("tcp://127.0.0.1:5555", zsock.EventAll)
	assert.ErrorIs(t, err, zsock.ErrInvalidEndpoint)
	assert.NoError(t, sck.Monitor("", zsock.EventAll))
}

// TestHeartbeatTimeout connects a raw peer which completes the NULL
// handshake but never answers PINGs.
func TestHeartbeatTimeout(t *testing.T) {
	const (
		ivl     = 100 * time.Millisecond
		timeout = 300 * time.Millisecond
	)
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	pull := newSocket(t, zctx, zsock.NewPull,
		zsock.WithHeartbeatIVL(ivl),
		zsock.WithHeartbeatTimeout(timeout),
	)
	mon := monitor(t, zctx, pull, zsock.EventAccepted|zsock.EventDisconnected)
	require.NoError(t, pull.Listen(ep))

	conn := testutil.DialTCP(t, ep, testTimeout)

	greeting, err := zmtp.NewGreeting(zmtp.Null, false).Marshal()
	require.NoError(t, err)
	md, err := zmtp.Metadata{zmtp.PropSocketType: string(zsock.Push)}.MarshalZMTP()
	require.NoError(t, err)
	ready, err := zmtp.CommandFrame(zmtp.Cmd{Name: zmtp.CmdReady, Body: md})
	require.NoError(t, err)
	_, err = conn.Write(append(greeting, zmtp.Encode(ready)...))
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		io.Copy(io.Discard, conn)
	}()

	start := time.Now()
	assert.Equal(t, zsock.EventAccepted, recvEvent(t, mon).Type)
	assert.Equal(t, zsock.EventDisconnected, recvEvent(t, mon).Type)
	assert.Less(t, time.Since(start), ivl+timeout+time.Second)

	select {
	case <-closed:
	case <-time.After(testTimeout):
		t.Fatalf("connection was not closed by the heartbeat timeout")
	}

	_, err = mon.RecvFlags(zsock.DontWait)
	assert.ErrorIs(t, err, zsock.ErrAgain)
}

func TestHandshakeFailedProtocol(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	pull := newSocket(t, zctx, zsock.NewPull)
	mon := monitor(t, zctx, pull, zsock.EventHandshakeFailedProtocol)
	require.NoError(t, pull.Listen(ep))

	conn := testutil.DialTCP(t, ep, testTimeout)
	_, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	ev := recvEvent(t, mon)
	assert.Equal(t, zsock.EventHandshakeFailedProtocol, ev.Type)
}

func TestHandshakeTimeout(t *testing.T) {
	const ivl = 200 * time.Millisecond
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	pull := newSocket(t, zctx, zsock.NewPull)
	require.NoError(t, pull.SetOption(zsock.OptionHandshakeIVL, ivl))
	mon := monitor(t, zctx, pull, zsock.EventAccepted|zsock.EventHandshakeFailedNoDetail|zsock.EventDisconnected)
	require.NoError(t, pull.Listen(ep))

	// the peer connects but never sends its greeting
	start := time.Now()
	conn := testutil.DialTCP(t, ep, testTimeout)

	for _, want := range []zsock.EventType{
		zsock.EventAccepted,
		zsock.EventHandshakeFailedNoDetail,
		zsock.EventDisconnected,
	} {
		ev := recvEvent(t, mon)
		assert.Equal(t, want, ev.Type, "got %v", ev.Type)
	}
	assert.GreaterOrEqual(t, time.Since(start), ivl)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	_, err := io.Copy(io.Discard, conn)
	assert.NoError(t, err, "connection closed by the server")
}

func TestReconnectBackoff(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.MustEndpoint(t)
	push := newSocket(t, zctx, zsock.NewPush, zsock.WithReconnectIVL(10*time.Millisecond, 40*time.Millisecond))
	mon := monitor(t, zctx, push, zsock.EventConnectRetried)

	// nothing listens on ep: every attempt fails and the interval doubles
	require.NoError(t, push.Dial(ep))
	for _, want := range []uint32{10, 20, 40, 40} {
		ev := recvEvent(t, mon)
		assert.Equal(t, zsock.EventConnectRetried, ev.Type)
		assert.Equal(t, want, ev.Value)
		assert.Equal(t, ep, ev.Endpoint)
	}
}

func TestEventEncoding(t *testing.T) {
	ev := zsock.Event{Type: zsock.EventConnectRetried, Value: 200, Endpoint: "tcp://127.0.0.1:5555"}
	msg := ev.Msg()
	require.Len(t, msg.Frames, 2)
	assert.Equal(t, []byte{0x04, 0x00, 0xc8, 0x00, 0x00, 0x00}, msg.Frames[0])

	got, err := zsock.ParseEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	_, err = zsock.ParseEvent(zsock.NewMsgString("short"))
	assert.Error(t, err)

	assert.Equal(t, "CONNECTED|LISTENING", (zsock.EventConnected | zsock.EventListening).String())
	assert.Equal(t, "EventType(0x0)", zsock.EventType(0).String())
}
