// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
)

func TestContextTermFlushes(t *testing.T) {
	defer goleak.VerifyNone(t)

	zctx := zsock.NewContext()
	ep := testutil.MustEndpoint(t)

	pull, err := zsock.NewPull(zctx, zsock.WithTimeout(testTimeout))
	require.NoError(t, err)
	require.NoError(t, pull.Listen(ep))

	push, err := zsock.NewPush(zctx)
	require.NoError(t, err)
	require.NoError(t, push.Dial(ep))

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, push.Send(zsock.NewMsgString(fmt.Sprint(i))))
	}
	// the default linger of a blocky context waits for the queue to drain
	require.NoError(t, push.Close())

	for i := 0; i < n; i++ {
		msg, err := pull.Recv()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(msg.Frames[0]))
	}
	require.NoError(t, pull.Close())
	require.NoError(t, zctx.Term())
}

func TestContextShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	zctx := zsock.NewContext(zsock.WithBlockyTerm(false), zsock.WithIOThreads(2))
	pull, err := zsock.NewPull(zctx)
	require.NoError(t, err)
	require.NoError(t, pull.Listen(testutil.MustEndpoint(t)))

	var grp errgroup.Group
	grp.Go(func() error {
		_, err := pull.Recv()
		if !errors.Is(err, zsock.ErrTerminated) {
			return fmt.Errorf("unexpected error: %w", err)
		}
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	zctx.Shutdown()
	require.NoError(t, grp.Wait())

	_, err = zsock.NewPush(zctx)
	assert.ErrorIs(t, err, zsock.ErrTerminated)

	require.NoError(t, pull.Close())
	require.NoError(t, zctx.Term())
}

func TestContextMaxSockets(t *testing.T) {
	zctx := zsock.NewContext(zsock.WithBlockyTerm(false), zsock.WithMaxSockets(2))
	defer zctx.Term()

	a, err := zsock.NewPair(zctx)
	require.NoError(t, err)
	b, err := zsock.NewPair(zctx)
	require.NoError(t, err)
	defer b.Close()

	_, err = zsock.NewPair(zctx)
	assert.ErrorIs(t, err, zsock.ErrTooManySockets)

	// closed sockets free their slot once reaped
	require.NoError(t, a.Close())
	testutil.WaitWithTimeout(t, func() bool {
		c, err := zsock.NewPair(zctx)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, testTimeout, 10*time.Millisecond)
}

func TestUnbindDisconnect(t *testing.T) {
	zctx := newTestContext(t)
	for _, ep := range endpoints(t, "unbind") {
		ep := ep
		t.Run(transportName(ep), func(t *testing.T) {
			pull := newSocket(t, zctx, zsock.NewPull)
			push := newSocket(t, zctx, zsock.NewPush)
			require.NoError(t, pull.Listen(ep))
			require.NoError(t, push.Dial(ep))

			require.NoError(t, push.Send(zsock.NewMsgString("before")))
			msg, err := pull.Recv()
			require.NoError(t, err)
			assert.Equal(t, "before", string(msg.Frames[0]))

			require.NoError(t, push.Disconnect(ep))
			assert.ErrorIs(t, push.Disconnect(ep), zsock.ErrInvalidEndpoint)
			require.NoError(t, pull.Unbind(ep))
			assert.ErrorIs(t, pull.Unbind(ep), zsock.ErrInvalidEndpoint)

			// the endpoint can be bound again
			other := newSocket(t, zctx, zsock.NewPull)
			require.NoError(t, other.Listen(ep))
		})
	}
}

func TestSocketOptions(t *testing.T) {
	zctx := newTestContext(t)
	sck := newSocket(t, zctx, zsock.NewDealer)

	for _, tc := range []struct {
		name string
		set  interface{}
		want interface{}
	}{
		{zsock.OptionSndHWM, 10, 10},
		{zsock.OptionRcvHWM, int64(20), 20},
		{zsock.OptionLinger, 100, 100 * time.Millisecond},
		{zsock.OptionRcvTimeo, 250 * time.Millisecond, 250 * time.Millisecond},
		{zsock.OptionRoutingID, "worker-1", []byte("worker-1")},
		{zsock.OptionHeartbeatIVL, 50 * time.Millisecond, 50 * time.Millisecond},
		{zsock.OptionImmediate, true, true},
		{zsock.OptionHelloMsg, "hi", []byte("hi")},
		{zsock.OptionDisconnectMsg, []byte("bye"), []byte("bye")},
		{zsock.OptionHiccupMsg, "oops", []byte("oops")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, sck.SetOption(tc.name, tc.set))
			got, err := sck.GetOption(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.ErrorIs(t, sck.SetOption("NO_SUCH_OPTION", 1), zsock.ErrBadProperty)
	assert.ErrorIs(t, sck.SetOption(zsock.OptionSndHWM, -1), zsock.ErrBadProperty)
	assert.ErrorIs(t, sck.SetOption(zsock.OptionSndHWM, "many"), zsock.ErrBadProperty)

	typ, err := sck.GetOption(zsock.OptionType)
	require.NoError(t, err)
	assert.Equal(t, zsock.Dealer, typ)

	require.NoError(t, sck.Close())
	assert.ErrorIs(t, sck.Close(), zsock.ErrClosed)
	assert.ErrorIs(t, sck.SetOption(zsock.OptionSndHWM, 1), zsock.ErrClosed)
	assert.ErrorIs(t, sck.Send(zsock.NewMsgString("x")), zsock.ErrClosed)
}

func TestInvalidEndpoints(t *testing.T) {
	zctx := newTestContext(t)
	sck := newSocket(t, zctx, zsock.NewPair)

	for _, ep := range []string{"", "tcp://", "127.0.0.1:80"} {
		assert.ErrorIs(t, sck.Listen(ep), zsock.ErrInvalidEndpoint, "endpoint %q", ep)
	}
	var unknown zsock.UnknownTransportError
	assert.True(t, errors.As(sck.Dial("pgm://eth0;239.192.1.1:5555"), &unknown))

	ep := testutil.InprocEndpoint("taken")
	require.NoError(t, sck.Listen(ep))
	other := newSocket(t, zctx, zsock.NewPair)
	assert.ErrorIs(t, other.Listen(ep), zsock.ErrAddrInUse)
}
