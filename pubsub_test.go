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
)

// waitSubscribed subscribes sub to probe and publishes probe until sub
// receives it. The probe topic is unsubscribed before returning.
func waitSubscribed(t *testing.T, pub, sub zsock.Socket, probe string) {
	t.Helper()
	require.NoError(t, sub.SetOption(zsock.OptionSubscribe, probe))
	defer func() {
		require.NoError(t, sub.SetOption(zsock.OptionUnsubscribe, probe))
	}()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		require.NoError(t, pub.Send(zsock.NewMsgString(probe)))
		time.Sleep(10 * time.Millisecond)
		msg, err := sub.RecvFlags(zsock.DontWait)
		if errors.Is(err, zsock.ErrAgain) {
			continue
		}
		require.NoError(t, err)
		require.Equal(t, probe, string(msg.Frames[0]))
		return
	}
	t.Fatalf("subscription to %q never reached the publisher", probe)
}

func TestPubSub(t *testing.T) {
	for _, ep := range endpoints(t, "pubsub") {
		ep := ep
		t.Run(transportName(ep), func(t *testing.T) {
			zctx := newTestContext(t)
			pub := newSocket(t, zctx, zsock.NewPub)
			sub := newSocket(t, zctx, zsock.NewSub)
			require.NoError(t, pub.Listen(ep))
			require.NoError(t, sub.Dial(ep))
			require.NoError(t, sub.SetOption(zsock.OptionSubscribe, "news."))
			waitSubscribed(t, pub, sub, "probe")

			for _, topic := range []string{"sport.1", "news.1", "weather", "news.2"} {
				require.NoError(t, pub.Send(zsock.NewMsgFrom([]byte(topic), []byte("body"))))
			}
			for _, want := range []string{"news.1", "news.2"} {
				msg, err := sub.Recv()
				require.NoError(t, err)
				assert.Equal(t, [][]byte{[]byte(want), []byte("body")}, msg.Frames)
			}

			topics := sub.(zsock.Topics).Topics()
			assert.Equal(t, []string{"news."}, topics)

			_, err := pub.Recv()
			assert.ErrorIs(t, err, zsock.ErrNotSupported)
			assert.ErrorIs(t, sub.Send(zsock.NewMsgString("x")), zsock.ErrNotSupported)
		})
	}
}

func TestPubHWMDropsSlowSubscriber(t *testing.T) {
	const hwm = 2
	zctx := newTestContext(t)
	ep := testutil.InprocEndpoint("pub-hwm")
	pub := newSocket(t, zctx, zsock.NewPub, zsock.WithHWM(hwm))
	fast := newSocket(t, zctx, zsock.NewSub, zsock.WithHWM(hwm))
	slow := newSocket(t, zctx, zsock.NewSub, zsock.WithHWM(hwm))
	require.NoError(t, pub.Listen(ep))
	for _, sub := range []zsock.Socket{fast, slow} {
		require.NoError(t, sub.SetOption(zsock.OptionSubscribe, ""))
		require.NoError(t, sub.Dial(ep))
	}

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, pub.SendFlags(zsock.NewMsg([]byte{byte(i)}), zsock.DontWait))
		msg, err := fast.Recv()
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, msg.Frames[0])
	}

	// an inproc pipe holds the sender's and the receiver's high-water marks
	for i := 0; i < 2*hwm; i++ {
		msg, err := slow.RecvFlags(zsock.DontWait)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, msg.Frames[0])
	}
	_, err := slow.RecvFlags(zsock.DontWait)
	assert.ErrorIs(t, err, zsock.ErrAgain)
}

func TestXPubSubscriptions(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.InprocEndpoint("xpub")
	xpub := newSocket(t, zctx, zsock.NewXPub)
	sub1 := newSocket(t, zctx, zsock.NewSub)
	sub2 := newSocket(t, zctx, zsock.NewSub)
	require.NoError(t, xpub.Listen(ep))
	require.NoError(t, sub1.Dial(ep))
	require.NoError(t, sub2.Dial(ep))

	require.NoError(t, sub1.SetOption(zsock.OptionSubscribe, "a"))
	require.NoError(t, sub2.SetOption(zsock.OptionSubscribe, "a"))
	msg, err := xpub.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x01a"), msg.Frames[0])

	// duplicates are only forwarded when verbose
	_, err = xpub.RecvFlags(zsock.DontWait)
	assert.ErrorIs(t, err, zsock.ErrAgain)

	require.NoError(t, sub1.SetOption(zsock.OptionUnsubscribe, "a"))
	_, err = xpub.RecvFlags(zsock.DontWait)
	assert.ErrorIs(t, err, zsock.ErrAgain)

	require.NoError(t, sub2.Close())
	msg, err = xpub.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00a"), msg.Frames[0])
}

func TestXSubForwardsSubscriptions(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.InprocEndpoint("xsub")
	pub := newSocket(t, zctx, zsock.NewXPub)
	xsub := newSocket(t, zctx, zsock.NewXSub)
	require.NoError(t, pub.Listen(ep))
	require.NoError(t, xsub.Dial(ep))

	require.NoError(t, xsub.Send(zsock.NewMsg([]byte("\x01t"))))
	msg, err := pub.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x01t"), msg.Frames[0])

	require.NoError(t, pub.Send(zsock.NewMsgString("t1")))
	require.NoError(t, pub.Send(zsock.NewMsgString("u1")))
	msg, err = xsub.Recv()
	require.NoError(t, err)
	assert.Equal(t, "t1", string(msg.Frames[0]))
	_, err = xsub.RecvFlags(zsock.DontWait)
	assert.ErrorIs(t, err, zsock.ErrAgain)
}
