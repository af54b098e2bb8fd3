// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
)

func TestRouterEnvelope(t *testing.T) {
	for _, ep := range endpoints(t, "router") {
		ep := ep
		t.Run(transportName(ep), func(t *testing.T) {
			zctx := newTestContext(t)
			router := newSocket(t, zctx, zsock.NewRouter)
			require.NoError(t, router.Listen(ep))

			const n = 10
			peers := []string{"alice", "bob"}
			grp, _ := errgroup.WithContext(context.Background())
			for _, name := range peers {
				dealer := newSocket(t, zctx, zsock.NewDealer, zsock.WithID(zsock.SocketIdentity(name)))
				require.NoError(t, dealer.Dial(ep))
				name := name
				grp.Go(func() error {
					for i := 0; i < n; i++ {
						body := fmt.Sprintf("%s-%d", name, i)
						if err := dealer.Send(zsock.NewMsgString(body)); err != nil {
							return err
						}
						msg, err := dealer.Recv()
						if err != nil {
							return fmt.Errorf("%s: could not recv: %w", name, err)
						}
						if got, want := string(msg.Frames[0]), "re:"+body; got != want {
							return fmt.Errorf("%s: got %q, want %q", name, got, want)
						}
					}
					return nil
				})
			}

			for i := 0; i < n*len(peers); i++ {
				msg, err := router.Recv()
				require.NoError(t, err)
				require.Len(t, msg.Frames, 2)
				id, body := msg.Frames[0], msg.Frames[1]
				assert.Contains(t, string(body), string(id))
				reply := zsock.NewMsgFrom(id, []byte("re:"+string(body)))
				require.NoError(t, router.Send(reply))
			}
			require.NoError(t, grp.Wait())
		})
	}
}

func TestRouterMandatory(t *testing.T) {
	zctx := newTestContext(t)
	router := newSocket(t, zctx, zsock.NewRouter)

	// unknown peers are silently dropped by default
	require.NoError(t, router.Send(zsock.NewMsgFrom([]byte("nobody"), []byte("hello"))))

	require.NoError(t, router.SetOption(zsock.OptionRouterMandatory, true))
	err := router.Send(zsock.NewMsgFrom([]byte("nobody"), []byte("hello")))
	assert.ErrorIs(t, err, zsock.ErrHostUnreachable)
}

func TestRouterGeneratedIdentity(t *testing.T) {
	zctx := newTestContext(t)
	ep := testutil.InprocEndpoint("router-id")
	router := newSocket(t, zctx, zsock.NewRouter)
	dealer := newSocket(t, zctx, zsock.NewDealer)
	require.NoError(t, router.Listen(ep))
	require.NoError(t, dealer.Dial(ep))

	require.NoError(t, dealer.Send(zsock.NewMsgString("hi")))
	msg, err := router.Recv()
	require.NoError(t, err)
	require.Len(t, msg.Frames, 2)
	id := msg.Frames[0]
	require.Len(t, id, 5)
	assert.Equal(t, byte(0), id[0])

	require.NoError(t, router.Send(zsock.NewMsgFrom(id, []byte("back"))))
	msg, err = dealer.Recv()
	require.NoError(t, err)
	assert.Equal(t, "back", string(msg.Frames[0]))
}

func TestRouterDialedIdentity(t *testing.T) {
	for _, ep := range endpoints(t, "router-dial") {
		ep := ep
		t.Run(transportName(ep), func(t *testing.T) {
			zctx := newTestContext(t)
			dealer := newSocket(t, zctx, zsock.NewDealer, zsock.WithID(zsock.SocketIdentity("A")))
			router := newSocket(t, zctx, zsock.NewRouter)
			require.NoError(t, dealer.Listen(ep))
			require.NoError(t, router.Dial(ep))

			require.NoError(t, dealer.Send(zsock.NewMsgString("hello")))
			msg, err := router.Recv()
			require.NoError(t, err)
			require.Len(t, msg.Frames, 2)
			assert.Equal(t, "A", string(msg.Frames[0]))

			require.NoError(t, router.SetOption(zsock.OptionRouterMandatory, true))
			require.NoError(t, router.Send(zsock.NewMsgFrom([]byte("A"), []byte("world"))))
			msg, err = dealer.Recv()
			require.NoError(t, err)
			assert.Equal(t, "world", string(msg.Frames[0]))
		})
	}
}
