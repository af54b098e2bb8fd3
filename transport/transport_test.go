// Copyright 2020 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPAddr(t *testing.T) {
	trans := New("tcp")
	for _, tc := range []struct {
		ep   string
		want string
		err  bool
	}{
		{"127.0.0.1:5555", "127.0.0.1:5555", false},
		{"*:5555", "0.0.0.0:5555", false},
		{"*:*", "0.0.0.0:0", false},
		{"localhost", "", true},
	} {
		got, err := trans.Addr(tc.ep)
		if tc.err {
			assert.Error(t, err, tc.ep)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestListenEndpointTOS(t *testing.T) {
	trans := New("tcp")
	addr, err := trans.Addr("*:0")
	require.NoError(t, err)

	l, err := trans.Listen(context.Background(), addr)
	require.NoError(t, err)
	defer l.Close()

	ep := trans.Endpoint("tcp", l)
	assert.True(t, strings.HasPrefix(ep, "tcp://0.0.0.0:"), ep)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	conn, err := trans.Dial(context.Background(), &net.Dialer{}, "127.0.0.1"+ep[strings.LastIndex(ep, ":"):])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, Options{TOS: 0x28}.Apply(conn))

	if c := <-accepted; c != nil {
		c.Close()
	}
}
