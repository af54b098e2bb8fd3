// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/internal/testutil"
)

const testTimeout = 5 * time.Second

// newTestContext returns a non-blocky context terminated at the end of
// the test.
func newTestContext(t *testing.T) *zsock.Context {
	t.Helper()
	zctx := zsock.NewContext(zsock.WithBlockyTerm(false))
	t.Cleanup(func() {
		require.NoError(t, zctx.Term())
	})
	return zctx
}

type socketFunc func(*zsock.Context, ...zsock.Option) (zsock.Socket, error)

// newSocket creates a socket closed at the end of the test. Receives time
// out so that a broken test fails instead of hanging.
func newSocket(t *testing.T, zctx *zsock.Context, fct socketFunc, opts ...zsock.Option) zsock.Socket {
	t.Helper()
	opts = append([]zsock.Option{zsock.WithTimeout(testTimeout)}, opts...)
	sck, err := fct(zctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		sck.Close()
	})
	return sck
}

// endpoints returns one endpoint per transport under test.
func endpoints(t *testing.T, name string) []string {
	return []string{
		testutil.MustEndpoint(t),
		fmt.Sprintf("ipc://%s/%s.sock", t.TempDir(), name),
		testutil.InprocEndpoint(name),
	}
}

func transportName(ep string) string {
	for i := range ep {
		if ep[i] == ':' {
			return ep[:i]
		}
	}
	return ep
}
