// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestIOThreadTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	io := newIOThread(0, DevNullLogger)
	defer io.stop()

	var (
		mu    sync.Mutex
		fired []string
		done  = make(chan struct{})
	)
	record := func(name string) func() {
		return func() {
			mu.Lock()
			fired = append(fired, name)
			mu.Unlock()
		}
	}

	io.post(func() {
		io.addTimer(30*time.Millisecond, record("late"))
		io.addTimer(10*time.Millisecond, record("early"))
		canceled := io.addTimer(20*time.Millisecond, record("canceled"))
		io.cancelTimer(canceled)
		io.cancelTimer(canceled)
		io.addTimer(40*time.Millisecond, func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timers did not fire")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"early", "late"}, fired)
}

func TestIOThreadPostOrder(t *testing.T) {
	io := newIOThread(0, DevNullLogger)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		io.post(func() { got = append(got, i) })
	}
	// queued tasks run before the thread stops
	io.stop()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}
