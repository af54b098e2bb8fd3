// Copyright 2019 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	q := NewQueue()
	_, ok := q.Peek()
	assert.False(t, ok)
	assert.Panics(t, q.Pop)

	// spans several chunks
	const n = 3*innerCap + 7
	for i := 0; i < n; i++ {
		q.Push(NewMsgString(fmt.Sprint(i)))
	}
	require.Equal(t, n, q.Len())

	for i := 0; i < n; i++ {
		msg, ok := q.Peek()
		require.True(t, ok)
		require.Equal(t, fmt.Sprint(i), string(msg.Frames[0]))
		q.Pop()
	}
	assert.Equal(t, 0, q.Len())

	q.Push(NewMsgString("x"))
	q.Init()
	assert.Equal(t, 0, q.Len())
	_, ok = q.Peek()
	assert.False(t, ok)
}
