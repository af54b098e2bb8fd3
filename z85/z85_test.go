// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package z85

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloWorld(t *testing.T) {
	raw := []byte{0x86, 0x4F, 0xD2, 0x6F, 0xB5, 0x59, 0xF7, 0x5B}

	s, err := EncodeToString(raw)
	require.NoError(t, err)
	assert.Equal(t, "HelloWorld", s)

	got, err := DecodeString("HelloWorld")
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 4, 8, 32, 64, 1024} {
		raw := make([]byte, n)
		_, err := rand.Read(raw)
		require.NoError(t, err)

		s, err := EncodeToString(raw)
		require.NoError(t, err)
		require.Len(t, s, EncodedLen(n))

		got, err := DecodeString(s)
		require.NoError(t, err)
		assert.Equal(t, raw, got, "n=%d", n)
	}
}

func TestInvalid(t *testing.T) {
	_, err := EncodeToString([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = DecodeString("Hell")
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = DecodeString("Hell\"")
	assert.ErrorIs(t, err, ErrInvalidChar)

	// "#####" decodes past 2^32.
	_, err = DecodeString("#####")
	assert.ErrorIs(t, err, ErrInvalidChar)

	_, err = Encode(make([]byte, 4), make([]byte, 8))
	assert.ErrorIs(t, err, ErrInvalidLength)
}
