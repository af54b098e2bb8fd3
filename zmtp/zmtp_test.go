// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreeting(t *testing.T) {
	for _, tc := range []Greeting{
		NewGreeting(Null, false),
		NewGreeting(Plain, true),
		NewGreeting(Curve, false),
	} {
		raw, err := tc.Marshal()
		require.NoError(t, err)
		require.Len(t, raw, GreetingSize)
		assert.Equal(t, byte(0xff), raw[0])
		assert.Equal(t, byte(0x7f), raw[9])

		got, err := ParseGreeting(raw)
		require.NoError(t, err)
		assert.Equal(t, tc, got)
		assert.True(t, got.Supports31())
	}
}

func TestGreetingInvalid(t *testing.T) {
	raw, err := NewGreeting(Null, false).Marshal()
	require.NoError(t, err)

	bad := append([]byte(nil), raw...)
	bad[0] = 'G'
	assert.ErrorIs(t, CheckSignature(bad[:1]), ErrGreeting)

	bad = append([]byte(nil), raw...)
	bad[10] = 2
	_, err = ParseGreeting(bad)
	assert.ErrorIs(t, err, ErrGreeting)

	bad = append([]byte(nil), raw...)
	bad[32] = 7
	_, err = ParseGreeting(bad)
	assert.ErrorIs(t, err, ErrGreeting)

	_, err = ParseGreeting(raw[:40])
	assert.ErrorIs(t, err, ErrGreeting)

	_, err = Greeting{Mechanism: "A-MECHANISM-NAME-TOO-LONG"}.Marshal()
	assert.ErrorIs(t, err, ErrGreeting)

	old := NewGreeting(Null, false)
	old.Minor = 0
	assert.False(t, old.Supports31())
}

func TestCmd(t *testing.T) {
	raw, err := Cmd{Name: CmdReady, Body: []byte("body")}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x05READYbody"), raw)

	cmd, err := ParseCmd(raw)
	require.NoError(t, err)
	assert.Equal(t, CmdReady, cmd.Name)
	assert.Equal(t, []byte("body"), cmd.Body)

	_, err = ParseCmd([]byte("\x09READY"))
	assert.ErrorIs(t, err, ErrBadCmd)

	_, err = Cmd{}.Marshal()
	assert.ErrorIs(t, err, ErrBadCmd)
}

func TestPing(t *testing.T) {
	ping := PingCmd(50, []byte("ctx"))
	ttl, ctx, err := ParsePing(ping.Body)
	require.NoError(t, err)
	assert.Equal(t, uint16(50), ttl)
	assert.Equal(t, []byte("ctx"), ctx)

	_, _, err = ParsePing([]byte{1})
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestPeerError(t *testing.T) {
	err := PeerError(ErrorCmd("400").Body)
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 400, aerr.Status)

	err = PeerError(ErrorCmd("invalid client").Body)
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 0, aerr.Status)
	assert.Equal(t, "invalid client", aerr.Reason)
}

func TestMetadata(t *testing.T) {
	md := Metadata{
		PropSocketType: "DEALER",
		PropIdentity:   "",
		"X-Hostname":   "localhost",
	}
	raw, err := md.MarshalZMTP()
	require.NoError(t, err)

	var got Metadata
	require.NoError(t, got.UnmarshalZMTP(raw))
	assert.Equal(t, md, got)

	v, ok := got.Get("socket-type")
	assert.True(t, ok)
	assert.Equal(t, "DEALER", v)

	_, err = Metadata{"key": "a", "KEY": "b"}.MarshalZMTP()
	assert.ErrorIs(t, err, errDupMDKey)

	err = got.UnmarshalZMTP(raw[:len(raw)-2])
	assert.Error(t, err)
}

func TestMetadataLargeValue(t *testing.T) {
	md := Metadata{"X-Blob": string(make([]byte, 4096))}
	raw, err := md.MarshalZMTP()
	require.NoError(t, err)

	var got Metadata
	require.NoError(t, got.UnmarshalZMTP(raw))
	assert.Len(t, got["X-Blob"], 4096)
}

func TestZAP(t *testing.T) {
	req := ZAPRequest{
		RequestID:   []byte("1"),
		Domain:      "global",
		Address:     "127.0.0.1",
		Mechanism:   Plain,
		Credentials: [][]byte{[]byte("admin"), []byte("secret")},
	}
	got, err := ParseZAPRequest(req.Frames())
	require.NoError(t, err)
	assert.Equal(t, req.Domain, got.Domain)
	assert.Equal(t, req.Credentials, got.Credentials)

	rep := ZAPReply{RequestID: []byte("1"), StatusCode: ZAPStatusFailure, StatusText: "denied"}
	frames, err := rep.Frames()
	require.NoError(t, err)
	back, err := ParseZAPReply(frames)
	require.NoError(t, err)
	assert.Equal(t, 400, back.Status())

	var aerr *AuthError
	require.ErrorAs(t, back.StatusError(), &aerr)
	assert.Equal(t, 400, aerr.Status)

	frames[2] = []byte("999")
	_, err = ParseZAPReply(frames)
	assert.Error(t, err)
}
