// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/zsock/internal/testutil"
	"github.com/destiny/zsock/zmtp"
)

func newPair(t *testing.T, user, pass string, zap bool) (cli, srv zmtp.Mechanism) {
	t.Helper()
	var err error
	cli, err = Security(user, pass).NewMechanism(zmtp.Config{
		Metadata: zmtp.Metadata{zmtp.PropSocketType: "DEALER"},
	})
	require.NoError(t, err)
	srv, err = ServerSecurity().NewMechanism(zmtp.Config{
		Metadata:  zmtp.Metadata{zmtp.PropSocketType: "ROUTER"},
		ZAP:       zap,
		ZAPDomain: "global",
	})
	require.NoError(t, err)
	return cli, srv
}

func TestSecurity(t *testing.T) {
	assert.Equal(t, zmtp.Plain, Security("u", "p").Type())
	assert.False(t, Security("u", "p").AsServer())
	assert.True(t, ServerSecurity().AsServer())

	_, err := Security(strings.Repeat("u", 256), "p").NewMechanism(zmtp.Config{})
	assert.Error(t, err)
}

func TestHandshakeNoZAP(t *testing.T) {
	cli, srv := newPair(t, "admin", "secret", false)
	cerr, serr := testutil.Handshake(cli, srv, nil)
	require.NoError(t, cerr)
	require.NoError(t, serr)
	assert.Equal(t, zmtp.Ready, cli.Status())
	assert.Equal(t, zmtp.Ready, srv.Status())

	v, _ := srv.PeerMetadata().Get(zmtp.PropSocketType)
	assert.Equal(t, "DEALER", v)
	v, _ = cli.PeerMetadata().Get(zmtp.PropSocketType)
	assert.Equal(t, "ROUTER", v)
}

func TestHandshakeZAP(t *testing.T) {
	check := func(req zmtp.ZAPRequest) zmtp.ZAPReply {
		if len(req.Credentials) == 2 && string(req.Credentials[0]) == "admin" && string(req.Credentials[1]) == "secret" {
			return testutil.ZAPAllow("admin")(req)
		}
		return testutil.ZAPDeny(req)
	}

	for _, tc := range []struct {
		name string
		user string
		pass string
		ok   bool
	}{
		{"valid", "admin", "secret", true},
		{"bad-password", "admin", "guess", false},
		{"empty", "", "", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cli, srv := newPair(t, tc.user, tc.pass, true)
			cerr, serr := testutil.Handshake(cli, srv, check)
			if tc.ok {
				require.NoError(t, cerr)
				require.NoError(t, serr)
				assert.Equal(t, "admin", srv.UserID())
				return
			}
			var aerr *zmtp.AuthError
			require.ErrorAs(t, serr, &aerr)
			require.ErrorAs(t, cerr, &aerr)
			assert.Equal(t, 400, aerr.Status)
			assert.Equal(t, zmtp.Failed, cli.Status())
		})
	}
}

func TestInvalidHello(t *testing.T) {
	_, srv := newPair(t, "u", "p", false)
	err := srv.ProcessHandshakeCommand(zmtp.Cmd{Name: zmtp.CmdHello, Body: []byte{5, 'a'}})
	var perr *zmtp.ProtocolError
	require.ErrorAs(t, err, &perr)

	cmd, err := srv.NextHandshakeCommand()
	require.NoError(t, err)
	assert.Equal(t, zmtp.CmdError, cmd.Name)
	assert.Equal(t, zmtp.Failed, srv.Status())
}

func TestParseHello(t *testing.T) {
	user, pass, err := parseHello([]byte("\x05admin\x06secret"))
	require.NoError(t, err)
	assert.Equal(t, "admin", string(user))
	assert.Equal(t, "secret", string(pass))

	for _, bad := range []string{"", "\x05adm", "\x05admin", "\x05admin\x02x"} {
		_, _, err := parseHello([]byte(bad))
		assert.Error(t, err, "%q", bad)
	}
}
