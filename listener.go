// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"errors"
	"net"
	"os"
	"strings"
	"time"
)

// listener accepts the connections of one bound endpoint.
type listener struct {
	sock     *socketBase
	spec     string // endpoint as given to Listen
	endpoint string // resolved endpoint
	ln       net.Listener
	done     chan struct{}

	closed bool // guarded by sock.mu
}

func newListener(s *socketBase, spec, endpoint string, ln net.Listener) *listener {
	return &listener{
		sock:     s,
		spec:     spec,
		endpoint: endpoint,
		ln:       ln,
		done:     make(chan struct{}),
	}
}

func (l *listener) accept() {
	defer close(l.done)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.sock.log.Warn("could not accept connection on %s: %+v", l.endpoint, err)
			l.sock.event(EventAcceptFailed, errno(err), l.endpoint)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		l.sock.accepted(l, conn)
	}
}

// close stops accepting. It is called with sock.mu held.
func (l *listener) close() {
	if l.closed {
		return
	}
	l.closed = true
	l.ln.Close()

	// Remove the unix socket file if created by net.Listen
	if strings.HasPrefix(l.endpoint, "ipc://") {
		os.Remove(l.endpoint[len("ipc://"):])
	}
}
