// Copyright 2020 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport provides the stream transports zsock sockets run
// ZMTP over.
package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
)

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Transport is the zsock transport interface that wraps
// the Dial and Listen methods.
type Transport interface {
	Dial(ctx context.Context, dialer Dialer, addr string) (net.Conn, error)
	Listen(ctx context.Context, addr string) (net.Listener, error)

	// Addr validates and normalizes the address part of an endpoint.
	Addr(ep string) (addr string, err error)

	// Endpoint returns the endpoint string a listener is reachable at,
	// as reported by the LAST_ENDPOINT option.
	Endpoint(scheme string, l net.Listener) string
}

type netTransport struct {
	prot string
}

// New returns a new net-based transport with the given network (e.g "tcp").
func New(network string) Transport {
	return netTransport{prot: network}
}

func (trans netTransport) Dial(ctx context.Context, dialer Dialer, addr string) (net.Conn, error) {
	return dialer.DialContext(ctx, trans.prot, addr)
}

func (trans netTransport) Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, trans.prot, addr)
}

func (trans netTransport) Addr(ep string) (string, error) {
	switch trans.prot {
	case "tcp", "tcp4", "tcp6":
		host, port, err := net.SplitHostPort(ep)
		if err != nil {
			return "", fmt.Errorf("transport: invalid tcp address %q: %w", ep, err)
		}
		if port == "*" {
			port = "0"
		}
		if host == "*" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, port), nil
	case "unix":
		if ep == "" || strings.ContainsRune(ep, 0) {
			return "", fmt.Errorf("transport: invalid ipc path %q", ep)
		}
		return ep, nil
	}
	return ep, nil
}

func (trans netTransport) Endpoint(scheme string, l net.Listener) string {
	switch addr := l.Addr().(type) {
	case *net.TCPAddr:
		host := "0.0.0.0"
		if !addr.IP.IsUnspecified() {
			host = addr.IP.String()
		}
		return scheme + "://" + net.JoinHostPort(host, fmt.Sprint(addr.Port))
	default:
		return scheme + "://" + l.Addr().String()
	}
}

// Options tunes a freshly established connection.
type Options struct {
	// TOS is the IP type-of-service (DSCP) octet, 0 leaves it unset.
	TOS int
}

// Apply applies opts to conn.
func (opts Options) Apply(conn net.Conn) error {
	if opts.TOS == 0 {
		return nil
	}
	return setTOS(conn, opts.TOS)
}
