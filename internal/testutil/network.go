// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testutil provides testing utilities for zsock sockets and
// security mechanisms.
package testutil

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var (
	portCounter   int64 = 20000
	inprocCounter int64
)

// GetAvailablePort returns an available TCP port for testing
func GetAvailablePort() (int, error) {
	basePort := atomic.AddInt64(&portCounter, 1)

	for i := 0; i < 100; i++ {
		port := int(basePort) + i
		if port > 65535 {
			port = 20000 + (port % 45535)
		}

		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available ports found in range")
}

// isPortAvailable checks if a TCP port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// GetTestEndpoint returns a test endpoint with an available port
func GetTestEndpoint() (string, error) {
	port, err := GetAvailablePort()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tcp://127.0.0.1:%d", port), nil
}

// MustEndpoint returns a TCP endpoint for the given test, failing it when
// no port is available.
func MustEndpoint(t testing.TB) string {
	t.Helper()
	ep, err := GetTestEndpoint()
	if err != nil {
		t.Fatalf("could not find a free port: %+v", err)
	}
	return ep
}

// InprocEndpoint returns a unique inproc endpoint.
func InprocEndpoint(name string) string {
	return fmt.Sprintf("inproc://%s-%d", name, atomic.AddInt64(&inprocCounter, 1))
}

// DialTCP opens a raw TCP connection to a tcp:// endpoint, retrying until
// it accepts connections. The connection is closed when the test ends.
func DialTCP(t testing.TB, endpoint string, timeout time.Duration) net.Conn {
	t.Helper()
	addr := strings.TrimPrefix(endpoint, "tcp://")
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("could not dial %s: %+v", endpoint, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
