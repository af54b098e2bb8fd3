// Copyright 2020 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package transport

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func setTOS(conn net.Conn, tos int) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("transport: could not access raw conn: %w", err)
	}

	ipv6 := false
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		ipv6 = addr.IP.To4() == nil
	} else if _, ok := conn.LocalAddr().(*net.UnixAddr); ok {
		return nil
	}

	var serr error
	err = raw.Control(func(fd uintptr) {
		if ipv6 {
			serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
	})
	if err != nil {
		return fmt.Errorf("transport: could not set TOS: %w", err)
	}
	if serr != nil {
		return fmt.Errorf("transport: could not set TOS: %w", serr)
	}
	return nil
}
