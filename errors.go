// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"errors"
	"fmt"
)

var (
	errEmptyMsg = errors.New("zsock: empty message")

	ErrAgain           = errors.New("zsock: resource temporarily unavailable")
	ErrTerminated      = errors.New("zsock: context was terminated")
	ErrCanceled        = errors.New("zsock: operation canceled")
	ErrNotSupported    = errors.New("zsock: operation not supported by socket")
	ErrFSM             = errors.New("zsock: operation cannot be accomplished in current state")
	ErrHostUnreachable = errors.New("zsock: host unreachable")
	ErrClosed          = errors.New("zsock: socket closed")
	ErrAddrInUse       = errors.New("zsock: address already in use")
	ErrInvalidEndpoint = errors.New("zsock: invalid endpoint")
	ErrBadProperty     = errors.New("zsock: bad property")
	ErrMultipart       = errors.New("zsock: multipart messages not supported by socket")
	ErrTooManySockets  = errors.New("zsock: too many open sockets")

	// ErrNoPeer is returned when a message is routed to an unknown
	// routing id. It matches ErrHostUnreachable.
	ErrNoPeer = fmt.Errorf("zsock: unknown routing id: %w", ErrHostUnreachable)
)

// UnknownTransportError records an error when trying to
// use an unknown transport.
type UnknownTransportError struct {
	Name string
}

func (ute UnknownTransportError) Error() string {
	return fmt.Sprintf("zsock: unknown transport %q", ute.Name)
}

var _ error = (*UnknownTransportError)(nil)
