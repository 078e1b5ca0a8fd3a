// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// hangupErrnos are the socket errors a peer produces by going away.
var hangupErrnos = []syscall.Errno{syscall.EPIPE, syscall.ECONNRESET, syscall.ECONNABORTED}

// IsExpectedCloseError reports whether err means the peer hung up or
// the connection was closed locally. The relay socket treats these as
// the end of the relay rather than a protocol failure.
func IsExpectedCloseError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return true
	}
	for _, errno := range hangupErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
