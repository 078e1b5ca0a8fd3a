// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides network and HTTP I/O utilities.
//
// Response helpers ([ReadResponse], [ReadResponseLimit]) bound body
// reads so a misbehaving homeserver or relay cannot exhaust memory.
// They are for JSON API responses, not streaming downloads.
//
// [IsExpectedCloseError] classifies errors that occur during normal
// connection teardown (EOF, closed connection, broken pipe, reset).
package netutil

import (
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize is the default bound on response body reads: 256 MB.
// Legitimate Matrix API responses, including large initial syncs, are
// orders of magnitude smaller.
const MaxResponseSize int64 = 256 << 20

// ErrResponseTooLarge is returned by ReadResponseLimit when the body
// exceeds the limit.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ReadResponse reads a response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return ReadResponseLimit(body, MaxResponseSize)
}

// ReadResponseLimit reads body up to limit bytes. Unlike a bare
// io.LimitReader, a body longer than limit is an error wrapping
// ErrResponseTooLarge rather than a silently truncated result.
func ReadResponseLimit(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, limit)
	}
	return data, nil
}
