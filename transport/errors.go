// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means the request requires auth and no
	// session is present. Nothing was sent. Fix before retrying.
	ErrUnauthenticated = errors.New("transport: unauthenticated")

	// ErrConnectionFailed means the exchange failed below the protocol
	// level: dial, write, read, relay handoff, or caller cancellation.
	// Transient; the caller may retry with backoff.
	ErrConnectionFailed = errors.New("transport: connection failed")

	// ErrTimeout means the exchange did not complete within the
	// transport's bound. Transient.
	ErrTimeout = errors.New("transport: timeout")

	// ErrRelayClosed means the relay feed shut down permanently. It is
	// terminal for the RelayTransport instance.
	ErrRelayClosed = errors.New("transport: relay closed")

	// ErrMalformedResponse means the response violates the protocol
	// (oversized body, impossible status). Not retryable.
	ErrMalformedResponse = errors.New("transport: malformed response")
)

// Error describes a failed exchange. errors.Is matches both Kind and
// Cause.
type Error struct {
	// Kind is one of the package's sentinel errors.
	Kind error
	// Method and Path identify the request.
	Method string
	Path   string
	// Cause is the underlying failure, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: %s %s", e.Kind, e.Method, e.Path)
	}
	return fmt.Sprintf("%v: %s %s: %v", e.Kind, e.Method, e.Path, e.Cause)
}

// Unwrap returns the sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, request Request, cause error) *Error {
	return &Error{Kind: kind, Method: request.Method, Path: request.Path, Cause: cause}
}
