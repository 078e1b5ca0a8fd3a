// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport executes one Matrix client-server request/response
// exchange over a pluggable medium.
//
// The package defines one interface, [Client], with a single method
// SendRequest. Callers (the sync loop, foreground user actions) hold a
// Client and never know which medium carries their request. Two
// implementations exist:
//
//   - [DirectTransport] issues the request over HTTP to the homeserver,
//     optionally through a custom [Dialer] (a Unix socket to a local
//     proxy, for example).
//   - [RelayTransport] forwards the request to a cooperating external
//     process through a [RelayForwarder] and waits for the completed
//     response on a [RelayQueue] that the process feeds.
//
// Both enforce the same contract. A request that requires auth with no
// session in the [messaging.SessionHandle] fails with
// [ErrUnauthenticated] before any I/O. Every wait is bounded by a
// finite timeout and by the caller's context. Non-2xx homeserver
// statuses are returned as a [Response], not an error; transports do
// not interpret body bytes. [Response.MatrixError] decodes the standard
// error body for callers that want it. Neither transport retries.
//
// Relayed requests carry a UUID correlation ID. A single dispatcher
// goroutine, the queue's only consumer, routes each response to the
// one-shot slot of the caller that owns the ID, so concurrent callers
// are never cross-wired. Slots are released on every exit path.
//
// [SocketRelay] connects both relay halves to a relay process over a
// Unix socket, framing [RelayRequest] and [RelayResponse] values as
// CBOR.
//
// All failures are [*Error] values that unwrap to one of the sentinel
// errors ([ErrUnauthenticated], [ErrConnectionFailed], [ErrTimeout],
// [ErrRelayClosed], [ErrMalformedResponse]) and to the underlying
// cause, so errors.Is works for either.
package transport
