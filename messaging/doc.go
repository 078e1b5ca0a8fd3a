// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging holds the Matrix identity a client acts as and the
// structured errors a homeserver returns.
//
// [Session] is the credential triple issued at login: user ID, device
// ID, and access token. It is immutable once issued. Transports read
// it through a [SessionHandle], a read-mostly shared reference guarded
// by a sync.RWMutex: every request takes a read lock long enough to
// copy the session out, while login, re-authentication, and logout are
// the rare writes.
//
// All homeserver API errors share one JSON shape ({"errcode", "error"}),
// decoded into [*MatrixError]. [ParseMatrixError] builds one from a
// status code and response body; [IsMatrixError] tests for a specific
// error code through any wrapping.
package messaging
