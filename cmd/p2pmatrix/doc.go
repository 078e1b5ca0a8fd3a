// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// P2pmatrix is the operator tool for a p2pmatrix client installation.
// It initializes and inspects the persisted client and room state,
// records or clears the session, and sends single Matrix requests
// over the configured transport (direct HTTP or the relay socket).
//
// Configuration comes from --config or P2PMATRIX_CONFIG; see
// lib/config for the file format.
//
// Exit codes:
//
//	0  success
//	1  error, or a request the homeserver answered with a non-2xx status
//	2  usage error
package main
