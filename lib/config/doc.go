// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for p2pmatrix
// clients and tools.
//
// Configuration is loaded from a single file specified by either the
// P2PMATRIX_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The file selects the homeserver, the transport (direct HTTP or the
// relay fed by an external peer process), and the state store backend
// (JSON files or SQLite). Environment-specific sections (development,
// production) override base values when [Config].Environment matches.
// Production without an explicit section defaults to the SQLite
// backend.
//
// ${HOME}, ${P2PMATRIX_ROOT}, and ${VAR:-default} patterns are
// expanded in path fields after loading. No other environment
// variables override config values.
//
// This package depends on no other p2pmatrix packages.
package config
