// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the standard SQLite connection pool used
// by the SQLite state backend.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool with fixed pragmas:
// WAL journaling (readers never block the writer), a 5 second busy
// timeout, an 8 MB page cache, and in-memory temp storage. Callers
// [Pool.Take] a connection, perform work, and [Pool.Put] it back.
// Connections are NOT safe for concurrent use.
//
// Synchronous mode is NORMAL by default, which survives process
// crashes. [Config].Durable selects FULL, which also survives OS
// crashes and power loss at the cost of an fsync per commit. Persisted
// client state (session credentials, sync token) is small and written
// rarely, so the state backend opens its pool durable.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:    filepath.Join(root, "state.db"),
//	    Durable: true,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//
// The package is intentionally thin: callers write SQL, use
// sqlitex.Execute for cached statements, and manage transactions with
// sqlitex.ImmediateTransaction.
package sqlitepool
