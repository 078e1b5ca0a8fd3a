// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package state holds the durable client-side Matrix state and the
// stores that persist it between process restarts.
//
// [ClientState] is the client-wide snapshot: session, sync token,
// ignored users, and push rules. [Snapshot] builds one from the
// client's live fields without reaching into its internals. [Room] is
// the per-room record, updated from state events by [Room.ApplyEvent];
// [ApplyAndEmit] additionally notifies an [EventEmitter].
//
// [Store] is the persistence contract. Every operation takes the
// storage root, so one Store value can serve several accounts. Two
// backends exist:
//
//   - [JSONStore] writes one JSON file for the client state and one per
//     room, each replaced atomically via lib/atomicfile.
//   - [SQLiteStore] keeps both in a single SQLite database with each
//     record compressed and guarded by a BLAKE3 digest.
//
// Corruption is always distinguishable from absence: a missing room is
// [ErrNotFound], an undecodable one is [ErrCorrupt], and a missing
// client state is the zero ClientState. Stores do not serialize
// writers; the owning client issues at most one write per key at a
// time.
package state
