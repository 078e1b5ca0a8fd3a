// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
)

// Store persists client and room state under a caller-supplied root.
//
// Open must succeed on a root before the other operations are used on
// it. Writes replace whole records atomically: after a crash a record
// is either the previous or the new version, never a mix. Stores do
// not serialize writers to the same key.
type Store interface {
	// Open validates or creates the storage root. Idempotent. Fails
	// with ErrStoreUnavailable if the root cannot be used.
	Open(ctx context.Context, root string) error

	// LoadClientState returns the persisted client state, or the zero
	// ClientState if none has been stored.
	LoadClientState(ctx context.Context, root string) (ClientState, error)

	// LoadRoomState returns one room, or ErrNotFound.
	LoadRoomState(ctx context.Context, root string, roomID ref.RoomID) (*Room, error)

	// LoadAllRooms returns every persisted room, including left ones.
	// The map is empty, not nil, when no rooms are stored.
	LoadAllRooms(ctx context.Context, root string) (map[ref.RoomID]*Room, error)

	// StoreClientState replaces the client state.
	StoreClientState(ctx context.Context, root string, state ClientState) error

	// StoreRoomState replaces one room's record.
	StoreRoomState(ctx context.Context, root string, room *Room) error
}
