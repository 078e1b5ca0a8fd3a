// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/p2pmatrix/lib/atomicfile"
	"github.com/bureau-foundation/p2pmatrix/lib/ref"
)

// JSONStore layout under the root.
const (
	clientStateFile = "client.json"
	roomsDirectory  = "rooms"
	roomFileSuffix  = ".json"
)

// JSONStore keeps each record in its own JSON file:
//
//	<root>/client.json
//	<root>/rooms/<query-escaped room ID>.json
//
// Files are compact JSON with a trailing newline, replaced with
// atomicfile.WriteFile. JSONStore holds no per-root state; one value
// serves any number of roots.
type JSONStore struct {
	logger *slog.Logger
}

var _ Store = (*JSONStore)(nil)

// NewJSONStore creates a JSONStore. A nil logger discards.
func NewJSONStore(logger *slog.Logger) *JSONStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &JSONStore{logger: logger}
}

// Open creates root and its rooms directory, checks that root is a
// writable directory, and removes temporary files left by interrupted
// writes.
func (s *JSONStore) Open(ctx context.Context, root string) error {
	if root == "" {
		return storeError(ErrStoreUnavailable, "open", root, errors.New("empty path"))
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return storeError(ErrStoreUnavailable, "open", root, errors.New("not a directory"))
	}
	roomsPath := filepath.Join(root, roomsDirectory)
	if err := os.MkdirAll(roomsPath, 0o700); err != nil {
		return storeError(ErrStoreUnavailable, "open", root, err)
	}

	writeCheck, err := os.CreateTemp(root, ".writable-*")
	if err != nil {
		return storeError(ErrStoreUnavailable, "open", root, fmt.Errorf("not writable: %w", err))
	}
	writeCheck.Close()
	os.Remove(writeCheck.Name())

	for _, directory := range []string{root, roomsPath} {
		removed, err := atomicfile.RemoveStale(directory)
		if err != nil {
			return storeError(ErrStoreUnavailable, "open", directory, err)
		}
		if removed > 0 {
			s.logger.Info("removed interrupted state writes", "path", directory, "count", removed)
		}
	}
	return nil
}

// LoadClientState reads client.json.
func (s *JSONStore) LoadClientState(ctx context.Context, root string) (ClientState, error) {
	path := filepath.Join(root, clientStateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ClientState{}, nil
		}
		return ClientState{}, storeError(ErrStoreUnavailable, "load client state", path, err)
	}
	var state ClientState
	if err := json.Unmarshal(data, &state); err != nil {
		return ClientState{}, storeError(ErrCorrupt, "load client state", path, err)
	}
	return state, nil
}

// LoadRoomState reads one room file.
func (s *JSONStore) LoadRoomState(ctx context.Context, root string, roomID ref.RoomID) (*Room, error) {
	if roomID.IsZero() {
		return nil, storeError(ErrNotFound, "load room state", root, errors.New("empty room ID"))
	}
	path := s.roomPath(root, roomID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storeError(ErrNotFound, "load room state", path, nil)
		}
		return nil, storeError(ErrStoreUnavailable, "load room state", path, err)
	}
	return decodeRoomFile(path, roomID, data)
}

// LoadAllRooms reads every room file. Non-JSON files and leftover
// temporaries are skipped.
func (s *JSONStore) LoadAllRooms(ctx context.Context, root string) (map[ref.RoomID]*Room, error) {
	roomsPath := filepath.Join(root, roomsDirectory)
	rooms := make(map[ref.RoomID]*Room)

	entries, err := os.ReadDir(roomsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rooms, nil
		}
		return nil, storeError(ErrStoreUnavailable, "load all rooms", roomsPath, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || atomicfile.IsTemporary(name) || !strings.HasSuffix(name, roomFileSuffix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(roomsPath, name)
		roomID, err := roomIDFromFile(name)
		if err != nil {
			return nil, storeError(ErrCorrupt, "load all rooms", path, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, storeError(ErrStoreUnavailable, "load all rooms", path, err)
		}
		room, err := decodeRoomFile(path, roomID, data)
		if err != nil {
			return nil, err
		}
		rooms[roomID] = room
	}
	return rooms, nil
}

// StoreClientState replaces client.json.
func (s *JSONStore) StoreClientState(ctx context.Context, root string, state ClientState) error {
	path := filepath.Join(root, clientStateFile)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("state: encoding client state: %w", err)
	}
	if err := atomicfile.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return storeError(ErrStoreUnavailable, "store client state", path, err)
	}
	return nil
}

// StoreRoomState replaces one room file.
func (s *JSONStore) StoreRoomState(ctx context.Context, root string, room *Room) error {
	if room == nil || room.RoomID.IsZero() {
		return fmt.Errorf("state: storing room with no room ID")
	}
	path := s.roomPath(root, room.RoomID)
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("state: encoding room %s: %w", room.RoomID, err)
	}
	if err := atomicfile.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return storeError(ErrStoreUnavailable, "store room state", path, err)
	}
	return nil
}

func (s *JSONStore) roomPath(root string, roomID ref.RoomID) string {
	return filepath.Join(root, roomsDirectory, url.QueryEscape(roomID.String())+roomFileSuffix)
}

func roomIDFromFile(name string) (ref.RoomID, error) {
	raw, err := url.QueryUnescape(strings.TrimSuffix(name, roomFileSuffix))
	if err != nil {
		return ref.RoomID{}, err
	}
	return ref.ParseRoomID(raw)
}

// decodeRoomFile decodes a room record and checks it belongs to
// roomID.
func decodeRoomFile(path string, roomID ref.RoomID, data []byte) (*Room, error) {
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, storeError(ErrCorrupt, "load room state", path, err)
	}
	if room.RoomID != roomID {
		return nil, storeError(ErrCorrupt, "load room state", path,
			fmt.Errorf("record holds room %q", room.RoomID))
	}
	return &room, nil
}
