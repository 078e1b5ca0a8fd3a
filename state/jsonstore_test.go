// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
)

func TestJSONStoreContract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return NewJSONStore(nil) })
}

func openJSONStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	store := NewJSONStore(nil)
	root := filepath.Join(t.TempDir(), "store")
	if err := store.Open(context.Background(), root); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, root
}

func TestJSONStoreLayout(t *testing.T) {
	store, root := openJSONStore(t)
	ctx := context.Background()

	token := "hello"
	state := ClientState{SyncToken: &token}
	state.AddIgnoredUser(exampleUser)
	if err := store.StoreClientState(ctx, root, state); err != nil {
		t.Fatalf("StoreClientState: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "client.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := `{"session":null,"sync_token":"hello","ignored_users":["@example:example.com"],"push_ruleset":null}` + "\n"
	if string(data) != want {
		t.Errorf("client.json = %q, want %q", data, want)
	}

	if err := store.StoreRoomState(ctx, root, NewRoom(exampleRoom, exampleUser, MembershipJoin)); err != nil {
		t.Fatalf("StoreRoomState: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "rooms", "%21roomid%3Aexample.com.json")); err != nil {
		t.Errorf("room file missing: %v", err)
	}
}

func TestJSONStoreCorruptClientState(t *testing.T) {
	store, root := openJSONStore(t)
	// A truncated write, as if the process died mid-write without
	// atomic replacement.
	if err := os.WriteFile(filepath.Join(root, "client.json"), []byte(`{"session":null,"sync_to`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := store.LoadClientState(context.Background(), root)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("LoadClientState = %v, want ErrCorrupt", err)
	}
}

func TestJSONStoreCorruptRoom(t *testing.T) {
	store, root := openJSONStore(t)
	ctx := context.Background()
	path := filepath.Join(root, "rooms", "%21roomid%3Aexample.com.json")

	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := store.LoadRoomState(ctx, root, exampleRoom); !errors.Is(err, ErrCorrupt) {
		t.Errorf("LoadRoomState = %v, want ErrCorrupt", err)
	}
	if _, err := store.LoadAllRooms(ctx, root); !errors.Is(err, ErrCorrupt) {
		t.Errorf("LoadAllRooms = %v, want ErrCorrupt", err)
	}
}

func TestJSONStoreRoomIDMismatch(t *testing.T) {
	store, root := openJSONStore(t)
	ctx := context.Background()

	other := NewRoom(exampleRoom, exampleUser, MembershipJoin)
	if err := store.StoreRoomState(ctx, root, other); err != nil {
		t.Fatalf("StoreRoomState: %v", err)
	}
	// Copy the record under another room's filename.
	data, err := os.ReadFile(filepath.Join(root, "rooms", "%21roomid%3Aexample.com.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "rooms", "%21elsewhere%3Aexample.com.json"), data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = store.LoadAllRooms(ctx, root)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("LoadAllRooms = %v, want ErrCorrupt", err)
	}
}

// TestJSONStoreInterruptedWrite leaves a partial temporary file behind,
// as a write killed before rename would, and checks that loads ignore
// it and Open sweeps it.
func TestJSONStoreInterruptedWrite(t *testing.T) {
	store, root := openJSONStore(t)
	ctx := context.Background()

	var state ClientState
	state.AdvanceSyncToken("committed")
	if err := store.StoreClientState(ctx, root, state); err != nil {
		t.Fatalf("StoreClientState: %v", err)
	}
	if err := store.StoreRoomState(ctx, root, NewRoom(exampleRoom, exampleUser, MembershipJoin)); err != nil {
		t.Fatalf("StoreRoomState: %v", err)
	}

	partialClient := filepath.Join(root, ".client.json.tmp-12345")
	partialRoom := filepath.Join(root, "rooms", ".%21roomid%3Aexample.com.json.tmp-678")
	for _, path := range []string{partialClient, partialRoom} {
		if err := os.WriteFile(path, []byte(`{"session":nu`), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	loaded, err := store.LoadClientState(ctx, root)
	if err != nil {
		t.Fatalf("LoadClientState with stray temp file: %v", err)
	}
	if *loaded.SyncToken != "committed" {
		t.Errorf("SyncToken = %q", *loaded.SyncToken)
	}
	rooms, err := store.LoadAllRooms(ctx, root)
	if err != nil {
		t.Fatalf("LoadAllRooms with stray temp file: %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("LoadAllRooms found %d rooms, want 1", len(rooms))
	}

	if err := store.Open(ctx, root); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for _, path := range []string{partialClient, partialRoom} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s survived Open: %v", filepath.Base(path), err)
		}
	}
}

// A room whose server name contains the temporary-file suffix must not
// be mistaken for a leftover partial write.
func TestJSONStoreRoomIDContainingTempMarker(t *testing.T) {
	store, root := openJSONStore(t)
	ctx := context.Background()

	roomID := ref.MustParseRoomID("!abc:matrix.tmp-host.org")
	if err := store.StoreRoomState(ctx, root, NewRoom(roomID, exampleUser, MembershipJoin)); err != nil {
		t.Fatalf("StoreRoomState: %v", err)
	}

	rooms, err := store.LoadAllRooms(ctx, root)
	if err != nil {
		t.Fatalf("LoadAllRooms: %v", err)
	}
	if _, ok := rooms[roomID]; !ok || len(rooms) != 1 {
		t.Fatalf("LoadAllRooms = %v, want only %s", rooms, roomID)
	}

	if err := store.Open(ctx, root); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	room, err := store.LoadRoomState(ctx, root, roomID)
	if err != nil {
		t.Fatalf("LoadRoomState after reopen: %v", err)
	}
	if room == nil || room.RoomID != roomID {
		t.Errorf("LoadRoomState after reopen = %+v", room)
	}
}

func TestJSONStoreSkipsForeignFiles(t *testing.T) {
	store, root := openJSONStore(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(root, "rooms", "README"), []byte("notes"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "rooms", "archive.json"), 0o700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	rooms, err := store.LoadAllRooms(ctx, root)
	if err != nil {
		t.Fatalf("LoadAllRooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("LoadAllRooms = %v, want empty", rooms)
	}
}

func TestJSONStoreLoadBeforeAnyWrite(t *testing.T) {
	// Loading from a root that was never opened is the first-run case.
	store := NewJSONStore(nil)
	root := filepath.Join(t.TempDir(), "never-opened")
	state, err := store.LoadClientState(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadClientState: %v", err)
	}
	if state.SyncToken != nil {
		t.Error("expected zero state")
	}
	rooms, err := store.LoadAllRooms(context.Background(), root)
	if err != nil || len(rooms) != 0 {
		t.Errorf("LoadAllRooms = %v, %v", rooms, err)
	}
}
