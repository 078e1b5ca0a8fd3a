// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/p2pmatrix/lib/compress"
	"github.com/bureau-foundation/p2pmatrix/lib/ref"
	"github.com/bureau-foundation/p2pmatrix/lib/sqlitepool"
)

// sqliteDatabaseFile is the database name under the root.
const sqliteDatabaseFile = "state.db"

// sqliteSchema holds one row per record. Each payload is the record's
// JSON, compressed per its compression tag; size and digest describe
// the uncompressed JSON.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS client_state (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	digest      BLOB NOT NULL,
	payload     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS room_state (
	room_id     TEXT PRIMARY KEY,
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	digest      BLOB NOT NULL,
	payload     BLOB NOT NULL
);
`

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Compression is applied to new records. Existing records keep the
	// tag they were written with.
	Compression compress.Tag

	// PoolSize is the connection count per root. Zero selects the
	// sqlitepool default.
	PoolSize int

	// Logger, if nil, discards.
	Logger *slog.Logger
}

// SQLiteStore keeps client and room state in <root>/state.db. It
// holds one connection pool per root, opened on first use; Close
// releases them all.
type SQLiteStore struct {
	compression compress.Tag
	poolSize    int
	logger      *slog.Logger

	mu    sync.Mutex
	pools map[string]*sqlitepool.Pool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(config SQLiteConfig) *SQLiteStore {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{
		compression: config.Compression,
		poolSize:    config.PoolSize,
		logger:      logger,
		pools:       make(map[string]*sqlitepool.Pool),
	}
}

// Open creates root if needed and opens its database, creating the
// schema.
func (s *SQLiteStore) Open(ctx context.Context, root string) error {
	if root == "" {
		return storeError(ErrStoreUnavailable, "open", root, errors.New("empty path"))
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return storeError(ErrStoreUnavailable, "open", root, errors.New("not a directory"))
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return storeError(ErrStoreUnavailable, "open", root, err)
	}
	pool, err := s.pool(root)
	if err != nil {
		return err
	}
	// Take forces a connection, and with it the schema, so an unusable
	// database fails here rather than on first load.
	conn, err := pool.Take(ctx)
	if err != nil {
		return storeError(ErrStoreUnavailable, "open", pool.Path(), err)
	}
	pool.Put(conn)
	return nil
}

// Close closes every pool. The store can be reopened afterwards.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for root, pool := range s.pools {
		if err := pool.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.pools, root)
	}
	return errors.Join(errs...)
}

// pool returns the pool for root, opening it on first use.
func (s *SQLiteStore) pool(root string) (*sqlitepool.Pool, error) {
	key := filepath.Clean(root)

	s.mu.Lock()
	defer s.mu.Unlock()
	if pool, ok := s.pools[key]; ok {
		return pool, nil
	}
	path := filepath.Join(key, sqliteDatabaseFile)
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: s.poolSize,
		Durable:  true,
		Logger:   s.logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, storeError(ErrStoreUnavailable, "open", path, err)
	}
	s.pools[key] = pool
	return pool, nil
}

// take returns a connection for root, opening the pool if needed.
func (s *SQLiteStore) take(ctx context.Context, op, root string) (*sqlitepool.Pool, *sqlite.Conn, error) {
	pool, err := s.pool(root)
	if err != nil {
		return nil, nil, err
	}
	conn, err := pool.Take(ctx)
	if err != nil {
		return nil, nil, storeError(ErrStoreUnavailable, op, pool.Path(), err)
	}
	return pool, conn, nil
}

// record is one stored row.
type record struct {
	compression compress.Tag
	size        int64
	digest      []byte
	payload     []byte
}

func encodeRecord(data []byte, tag compress.Tag) (record, error) {
	payload, used, err := compress.Encode(data, tag)
	if err != nil {
		return record{}, err
	}
	digest := blake3.Sum256(data)
	return record{
		compression: used,
		size:        int64(len(data)),
		digest:      digest[:],
		payload:     payload,
	}, nil
}

// decode decompresses the payload and verifies it against the stored
// size and digest.
func (r record) decode() ([]byte, error) {
	if r.size < 0 || r.size > compress.MaxDecodedSize {
		return nil, fmt.Errorf("recorded size %d out of range", r.size)
	}
	data, err := compress.Decode(r.payload, r.compression, int(r.size))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != r.size {
		return nil, fmt.Errorf("size %d, recorded %d", len(data), r.size)
	}
	digest := blake3.Sum256(data)
	if !bytes.Equal(digest[:], r.digest) {
		return nil, fmt.Errorf("digest mismatch")
	}
	return data, nil
}

func scanRecord(stmt *sqlite.Stmt, first int) record {
	digest := make([]byte, stmt.ColumnLen(first+2))
	stmt.ColumnBytes(first+2, digest)
	payload := make([]byte, stmt.ColumnLen(first+3))
	stmt.ColumnBytes(first+3, payload)
	return record{
		compression: compress.Tag(stmt.ColumnInt64(first)),
		size:        stmt.ColumnInt64(first + 1),
		digest:      digest,
		payload:     payload,
	}
}

// LoadClientState reads the single client_state row.
func (s *SQLiteStore) LoadClientState(ctx context.Context, root string) (ClientState, error) {
	pool, conn, err := s.take(ctx, "load client state", root)
	if err != nil {
		return ClientState{}, err
	}
	defer pool.Put(conn)

	var stored *record
	err = sqlitex.Execute(conn,
		`SELECT compression, size, digest, payload FROM client_state WHERE id = 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row := scanRecord(stmt, 0)
				stored = &row
				return nil
			},
		})
	if err != nil {
		return ClientState{}, storeError(ErrStoreUnavailable, "load client state", pool.Path(), err)
	}
	if stored == nil {
		return ClientState{}, nil
	}

	data, err := stored.decode()
	if err != nil {
		return ClientState{}, storeError(ErrCorrupt, "load client state", pool.Path(), err)
	}
	var state ClientState
	if err := json.Unmarshal(data, &state); err != nil {
		return ClientState{}, storeError(ErrCorrupt, "load client state", pool.Path(), err)
	}
	return state, nil
}

// LoadRoomState reads one room row.
func (s *SQLiteStore) LoadRoomState(ctx context.Context, root string, roomID ref.RoomID) (*Room, error) {
	pool, conn, err := s.take(ctx, "load room state", root)
	if err != nil {
		return nil, err
	}
	defer pool.Put(conn)

	var stored *record
	err = sqlitex.Execute(conn,
		`SELECT compression, size, digest, payload FROM room_state WHERE room_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{roomID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row := scanRecord(stmt, 0)
				stored = &row
				return nil
			},
		})
	if err != nil {
		return nil, storeError(ErrStoreUnavailable, "load room state", pool.Path(), err)
	}
	if stored == nil {
		return nil, storeError(ErrNotFound, "load room state", pool.Path(), fmt.Errorf("room %s", roomID))
	}
	return decodeRoomRecord(pool.Path(), roomID, *stored)
}

// LoadAllRooms reads every room row.
func (s *SQLiteStore) LoadAllRooms(ctx context.Context, root string) (map[ref.RoomID]*Room, error) {
	pool, conn, err := s.take(ctx, "load all rooms", root)
	if err != nil {
		return nil, err
	}
	defer pool.Put(conn)

	rooms := make(map[ref.RoomID]*Room)
	err = sqlitex.Execute(conn,
		`SELECT room_id, compression, size, digest, payload FROM room_state`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				roomID, err := ref.ParseRoomID(stmt.ColumnText(0))
				if err != nil {
					return storeError(ErrCorrupt, "load all rooms", pool.Path(), err)
				}
				room, err := decodeRoomRecord(pool.Path(), roomID, scanRecord(stmt, 1))
				if err != nil {
					return err
				}
				rooms[roomID] = room
				return nil
			},
		})
	if err != nil {
		var storeErr *StoreError
		if errors.As(err, &storeErr) {
			return nil, storeErr
		}
		return nil, storeError(ErrStoreUnavailable, "load all rooms", pool.Path(), err)
	}
	return rooms, nil
}

func decodeRoomRecord(path string, roomID ref.RoomID, stored record) (*Room, error) {
	data, err := stored.decode()
	if err != nil {
		return nil, storeError(ErrCorrupt, "load room state", path, fmt.Errorf("room %s: %w", roomID, err))
	}
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, storeError(ErrCorrupt, "load room state", path, fmt.Errorf("room %s: %w", roomID, err))
	}
	if room.RoomID != roomID {
		return nil, storeError(ErrCorrupt, "load room state", path,
			fmt.Errorf("row %s holds room %q", roomID, room.RoomID))
	}
	return &room, nil
}

// StoreClientState replaces the client_state row in one transaction.
func (s *SQLiteStore) StoreClientState(ctx context.Context, root string, state ClientState) (err error) {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("state: encoding client state: %w", err)
	}
	stored, err := encodeRecord(data, s.compression)
	if err != nil {
		return fmt.Errorf("state: compressing client state: %w", err)
	}

	pool, conn, err := s.take(ctx, "store client state", root)
	if err != nil {
		return err
	}
	defer pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storeError(ErrStoreUnavailable, "store client state", pool.Path(), err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO client_state (id, compression, size, digest, payload) VALUES (1, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{int64(stored.compression), stored.size, stored.digest, stored.payload},
		}); err != nil {
		return storeError(ErrStoreUnavailable, "store client state", pool.Path(), err)
	}
	return nil
}

// StoreRoomState replaces one room_state row in one transaction.
func (s *SQLiteStore) StoreRoomState(ctx context.Context, root string, room *Room) (err error) {
	if room == nil || room.RoomID.IsZero() {
		return fmt.Errorf("state: storing room with no room ID")
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("state: encoding room %s: %w", room.RoomID, err)
	}
	stored, err := encodeRecord(data, s.compression)
	if err != nil {
		return fmt.Errorf("state: compressing room %s: %w", room.RoomID, err)
	}

	pool, conn, err := s.take(ctx, "store room state", root)
	if err != nil {
		return err
	}
	defer pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storeError(ErrStoreUnavailable, "store room state", pool.Path(), err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO room_state (room_id, compression, size, digest, payload) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{room.RoomID.String(), int64(stored.compression), stored.size, stored.digest, stored.payload},
		}); err != nil {
		return storeError(ErrStoreUnavailable, "store room state", pool.Path(), err)
	}
	return nil
}
