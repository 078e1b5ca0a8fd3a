// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable means the storage root cannot be used:
	// missing permissions, not a directory, database cannot open.
	ErrStoreUnavailable = errors.New("state: store unavailable")

	// ErrNotFound means the requested room has no persisted record.
	ErrNotFound = errors.New("state: not found")

	// ErrCorrupt means a persisted record exists but cannot be
	// decoded or fails its integrity check.
	ErrCorrupt = errors.New("state: corrupt record")
)

// StoreError describes a failed store operation. errors.Is matches
// both Kind and Cause.
type StoreError struct {
	// Kind is ErrStoreUnavailable, ErrNotFound, or ErrCorrupt.
	Kind error
	// Op is the failing operation ("load client state", ...).
	Op string
	// Path is the file or database involved.
	Path  string
	Cause error
}

func (e *StoreError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: %s %s", e.Kind, e.Op, e.Path)
	}
	return fmt.Sprintf("%v: %s %s: %v", e.Kind, e.Op, e.Path, e.Cause)
}

// Unwrap returns the sentinel and the cause.
func (e *StoreError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func storeError(kind error, op, path string, cause error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Path: path, Cause: cause}
}
