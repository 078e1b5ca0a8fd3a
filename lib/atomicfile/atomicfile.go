// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so that readers never observe a
// partial write, even if the writing process is killed mid-write.
//
// [WriteFile] writes to a uniquely named temporary file in the target's
// directory, fsyncs it, renames it over the target, and fsyncs the
// directory. Each call uses its own temporary file, so concurrent
// writers to the same path never interleave bytes: the last rename
// wins and every intermediate state is a complete file.
//
// A crash between create and rename leaves a temporary file behind.
// Temporary names are hidden (leading dot) and carry the [TempPattern]
// suffix so owners can sweep them with [RemoveStale]. Only the prefix
// and suffix together mark a temporary: a target whose own name happens
// to contain the suffix is never mistaken for one.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempPattern is the os.CreateTemp pattern suffix for temporary files.
// A target "client.json" gets temporaries like ".client.json.tmp-123".
const TempPattern = ".tmp-*"

// tempPrefix starts every temporary name.
const tempPrefix = "."

// tempMarker is the literal part of TempPattern used to recognize
// leftovers.
const tempMarker = ".tmp-"

// WriteFile atomically replaces path with data. The parent directory
// must already exist. The file is created with the given permissions.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	directory := filepath.Dir(path)

	file, err := os.CreateTemp(directory, tempPrefix+filepath.Base(path)+TempPattern)
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	// Write, sync, close, in that order. If any step fails, remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file for %s: %w", path, err)
	}
	if err := file.Chmod(perm); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("setting permissions on temporary file for %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file for %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file for %s: %w", path, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	// Sync the parent directory so the rename itself survives power
	// loss, not just the file contents.
	parentDirectory, err := os.Open(directory)
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// IsTemporary reports whether name (a base name) looks like a
// temporary file created by WriteFile: a leading dot, then the target's
// base name, then the temporary suffix.
func IsTemporary(name string) bool {
	if !strings.HasPrefix(name, tempPrefix) {
		return false
	}
	marker := strings.LastIndex(name, tempMarker)
	return marker > len(tempPrefix) && !strings.Contains(name[marker+len(tempMarker):], ".")
}

// RemoveStale deletes temporary files left in directory by interrupted
// writes. Returns the number removed. A missing directory is not an
// error.
func RemoveStale(directory string) (int, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing %s: %w", directory, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsTemporary(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(directory, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("removing stale temporary file: %w", err)
		}
		removed++
	}
	return removed, nil
}
