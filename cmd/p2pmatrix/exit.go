// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "fmt"

// exitError signals a non-zero exit code without an extra "error:"
// line. The command has already written its own output.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// ExitCode is checked by main to tell a handled non-zero exit from an
// unexpected error.
func (e *exitError) ExitCode() int {
	return e.code
}

// usageError is a mistake on the command line. main exits 2 for it.
type usageError struct {
	message string
}

func usagef(format string, args ...any) error {
	return &usageError{message: fmt.Sprintf(format, args...)}
}

func (e *usageError) Error() string { return e.message }
