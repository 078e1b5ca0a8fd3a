// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers:
// [UserID] (@localpart:server), [RoomID] (!opaque:server), and
// [DeviceID] (opaque). Each is a value type wrapping a validated
// string, so a room ID cannot be passed where a user ID is expected.
//
// All three implement encoding.TextMarshaler and TextUnmarshaler, so
// they serialize as plain JSON strings and can be used as JSON map
// keys (map[ref.RoomID]... and map[ref.UserID]... encode as objects).
// The zero value of each type marshals as the empty string and an
// empty string unmarshals to the zero value.
package ref
