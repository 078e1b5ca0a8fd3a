// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration.
//
// Two serialization formats are used with a clear boundary:
//
//   - JSON for the Matrix Client-Server API and for persisted client
//     and room state, where the on-disk layout is a compatibility
//     contract and must stay human-readable.
//   - CBOR for the relay socket protocol between the relay transport
//     and the cooperating relay process, where request and response
//     bodies are raw bytes and a self-delimiting binary framing avoids
//     base64 overhead.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types serialized only as CBOR carry `cbor` struct tags. Types that
// are also JSON carry `json` tags only; fxamacker/cbor reads `json`
// tags as a fallback. Never put both tags on one field.
package codec
