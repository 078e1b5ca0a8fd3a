// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for the relay
// transport's wait deadlines and the socket relay's dial backoff.
//
// Production code accepts a Clock instead of calling time.Now or
// time.After directly. Real() provides the standard library behavior;
// Fake() provides a deterministic clock that advances only when
// Advance is called.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	relay, _ := transport.NewRelayTransport(transport.RelayConfig{Clock: c, ...})
//	// ... start a SendRequest in a goroutine ...
//	c.WaitForTimers(1)         // wait for the request to arm its deadline
//	c.Advance(30 * time.Second) // fire the deadline deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing the clock.
package clock
