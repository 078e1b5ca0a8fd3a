// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
)

// Session is an authenticated Matrix identity. The access token is
// opaque to everything except the Authorization header.
type Session struct {
	UserID      ref.UserID   `json:"user_id"`
	DeviceID    ref.DeviceID `json:"device_id"`
	AccessToken string       `json:"access_token"`
}

// Validate reports whether the session has every field a homeserver
// requires to accept it.
func (s Session) Validate() error {
	if s.UserID.IsZero() {
		return fmt.Errorf("messaging: session has no user ID")
	}
	if s.DeviceID.IsZero() {
		return fmt.Errorf("messaging: session %s has no device ID", s.UserID)
	}
	if s.AccessToken == "" {
		return fmt.Errorf("messaging: session %s has no access token", s.UserID)
	}
	return nil
}

// String identifies the session without the access token, so sessions
// are safe to log.
func (s Session) String() string {
	return fmt.Sprintf("%s (device %s)", s.UserID, s.DeviceID)
}

// SessionHandle is a shared, optionally-empty reference to the current
// session. The zero value is an empty handle ready for use. Safe for
// concurrent use.
type SessionHandle struct {
	mu      sync.RWMutex
	session Session
	present bool
}

// NewSessionHandle returns a handle holding session.
func NewSessionHandle(session Session) *SessionHandle {
	return &SessionHandle{session: session, present: true}
}

// Get returns a copy of the current session and whether one is set.
// A nil handle reports no session.
func (h *SessionHandle) Get() (Session, bool) {
	if h == nil {
		return Session{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session, h.present
}

// Set replaces the current session (login or re-authentication).
func (h *SessionHandle) Set(session Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = session
	h.present = true
}

// Clear removes the current session (logout).
func (h *SessionHandle) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = Session{}
	h.present = false
}
