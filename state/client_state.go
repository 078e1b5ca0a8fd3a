// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
	"github.com/bureau-foundation/p2pmatrix/messaging"
)

// Account data event types that feed ClientState.
const (
	EventTypePushRules       = "m.push_rules"
	EventTypeIgnoredUserList = "m.ignored_user_list"
)

// ClientState is the durable client-wide snapshot. The zero value is
// the first-run state.
//
// The JSON form always carries all four keys: absent optionals encode
// as null and IgnoredUsers as an array, never null.
type ClientState struct {
	// Session is the logged-in identity, nil when logged out.
	Session *messaging.Session `json:"session"`

	// SyncToken is the next_batch cursor for the next /sync. Nil means
	// sync from scratch.
	SyncToken *string `json:"sync_token"`

	// IgnoredUsers is ordered and duplicate-free. Order is insertion
	// order, preserved on the wire.
	IgnoredUsers []ref.UserID `json:"ignored_users"`

	// PushRuleset is the user's global push ruleset, nil until first
	// received.
	PushRuleset *Ruleset `json:"push_ruleset"`
}

// clientStateFields has ClientState's layout without its methods.
type clientStateFields ClientState

// MarshalJSON emits IgnoredUsers as [] when empty.
func (s ClientState) MarshalJSON() ([]byte, error) {
	fields := clientStateFields(s)
	if fields.IgnoredUsers == nil {
		fields.IgnoredUsers = []ref.UserID{}
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a snapshot, dropping duplicate ignored users
// (first occurrence wins). An empty list decodes to nil so the zero
// state round-trips to itself.
func (s *ClientState) UnmarshalJSON(data []byte) error {
	var fields clientStateFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	fields.IgnoredUsers = uniqueUsers(fields.IgnoredUsers)
	*s = ClientState(fields)
	return nil
}

// AdvanceSyncToken records the next_batch of an accepted sync response.
func (s *ClientState) AdvanceSyncToken(token string) {
	s.SyncToken = &token
}

// IsIgnored reports whether user is in the ignore list.
func (s *ClientState) IsIgnored(user ref.UserID) bool {
	return slices.Contains(s.IgnoredUsers, user)
}

// AddIgnoredUser appends user unless already present. Reports whether
// the list changed.
func (s *ClientState) AddIgnoredUser(user ref.UserID) bool {
	if s.IsIgnored(user) {
		return false
	}
	s.IgnoredUsers = append(s.IgnoredUsers, user)
	return true
}

// RemoveIgnoredUser removes user, keeping the order of the rest.
// Reports whether the list changed.
func (s *ClientState) RemoveIgnoredUser(user ref.UserID) bool {
	index := slices.Index(s.IgnoredUsers, user)
	if index < 0 {
		return false
	}
	s.IgnoredUsers = slices.Delete(s.IgnoredUsers, index, index+1)
	if len(s.IgnoredUsers) == 0 {
		s.IgnoredUsers = nil
	}
	return true
}

// Logout drops the session and the sync position. Ignored users and
// push rules belong to the account and are refreshed on next login.
func (s *ClientState) Logout() {
	s.Session = nil
	s.SyncToken = nil
}

// ApplyAccountData updates the snapshot from a global account data
// event. Reports whether eventType was one ClientState tracks.
//
// m.ignored_user_list carries its users as object keys, which have no
// order; users already ignored keep their position and new ones are
// appended in sorted order so the result is deterministic.
func (s *ClientState) ApplyAccountData(eventType string, content json.RawMessage) (bool, error) {
	switch eventType {
	case EventTypePushRules:
		var pushRules struct {
			Global *Ruleset `json:"global"`
		}
		if err := json.Unmarshal(content, &pushRules); err != nil {
			return false, fmt.Errorf("state: decoding %s: %w", eventType, err)
		}
		s.PushRuleset = pushRules.Global
		return true, nil

	case EventTypeIgnoredUserList:
		var ignored struct {
			IgnoredUsers map[ref.UserID]json.RawMessage `json:"ignored_users"`
		}
		if err := json.Unmarshal(content, &ignored); err != nil {
			return false, fmt.Errorf("state: decoding %s: %w", eventType, err)
		}
		var kept []ref.UserID
		for _, user := range s.IgnoredUsers {
			if _, ok := ignored.IgnoredUsers[user]; ok {
				kept = append(kept, user)
			}
		}
		var added []ref.UserID
		for user := range ignored.IgnoredUsers {
			if !slices.Contains(kept, user) {
				added = append(added, user)
			}
		}
		slices.SortFunc(added, func(a, b ref.UserID) int {
			return strings.Compare(a.String(), b.String())
		})
		s.IgnoredUsers = uniqueUsers(append(kept, added...))
		return true, nil
	}
	return false, nil
}

// Snapshot builds a detached ClientState from the client's live
// fields. Nothing in the result aliases the inputs.
func Snapshot(session *messaging.SessionHandle, syncToken *string, ignoredUsers []ref.UserID, pushRuleset *Ruleset) ClientState {
	var snapshot ClientState
	if current, ok := session.Get(); ok {
		snapshot.Session = &current
	}
	if syncToken != nil {
		token := *syncToken
		snapshot.SyncToken = &token
	}
	snapshot.IgnoredUsers = uniqueUsers(slices.Clone(ignoredUsers))
	snapshot.PushRuleset = pushRuleset.Clone()
	return snapshot
}

// uniqueUsers removes duplicates in place, keeping first occurrences,
// and returns nil for an empty result.
func uniqueUsers(users []ref.UserID) []ref.UserID {
	if len(users) == 0 {
		return nil
	}
	seen := make(map[ref.UserID]struct{}, len(users))
	unique := users[:0]
	for _, user := range users {
		if _, ok := seen[user]; ok {
			continue
		}
		seen[user] = struct{}{}
		unique = append(unique, user)
	}
	return unique
}
