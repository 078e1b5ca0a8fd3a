// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
)

// Room state event types applied by Room.ApplyEvent.
const (
	EventTypeCreate         = "m.room.create"
	EventTypeName           = "m.room.name"
	EventTypeCanonicalAlias = "m.room.canonical_alias"
	EventTypeAliases        = "m.room.aliases"
	EventTypeMember         = "m.room.member"
	EventTypePowerLevels    = "m.room.power_levels"
	EventTypeEncryption     = "m.room.encryption"
	EventTypeTombstone      = "m.room.tombstone"
)

// Event is a state event as delivered in /sync or /state.
type Event struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	StateKey       *string         `json:"state_key,omitempty"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
}

// eventAppliers maps each handled event type to its update.
var eventAppliers = map[string]func(*Room, Event) error{
	EventTypeCreate:         applyCreate,
	EventTypeName:           applyName,
	EventTypeCanonicalAlias: applyCanonicalAlias,
	EventTypeAliases:        applyAliases,
	EventTypeMember:         applyMember,
	EventTypePowerLevels:    applyPowerLevels,
	EventTypeEncryption:     applyEncryption,
	EventTypeTombstone:      applyTombstone,
}

// ApplyEvent updates the room from a state event. Reports false for
// event types the room does not track. A handled event with
// undecodable content is an error and leaves the room unchanged.
func (r *Room) ApplyEvent(event Event) (bool, error) {
	apply, ok := eventAppliers[event.Type]
	if !ok {
		return false, nil
	}
	if err := apply(r, event); err != nil {
		return false, fmt.Errorf("state: applying %s event %s to %s: %w", event.Type, event.EventID, r.RoomID, err)
	}
	return true, nil
}

func decodeContent(event Event, target any) error {
	if len(event.Content) == 0 {
		return fmt.Errorf("event has no content")
	}
	return json.Unmarshal(event.Content, target)
}

func applyCreate(room *Room, event Event) error {
	var content struct {
		// Set by room versions before 11; later versions use the sender.
		Creator string `json:"creator"`
	}
	if err := decodeContent(event, &content); err != nil {
		return err
	}
	creator := event.Sender
	if content.Creator != "" {
		parsed, err := ref.ParseUserID(content.Creator)
		if err != nil {
			return err
		}
		creator = parsed
	}
	if creator.IsZero() {
		return fmt.Errorf("create event has no creator")
	}
	room.Creator = &creator
	return nil
}

func applyName(room *Room, event Event) error {
	var content struct {
		Name string `json:"name"`
	}
	if err := decodeContent(event, &content); err != nil {
		return err
	}
	room.RoomName.Name = optionalString(content.Name)
	return nil
}

func applyCanonicalAlias(room *Room, event Event) error {
	var content struct {
		Alias string `json:"alias"`
	}
	if err := decodeContent(event, &content); err != nil {
		return err
	}
	room.RoomName.CanonicalAlias = optionalString(content.Alias)
	return nil
}

func applyAliases(room *Room, event Event) error {
	var content struct {
		Aliases []string `json:"aliases"`
	}
	if err := decodeContent(event, &content); err != nil {
		return err
	}
	if len(content.Aliases) == 0 {
		room.RoomName.Aliases = nil
	} else {
		room.RoomName.Aliases = content.Aliases
	}
	return nil
}

func applyMember(room *Room, event Event) error {
	if event.StateKey == nil {
		return fmt.Errorf("member event has no state key")
	}
	target, err := ref.ParseUserID(*event.StateKey)
	if err != nil {
		return fmt.Errorf("member event state key: %w", err)
	}
	var content struct {
		Membership  Membership `json:"membership"`
		DisplayName *string    `json:"displayname"`
		AvatarURL   *string    `json:"avatar_url"`
	}
	if err := decodeContent(event, &content); err != nil {
		return err
	}

	switch content.Membership {
	case MembershipJoin, MembershipInvite:
		if room.Members == nil {
			room.Members = make(map[ref.UserID]RoomMember)
		}
		member := RoomMember{
			UserID:      target,
			DisplayName: content.DisplayName,
			AvatarURL:   content.AvatarURL,
			Membership:  content.Membership,
		}
		if room.PowerLevels != nil {
			member.PowerLevel = room.PowerLevels.UserLevel(target)
		}
		room.Members[target] = member
	case MembershipLeave, MembershipBan, MembershipKnock:
		delete(room.Members, target)
		if len(room.Members) == 0 {
			room.Members = nil
		}
		room.TypingUsers = slices.DeleteFunc(room.TypingUsers, func(user ref.UserID) bool { return user == target })
		if len(room.TypingUsers) == 0 {
			room.TypingUsers = nil
		}
	default:
		return fmt.Errorf("unknown membership %q", content.Membership)
	}

	if target == room.OwnUserID {
		switch content.Membership {
		case MembershipJoin, MembershipInvite:
			room.Membership = content.Membership
		case MembershipLeave, MembershipBan:
			room.Leave()
		}
	}

	room.recountMembers()
	return nil
}

// recountMembers derives the member counts from Members.
func (r *Room) recountMembers() {
	var joined, invited uint64
	for _, member := range r.Members {
		switch member.Membership {
		case MembershipJoin:
			joined++
		case MembershipInvite:
			invited++
		}
	}
	r.RoomName.JoinedMemberCount = &joined
	r.RoomName.InvitedMemberCount = &invited
}

func applyPowerLevels(room *Room, event Event) error {
	levels := defaultPowerLevels()
	if err := decodeContent(event, &levels); err != nil {
		return err
	}
	if len(levels.Events) == 0 {
		levels.Events = nil
	}
	if len(levels.Users) == 0 {
		levels.Users = nil
	}
	room.PowerLevels = &levels
	for user, member := range room.Members {
		member.PowerLevel = levels.UserLevel(user)
		room.Members[user] = member
	}
	return nil
}

func applyEncryption(room *Room, event Event) error {
	var content struct {
		Algorithm string `json:"algorithm"`
	}
	if err := decodeContent(event, &content); err != nil {
		return err
	}
	if content.Algorithm == "" {
		return fmt.Errorf("encryption event has no algorithm")
	}
	// Encryption cannot be turned off once enabled.
	room.Encrypted = true
	return nil
}

func applyTombstone(room *Room, event Event) error {
	var tombstone Tombstone
	if err := decodeContent(event, &tombstone); err != nil {
		return err
	}
	if tombstone.ReplacementRoom.IsZero() {
		return fmt.Errorf("tombstone has no replacement room")
	}
	room.Tombstone = &tombstone
	return nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
