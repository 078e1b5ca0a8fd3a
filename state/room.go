// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
)

// Membership is a user's relationship to a room.
type Membership string

const (
	MembershipJoin   Membership = "join"
	MembershipInvite Membership = "invite"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
	MembershipKnock  Membership = "knock"
)

// Room is the persisted state of one room. A store writes and reads it
// as a single unit.
//
// The JSON form emits every key; empty lists encode as [] and an empty
// member map as {}.
type Room struct {
	RoomID    ref.RoomID `json:"room_id"`
	RoomName  RoomName   `json:"room_name"`
	OwnUserID ref.UserID `json:"own_user_id"`

	// Creator is the sender of m.room.create, once seen.
	Creator *ref.UserID `json:"creator"`

	// Members holds joined and invited users.
	Members     map[ref.UserID]RoomMember `json:"members"`
	TypingUsers []ref.UserID              `json:"typing_users"`

	PowerLevels *PowerLevels `json:"power_levels"`
	Encrypted   bool         `json:"encrypted"`

	UnreadHighlight     *uint64 `json:"unread_highlight"`
	UnreadNotifications *uint64 `json:"unread_notifications"`

	// Tombstone is set once the room is replaced by an upgrade.
	Tombstone *Tombstone `json:"tombstone"`

	// Membership is the own user's membership. A room the account has
	// left keeps its record with MembershipLeave.
	Membership Membership `json:"membership"`
}

// RoomName holds everything used to compute a room's display name.
type RoomName struct {
	Name               *string      `json:"name"`
	CanonicalAlias     *string      `json:"canonical_alias"`
	Aliases            []string     `json:"aliases"`
	Heroes             []ref.UserID `json:"heroes"`
	JoinedMemberCount  *uint64      `json:"joined_member_count"`
	InvitedMemberCount *uint64      `json:"invited_member_count"`
}

// RoomMember is one member's state event, reduced.
type RoomMember struct {
	UserID      ref.UserID `json:"user_id"`
	DisplayName *string    `json:"display_name"`
	AvatarURL   *string    `json:"avatar_url"`
	Membership  Membership `json:"membership"`
	PowerLevel  int64      `json:"power_level"`
}

// PowerLevels is the content of m.room.power_levels.
type PowerLevels struct {
	Ban           int64                `json:"ban"`
	Events        map[string]int64     `json:"events,omitempty"`
	EventsDefault int64                `json:"events_default"`
	Invite        int64                `json:"invite"`
	Kick          int64                `json:"kick"`
	Redact        int64                `json:"redact"`
	StateDefault  int64                `json:"state_default"`
	Users         map[ref.UserID]int64 `json:"users,omitempty"`
	UsersDefault  int64                `json:"users_default"`
}

// defaultPowerLevels returns the levels a room has for keys its
// m.room.power_levels event omits.
func defaultPowerLevels() PowerLevels {
	return PowerLevels{
		Ban:          50,
		Kick:         50,
		Redact:       50,
		StateDefault: 50,
	}
}

// UserLevel returns user's power level.
func (p *PowerLevels) UserLevel(user ref.UserID) int64 {
	if level, ok := p.Users[user]; ok {
		return level
	}
	return p.UsersDefault
}

// Tombstone is the content of m.room.tombstone.
type Tombstone struct {
	Body            string     `json:"body"`
	ReplacementRoom ref.RoomID `json:"replacement_room"`
}

// NewRoom returns the record for a room first observed with the given
// membership.
func NewRoom(roomID ref.RoomID, ownUserID ref.UserID, membership Membership) *Room {
	return &Room{
		RoomID:     roomID,
		OwnUserID:  ownUserID,
		Membership: membership,
	}
}

// Leave marks the room as left. The record is kept so "left" stays
// distinguishable from "never joined".
func (r *Room) Leave() {
	r.Membership = MembershipLeave
	r.TypingUsers = nil
}

// IsLeft reports whether the own user has left the room.
func (r *Room) IsLeft() bool {
	return r.Membership == MembershipLeave
}

// DisplayName computes the room's display name: the explicit name,
// then the canonical alias, then the first alias, then the heroes,
// then the room ID.
func (r *Room) DisplayName() string {
	switch {
	case r.RoomName.Name != nil && *r.RoomName.Name != "":
		return *r.RoomName.Name
	case r.RoomName.CanonicalAlias != nil && *r.RoomName.CanonicalAlias != "":
		return *r.RoomName.CanonicalAlias
	case len(r.RoomName.Aliases) > 0:
		return r.RoomName.Aliases[0]
	case len(r.RoomName.Heroes) > 0:
		names := make([]string, 0, len(r.RoomName.Heroes))
		for _, hero := range r.RoomName.Heroes {
			names = append(names, r.memberName(hero))
		}
		switch len(names) {
		case 1:
			return names[0]
		case 2:
			return names[0] + " and " + names[1]
		default:
			return fmt.Sprintf("%s and %d others", names[0], len(names)-1)
		}
	}
	return r.RoomID.String()
}

func (r *Room) memberName(user ref.UserID) string {
	if member, ok := r.Members[user]; ok && member.DisplayName != nil && *member.DisplayName != "" {
		return *member.DisplayName
	}
	return user.String()
}

// roomFields has Room's layout without its methods.
type roomFields Room

// MarshalJSON emits empty collections as [] and {} rather than null.
func (r Room) MarshalJSON() ([]byte, error) {
	fields := roomFields(r)
	if fields.Members == nil {
		fields.Members = map[ref.UserID]RoomMember{}
	}
	if fields.TypingUsers == nil {
		fields.TypingUsers = []ref.UserID{}
	}
	if fields.RoomName.Aliases == nil {
		fields.RoomName.Aliases = []string{}
	}
	if fields.RoomName.Heroes == nil {
		fields.RoomName.Heroes = []ref.UserID{}
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a room. Empty collections decode to nil so a
// fresh room round-trips to itself. A record without membership
// predates the field and is treated as joined.
func (r *Room) UnmarshalJSON(data []byte) error {
	var fields roomFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields.Members) == 0 {
		fields.Members = nil
	}
	if len(fields.TypingUsers) == 0 {
		fields.TypingUsers = nil
	}
	if len(fields.RoomName.Aliases) == 0 {
		fields.RoomName.Aliases = nil
	}
	if len(fields.RoomName.Heroes) == 0 {
		fields.RoomName.Heroes = nil
	}
	if fields.Membership == "" {
		fields.Membership = MembershipJoin
	}
	*r = Room(fields)
	return nil
}
