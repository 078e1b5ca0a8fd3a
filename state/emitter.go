// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

// EventEmitter receives notifications after a state event changed a
// room. Embed NopEmitter to implement only the hooks you need.
type EventEmitter interface {
	// OnRoomName fires for name, canonical alias, and alias changes.
	OnRoomName(room *Room, event Event)
	// OnRoomMember fires for any membership change.
	OnRoomMember(room *Room, event Event)
	OnRoomPowerLevels(room *Room, event Event)
	OnRoomTombstone(room *Room, event Event)
}

// NopEmitter implements every EventEmitter hook as a no-op.
type NopEmitter struct{}

func (NopEmitter) OnRoomName(*Room, Event)        {}
func (NopEmitter) OnRoomMember(*Room, Event)      {}
func (NopEmitter) OnRoomPowerLevels(*Room, Event) {}
func (NopEmitter) OnRoomTombstone(*Room, Event)   {}

var _ EventEmitter = NopEmitter{}

// emitterHooks maps event types to the hook they trigger.
var emitterHooks = map[string]func(EventEmitter, *Room, Event){
	EventTypeName:           EventEmitter.OnRoomName,
	EventTypeCanonicalAlias: EventEmitter.OnRoomName,
	EventTypeAliases:        EventEmitter.OnRoomName,
	EventTypeMember:         EventEmitter.OnRoomMember,
	EventTypePowerLevels:    EventEmitter.OnRoomPowerLevels,
	EventTypeTombstone:      EventEmitter.OnRoomTombstone,
}

// ApplyAndEmit applies event to room and, if the room changed, calls
// the matching emitter hook with the updated room. A nil emitter only
// applies.
func ApplyAndEmit(room *Room, event Event, emitter EventEmitter) (bool, error) {
	changed, err := room.ApplyEvent(event)
	if err != nil || !changed || emitter == nil {
		return changed, err
	}
	if hook, ok := emitterHooks[event.Type]; ok {
		hook(emitter, room, event)
	}
	return true, nil
}
