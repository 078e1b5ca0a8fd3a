// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
	"github.com/bureau-foundation/p2pmatrix/state"
)

func (a *app) initCommand() *command {
	return &command{
		name:    "init",
		summary: "Create the configured state store",
		flags:   func() *pflag.FlagSet { return a.newFlagSet("init") },
		run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			_, closeStore, err := openStore(a.ctx, cfg, a.logger())
			if err != nil {
				return err
			}
			defer closeStore()
			fmt.Fprintf(a.stdout, "initialized %s store at %s\n", cfg.Store.Backend, cfg.Store.Path)
			return nil
		},
	}
}

func (a *app) stateCommand() *command {
	return &command{
		name:    "state",
		summary: "Inspect persisted client and room state",
		subcommands: []*command{
			a.stateShowCommand(),
			a.stateRoomsCommand(),
		},
	}
}

func (a *app) stateShowCommand() *command {
	var jsonOutput bool
	return &command{
		name:    "show",
		summary: "Print the client state snapshot",
		flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("show")
			flagSet.BoolVar(&jsonOutput, "json", false, "print the snapshot as JSON with the access token redacted")
			return flagSet
		},
		run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			snapshot, err := a.loadClientState()
			if err != nil {
				return err
			}
			if jsonOutput {
				return a.writeJSON(redacted(snapshot))
			}
			a.printClientState(snapshot)
			return nil
		},
	}
}

func (a *app) stateRoomsCommand() *command {
	return &command{
		name:    "rooms",
		summary: "List persisted rooms",
		flags:   func() *pflag.FlagSet { return a.newFlagSet("rooms") },
		run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(a.ctx, cfg, a.logger())
			if err != nil {
				return err
			}
			defer closeStore()

			rooms, err := store.LoadAllRooms(a.ctx, cfg.Store.Path)
			if err != nil {
				return err
			}
			roomIDs := make([]ref.RoomID, 0, len(rooms))
			for roomID := range rooms {
				roomIDs = append(roomIDs, roomID)
			}
			slices.SortFunc(roomIDs, func(x, y ref.RoomID) int {
				return strings.Compare(x.String(), y.String())
			})

			tw := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "ROOM\tNAME\tMEMBERSHIP\tJOINED\n")
			for _, roomID := range roomIDs {
				room := rooms[roomID]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", roomID, room.DisplayName(), room.Membership, joinedCount(room))
			}
			return tw.Flush()
		},
	}
}

// loadClientState opens the configured store and reads the snapshot.
func (a *app) loadClientState() (state.ClientState, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return state.ClientState{}, err
	}
	store, closeStore, err := openStore(a.ctx, cfg, a.logger())
	if err != nil {
		return state.ClientState{}, err
	}
	defer closeStore()
	return store.LoadClientState(a.ctx, cfg.Store.Path)
}

func (a *app) printClientState(snapshot state.ClientState) {
	tw := tabwriter.NewWriter(a.stdout, 2, 0, 2, ' ', 0)
	defer tw.Flush()

	if snapshot.Session != nil {
		fmt.Fprintf(tw, "session:\t%s\n", snapshot.Session)
	} else {
		fmt.Fprintf(tw, "session:\tnone\n")
	}
	if snapshot.SyncToken != nil {
		fmt.Fprintf(tw, "sync token:\t%s\n", *snapshot.SyncToken)
	} else {
		fmt.Fprintf(tw, "sync token:\tnone\n")
	}
	fmt.Fprintf(tw, "ignored users:\t%d\n", len(snapshot.IgnoredUsers))
	for _, user := range snapshot.IgnoredUsers {
		fmt.Fprintf(tw, "\t%s\n", user)
	}
	if snapshot.PushRuleset != nil {
		fmt.Fprintf(tw, "push rules:\t%d\n", countRules(snapshot.PushRuleset))
	} else {
		fmt.Fprintf(tw, "push rules:\tnone\n")
	}
}

func (a *app) writeJSON(value any) error {
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// redacted returns snapshot with the access token masked.
func redacted(snapshot state.ClientState) state.ClientState {
	if snapshot.Session != nil && snapshot.Session.AccessToken != "" {
		session := *snapshot.Session
		session.AccessToken = "<redacted>"
		snapshot.Session = &session
	}
	return snapshot
}

func countRules(ruleset *state.Ruleset) int {
	total := 0
	for _, kind := range []string{
		state.PushKindOverride, state.PushKindContent, state.PushKindRoom,
		state.PushKindSender, state.PushKindUnderride,
	} {
		total += len(ruleset.Rules(kind))
	}
	return total
}

func joinedCount(room *state.Room) int {
	joined := 0
	for _, member := range room.Members {
		if member.Membership == state.MembershipJoin {
			joined++
		}
	}
	return joined
}
