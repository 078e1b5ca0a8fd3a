// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/p2pmatrix/lib/ref"
	"github.com/bureau-foundation/p2pmatrix/messaging"
	"github.com/bureau-foundation/p2pmatrix/state"
)

func (a *app) sessionCommand() *command {
	return &command{
		name:    "session",
		summary: "Record or clear the stored session",
		subcommands: []*command{
			a.sessionSetCommand(),
			a.sessionClearCommand(),
		},
	}
}

func (a *app) sessionSetCommand() *command {
	var (
		userID    string
		deviceID  string
		tokenFile string
	)
	return &command{
		name:    "set",
		summary: "Store a session obtained from a homeserver login",
		usage:   "p2pmatrix session set --user USER_ID --device DEVICE_ID [--token-file PATH]",
		flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("set")
			flagSet.StringVar(&userID, "user", "", "Matrix user ID (@localpart:server)")
			flagSet.StringVar(&deviceID, "device", "", "device ID issued at login")
			flagSet.StringVar(&tokenFile, "token-file", "-", "file holding the access token (- reads stdin)")
			return flagSet
		},
		run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			user, err := ref.ParseUserID(userID)
			if err != nil {
				return usagef("--user: %v", err)
			}
			device, err := ref.ParseDeviceID(deviceID)
			if err != nil {
				return usagef("--device: %v", err)
			}
			token, err := a.readToken(tokenFile)
			if err != nil {
				return err
			}
			session := messaging.Session{UserID: user, DeviceID: device, AccessToken: token}
			if err := session.Validate(); err != nil {
				return err
			}

			err = a.updateClientState(func(snapshot *state.ClientState) {
				if snapshot.Session != nil && snapshot.Session.UserID != session.UserID {
					// A different account invalidates the sync position.
					snapshot.Logout()
				}
				snapshot.Session = &session
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "session stored for %s\n", session)
			return nil
		},
	}
}

func (a *app) sessionClearCommand() *command {
	return &command{
		name:    "clear",
		summary: "Drop the stored session and sync position",
		flags:   func() *pflag.FlagSet { return a.newFlagSet("clear") },
		run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			if err := a.updateClientState((*state.ClientState).Logout); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "session cleared")
			return nil
		},
	}
}

// updateClientState loads the snapshot, applies update, and stores it.
func (a *app) updateClientState(update func(*state.ClientState)) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(a.ctx, cfg, a.logger())
	if err != nil {
		return err
	}
	defer closeStore()

	snapshot, err := store.LoadClientState(a.ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	update(&snapshot)
	return store.StoreClientState(a.ctx, cfg.Store.Path, snapshot)
}

func (a *app) readToken(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(a.stdin, 64*1024))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading access token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("reading access token: %s is empty", path)
	}
	return token, nil
}
