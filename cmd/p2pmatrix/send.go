// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/p2pmatrix/messaging"
	"github.com/bureau-foundation/p2pmatrix/transport"
)

func (a *app) sendCommand() *command {
	var (
		method   string
		body     string
		bodyFile string
		noAuth   bool
	)
	return &command{
		name:    "send",
		summary: "Send one request to the homeserver over the configured transport",
		usage:   "p2pmatrix send [flags] PATH",
		flags: func() *pflag.FlagSet {
			flagSet := a.newFlagSet("send")
			flagSet.StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
			flagSet.StringVarP(&body, "body", "d", "", "request body")
			flagSet.StringVar(&bodyFile, "body-file", "", "read the request body from a file")
			flagSet.BoolVar(&noAuth, "no-auth", false, "send without the stored access token")
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 1 {
				return usagef("send takes exactly one PATH argument (e.g. /_matrix/client/v3/account/whoami)")
			}
			if body != "" && bodyFile != "" {
				return usagef("--body and --body-file are mutually exclusive")
			}
			payload := []byte(body)
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("reading request body: %w", err)
				}
				payload = data
			}
			return a.send(strings.ToUpper(method), args[0], payload, !noAuth)
		},
	}
}

func (a *app) send(method, path string, body []byte, requiresAuth bool) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	endpoint, err := homeserverURL(cfg.Homeserver)
	if err != nil {
		return err
	}
	logger := a.logger().With("command", "send")

	store, closeStore, err := openStore(a.ctx, cfg, logger)
	if err != nil {
		return err
	}
	snapshot, err := store.LoadClientState(a.ctx, cfg.Store.Path)
	closeStore()
	if err != nil {
		return err
	}
	session := &messaging.SessionHandle{}
	if snapshot.Session != nil {
		session.Set(*snapshot.Session)
	}

	client, closeClient, err := newClient(a.ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	response, err := client.SendRequest(a.ctx, requiresAuth, endpoint, session, method, transport.Request{
		Path: path,
		Body: body,
	})
	if err != nil {
		return err
	}

	a.stdout.Write(response.Body)
	if len(response.Body) > 0 && !bytes.HasSuffix(response.Body, []byte("\n")) {
		fmt.Fprintln(a.stdout)
	}
	if !response.OK() {
		fmt.Fprintf(a.stderr, "HTTP %d: %v\n", response.StatusCode, response.MatrixError())
		return &exitError{code: 1}
	}
	return nil
}
