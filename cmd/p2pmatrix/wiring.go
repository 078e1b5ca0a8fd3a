// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/bureau-foundation/p2pmatrix/lib/compress"
	"github.com/bureau-foundation/p2pmatrix/lib/config"
	"github.com/bureau-foundation/p2pmatrix/state"
	"github.com/bureau-foundation/p2pmatrix/transport"
)

// openStore builds the configured backend and opens its root. The
// returned close function releases backend resources.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (state.Store, func() error, error) {
	var (
		store     state.Store
		closeFunc = func() error { return nil }
	)
	switch cfg.Store.Backend {
	case config.BackendJSON:
		store = state.NewJSONStore(logger)
	case config.BackendSQLite:
		tag, err := compress.ParseTag(cfg.Store.Compression)
		if err != nil {
			return nil, nil, err
		}
		sqliteStore := state.NewSQLiteStore(state.SQLiteConfig{Compression: tag, Logger: logger})
		store = sqliteStore
		closeFunc = sqliteStore.Close
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if err := store.Open(ctx, cfg.Store.Path); err != nil {
		closeFunc()
		return nil, nil, err
	}
	logger.Debug("state store open", "backend", cfg.Store.Backend, "path", cfg.Store.Path)
	return store, closeFunc, nil
}

// newClient builds the configured transport. In relay mode it dials
// the relay socket; the close function tears down both the socket and
// the dispatcher.
func newClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.Client, func() error, error) {
	switch cfg.Transport.Mode {
	case config.TransportDirect:
		client := transport.NewDirectTransport(transport.DirectConfig{
			RequestTimeout: cfg.Transport.RequestTimeout,
			Logger:         logger,
		})
		return client, func() error { return nil }, nil

	case config.TransportRelay:
		relayConfig := cfg.Transport.Relay
		queue := transport.NewRelayQueue(relayConfig.QueueCapacity)
		relay, err := transport.DialSocketRelay(ctx, transport.SocketRelayConfig{
			SocketPath:   relayConfig.SocketPath,
			Queue:        queue,
			DialAttempts: relayConfig.DialAttempts,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, err
		}
		client, err := transport.NewRelayTransport(transport.RelayConfig{
			Queue:     queue,
			Forwarder: relay,
			Timeout:   relayConfig.Timeout,
			Logger:    logger,
		})
		if err != nil {
			relay.Close()
			return nil, nil, err
		}
		closeFunc := func() error {
			return errors.Join(relay.Close(), client.Close())
		}
		return client, closeFunc, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}
}

// homeserverURL parses the configured homeserver base URL.
func homeserverURL(raw string) (*url.URL, error) {
	endpoint, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("homeserver %q: %w", raw, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("homeserver %q: scheme must be http or https", raw)
	}
	if endpoint.Host == "" {
		return nil, fmt.Errorf("homeserver %q: missing host", raw)
	}
	return endpoint, nil
}
