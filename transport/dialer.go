// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Dialer opens connections for DirectTransport when the homeserver is
// reached through something other than its URL host: a Unix socket to
// a local credential proxy, or a fixed TCP address in development.
type Dialer interface {
	// DialContext opens a network connection to address. The address
	// format is dialer-specific.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// Compile-time interface checks.
var (
	_ Dialer = (*TCPDialer)(nil)
	_ Dialer = (*UnixDialer)(nil)
)

// HTTPTransport creates an http.RoundTripper that routes all requests
// through the given Dialer to the specified address. The URL host in
// requests is ignored; it still populates the Host header.
func HTTPTransport(dialer Dialer, address string) http.RoundTripper {
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, address)
		},
	}
}

// TCPDialer opens TCP connections to host:port addresses.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means only the context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}

// UnixDialer opens Unix domain socket connections. The address is the
// socket path.
type UnixDialer struct {
	Timeout time.Duration
}

// DialContext opens a connection to the socket at address.
func (d *UnixDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "unix", address)
}
