// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/p2pmatrix/lib/clock"
	"github.com/bureau-foundation/p2pmatrix/lib/codec"
	"github.com/bureau-foundation/p2pmatrix/lib/testutil"
)

// fakeRelayProcess accepts one connection on a Unix socket and answers
// each RelayRequest using respond. Closing hangup ends the connection.
type fakeRelayProcess struct {
	socketPath string
	listener   net.Listener
	hangup     chan struct{}
	requests   chan RelayRequest
}

func startFakeRelayProcess(t *testing.T, respond func(RelayRequest) (RelayResponse, bool)) *fakeRelayProcess {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "relay.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	process := &fakeRelayProcess{
		socketPath: socketPath,
		listener:   listener,
		hangup:     make(chan struct{}),
		requests:   make(chan RelayRequest, 16),
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			<-process.hangup
			conn.Close()
		}()

		decoder := codec.NewDecoder(conn)
		encoder := codec.NewEncoder(conn)
		for {
			var request RelayRequest
			if err := decoder.Decode(&request); err != nil {
				return
			}
			process.requests <- request
			response, ok := respond(request)
			if !ok {
				continue
			}
			if err := encoder.Encode(response); err != nil {
				return
			}
		}
	}()
	return process
}

func newSocketRelayTransport(t *testing.T, process *fakeRelayProcess) (*RelayTransport, *SocketRelay) {
	t.Helper()
	queue := NewRelayQueue(16)
	relay, err := DialSocketRelay(context.Background(), SocketRelayConfig{
		SocketPath: process.socketPath,
		Queue:      queue,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("DialSocketRelay: %v", err)
	}
	t.Cleanup(func() { relay.Close() })

	transport, err := NewRelayTransport(RelayConfig{
		Queue:     queue,
		Forwarder: relay,
		Timeout:   5 * time.Second,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewRelayTransport: %v", err)
	}
	t.Cleanup(func() { transport.Close() })
	return transport, relay
}

func TestSocketRelayRoundTrip(t *testing.T) {
	process := startFakeRelayProcess(t, func(request RelayRequest) (RelayResponse, bool) {
		return RelayResponse{
			ID:         request.ID,
			StatusCode: http.StatusOK,
			Header:     map[string][]string{"Content-Type": {"application/json"}},
			Body:       append([]byte(request.Method+" "), request.Body...),
		}, true
	})
	transport, _ := newSocketRelayTransport(t, process)

	response, err := transport.SendRequest(context.Background(), true, mustParseURL(t, "https://matrix.example.com"),
		testSession("socket-token"), http.MethodPost, Request{
			Path: "/_matrix/client/v3/createRoom",
			Body: []byte(`{"name":"lobby"}`),
		})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if string(response.Body) != `POST {"name":"lobby"}` {
		t.Errorf("body = %s", response.Body)
	}
	if response.Header["Content-Type"][0] != "application/json" {
		t.Errorf("header = %v", response.Header)
	}

	request := testutil.RequireReceive(t, process.requests, 5*time.Second, "waiting for relay process to see request")
	if request.URL != "https://matrix.example.com/_matrix/client/v3/createRoom" {
		t.Errorf("URL = %q", request.URL)
	}
	if got := http.Header(request.Header).Get("Authorization"); got != "Bearer socket-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestSocketRelayHangupClosesQueue(t *testing.T) {
	process := startFakeRelayProcess(t, func(RelayRequest) (RelayResponse, bool) {
		return RelayResponse{}, false
	})
	transport, relay := newSocketRelayTransport(t, process)

	results := make(chan error, 1)
	go func() {
		_, err := transport.SendRequest(context.Background(), false, mustParseURL(t, "https://matrix.example.com"),
			nil, http.MethodGet, Request{Path: "/_matrix/client/v3/sync"})
		results <- err
	}()
	testutil.RequireReceive(t, process.requests, 5*time.Second, "waiting for relay process to see request")

	close(process.hangup)

	err := testutil.RequireReceive(t, results, 5*time.Second, "waiting for pending request to fail")
	if !errors.Is(err, ErrRelayClosed) {
		t.Fatalf("err = %v, want ErrRelayClosed", err)
	}
	testutil.RequireClosed(t, relay.Done(), 5*time.Second, "waiting for read loop to exit")

	if err := relay.Forward(context.Background(), RelayRequest{ID: "late"}); !errors.Is(err, ErrRelayClosed) {
		t.Errorf("Forward after hangup = %v, want ErrRelayClosed", err)
	}
}

// A relay process that stops reading fills the socket buffer. The
// interrupted write leaves a partial frame behind, so the relay must
// disconnect rather than keep writing after it.
func TestSocketRelayInterruptedWriteDisconnects(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "stalled.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	queue := NewRelayQueue(4)
	relay, err := DialSocketRelay(context.Background(), SocketRelayConfig{
		SocketPath: socketPath,
		Queue:      queue,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("DialSocketRelay: %v", err)
	}
	t.Cleanup(func() { relay.Close() })
	peer := testutil.RequireReceive(t, accepted, 5*time.Second, "waiting for relay to connect")
	t.Cleanup(func() { peer.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = relay.Forward(ctx, RelayRequest{
		ID:     "large",
		Method: http.MethodPut,
		URL:    "https://matrix.example.com/_matrix/media/v3/upload",
		Body:   make([]byte, 8<<20),
	})
	if !errors.Is(err, ErrRelayClosed) {
		t.Fatalf("Forward into stalled socket = %v, want ErrRelayClosed", err)
	}

	testutil.RequireClosed(t, relay.Done(), 5*time.Second, "waiting for read loop to exit")
	testutil.RequireClosed(t, queue.Done(), 5*time.Second, "waiting for queue to close")
	if err := relay.Forward(context.Background(), RelayRequest{ID: "after"}); !errors.Is(err, ErrRelayClosed) {
		t.Errorf("Forward after interrupted write = %v, want ErrRelayClosed", err)
	}
}

func TestSocketRelaySkipsMisshapenFrame(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "misshapen.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		decoder := codec.NewDecoder(conn)
		encoder := codec.NewEncoder(conn)
		var request RelayRequest
		if err := decoder.Decode(&request); err != nil {
			return
		}
		// A well-formed CBOR integer where a response map belongs.
		if err := encoder.Encode(42); err != nil {
			return
		}
		if err := encoder.Encode(RelayResponse{ID: request.ID, StatusCode: http.StatusOK}); err != nil {
			return
		}
		decoder.Decode(&request)
	}()

	transport, relay := newSocketRelayTransport(t, &fakeRelayProcess{socketPath: socketPath, listener: listener})
	response, err := transport.SendRequest(context.Background(), false, mustParseURL(t, "https://matrix.example.com"),
		nil, http.MethodGet, Request{Path: "/_matrix/client/versions"})
	if err != nil {
		t.Fatalf("SendRequest after misshapen frame: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", response.StatusCode)
	}
	select {
	case <-relay.Done():
		t.Error("read loop exited on a misshapen frame")
	default:
	}
}

func TestDialSocketRelayRetriesWithBackoff(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "absent.sock")
	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	result := make(chan error, 1)
	go func() {
		_, err := DialSocketRelay(context.Background(), SocketRelayConfig{
			SocketPath:   socketPath,
			Queue:        NewRelayQueue(1),
			DialAttempts: 3,
			Clock:        fakeClock,
			Logger:       discardLogger(),
		})
		result <- err
	}()

	// Two backoff sleeps between three attempts: 50ms then 100ms.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(50 * time.Millisecond)
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(100 * time.Millisecond)

	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for dial to give up")
	if err == nil {
		t.Fatal("DialSocketRelay succeeded with no listener")
	}
}

func TestDialSocketRelayContextCancelled(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "absent.sock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DialSocketRelay(ctx, SocketRelayConfig{
		SocketPath: socketPath,
		Queue:      NewRelayQueue(1),
		Logger:     discardLogger(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDialSocketRelayConfigRequired(t *testing.T) {
	if _, err := DialSocketRelay(context.Background(), SocketRelayConfig{Queue: NewRelayQueue(1)}); err == nil {
		t.Error("accepted config with no socket path")
	}
	if _, err := DialSocketRelay(context.Background(), SocketRelayConfig{SocketPath: "/tmp/x.sock"}); err == nil {
		t.Error("accepted config with no queue")
	}
}
