// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/p2pmatrix/lib/clock"
	"github.com/bureau-foundation/p2pmatrix/messaging"
)

// DefaultRelayTimeout bounds the wait for a relayed response when
// RelayConfig leaves Timeout unset.
const DefaultRelayTimeout = 30 * time.Second

// RelayConfig configures a RelayTransport.
type RelayConfig struct {
	// Queue is the response feed. Required; a queue serves one
	// transport for its lifetime.
	Queue *RelayQueue

	// Forwarder hands requests to the relay process. Required.
	Forwarder RelayForwarder

	// Timeout bounds each wait for a response. Zero or negative means
	// DefaultRelayTimeout.
	Timeout time.Duration

	// Clock drives the timeout. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger receives dispatch diagnostics. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// RelayTransport sends requests through a cooperating relay process
// and waits for correlated responses on a RelayQueue.
type RelayTransport struct {
	queue     *RelayQueue
	forwarder RelayForwarder
	timeout   time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan RelayResponse

	// closed is closed by the dispatcher once no further responses
	// will be routed.
	closed chan struct{}
	done   chan struct{}
}

var _ Client = (*RelayTransport)(nil)

// NewRelayTransport claims the queue and starts the dispatcher. Call
// Close to stop it.
func NewRelayTransport(config RelayConfig) (*RelayTransport, error) {
	if config.Queue == nil {
		return nil, fmt.Errorf("transport: relay config has no queue")
	}
	if config.Forwarder == nil {
		return nil, fmt.Errorf("transport: relay config has no forwarder")
	}
	if err := config.Queue.claim(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &RelayTransport{
		queue:     config.Queue,
		forwarder: config.Forwarder,
		timeout:   timeout,
		clock:     clk,
		logger:    logger,
		pending:   make(map[string]chan RelayResponse),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.dispatch()
	return t, nil
}

// SendRequest implements Client.
func (t *RelayTransport) SendRequest(ctx context.Context, requiresAuth bool, endpoint *url.URL, session *messaging.SessionHandle, method string, request Request) (*Response, error) {
	authorization, err := prepare(requiresAuth, session, method, &request)
	if err != nil {
		return nil, err
	}
	target, err := targetURL(endpoint, request.Path)
	if err != nil {
		return nil, newError(ErrConnectionFailed, request, err)
	}

	id := uuid.NewString()
	slot, err := t.register(id)
	if err != nil {
		return nil, newError(ErrRelayClosed, request, nil)
	}
	defer t.release(id)

	// The timeout covers forwarding as well as the wait for a response,
	// so a stalled forwarder cannot hold the caller past it.
	timeout := t.clock.After(t.timeout)
	forwardContext, cancelForward := context.WithCancel(ctx)
	defer cancelForward()
	forwarded := make(chan error, 1)
	go func() {
		forwarded <- t.forwarder.Forward(forwardContext, RelayRequest{
			ID:     id,
			Method: request.Method,
			URL:    target,
			Header: requestHeader(request.Header, authorization, request.Body),
			Body:   request.Body,
		})
	}()

	select {
	case err := <-forwarded:
		if errors.Is(err, ErrRelayClosed) {
			return nil, newError(ErrRelayClosed, request, err)
		}
		if err != nil {
			return nil, newError(ErrConnectionFailed, request, err)
		}
	case <-t.closed:
		// The forward may have finished and its response been routed
		// before this select observed the close.
		select {
		case response := <-slot:
			return t.complete(request, response)
		default:
			return nil, newError(ErrRelayClosed, request, nil)
		}
	case <-ctx.Done():
		t.logger.Debug("relay forward abandoned", "correlation_id", id, "path", request.Path, "error", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(ErrTimeout, request, ctx.Err())
		}
		return nil, newError(ErrConnectionFailed, request, ctx.Err())
	case <-timeout:
		t.logger.Debug("relay forward timed out", "correlation_id", id, "path", request.Path, "timeout", t.timeout)
		return nil, newError(ErrTimeout, request, fmt.Errorf("forward not accepted after %v", t.timeout))
	}

	select {
	case response := <-slot:
		return t.complete(request, response)
	case <-t.closed:
		// The dispatcher may have routed our response just before
		// shutting down.
		select {
		case response := <-slot:
			return t.complete(request, response)
		default:
			return nil, newError(ErrRelayClosed, request, nil)
		}
	case <-ctx.Done():
		t.logger.Debug("relay request abandoned", "correlation_id", id, "path", request.Path, "error", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(ErrTimeout, request, ctx.Err())
		}
		return nil, newError(ErrConnectionFailed, request, ctx.Err())
	case <-timeout:
		t.logger.Debug("relay request timed out", "correlation_id", id, "path", request.Path, "timeout", t.timeout)
		return nil, newError(ErrTimeout, request, fmt.Errorf("no response after %v", t.timeout))
	}
}

// Pending returns the number of requests awaiting a response.
func (t *RelayTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close shuts the relay down: the queue is closed, pending requests
// fail with ErrRelayClosed, and later requests fail without being
// forwarded. Blocks until the dispatcher exits. Idempotent.
func (t *RelayTransport) Close() error {
	t.queue.Close()
	<-t.done
	return nil
}

// Done returns a channel that is closed once the transport stops
// routing responses.
func (t *RelayTransport) Done() <-chan struct{} {
	return t.closed
}

func (t *RelayTransport) register(id string) (chan RelayResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.closed:
		return nil, ErrRelayClosed
	default:
	}
	slot := make(chan RelayResponse, 1)
	t.pending[id] = slot
	return slot, nil
}

func (t *RelayTransport) release(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *RelayTransport) complete(request Request, response RelayResponse) (*Response, error) {
	if response.StatusCode < 100 || response.StatusCode > 599 {
		return nil, newError(ErrMalformedResponse, request,
			fmt.Errorf("relay response %s has status %d", response.ID, response.StatusCode))
	}
	return &Response{
		StatusCode: response.StatusCode,
		Header:     response.Header,
		Body:       response.Body,
	}, nil
}

// dispatch is the queue's single consumer.
func (t *RelayTransport) dispatch() {
	defer close(t.done)
	for {
		select {
		case response := <-t.queue.responses:
			t.route(response)
		case <-t.queue.closed:
			t.drain()
			t.mu.Lock()
			close(t.closed)
			pending := len(t.pending)
			t.mu.Unlock()
			t.logger.Info("relay closed", "pending", pending)
			return
		}
	}
}

// drain routes responses that were queued before the close.
func (t *RelayTransport) drain() {
	for {
		select {
		case response := <-t.queue.responses:
			t.route(response)
		default:
			return
		}
	}
}

func (t *RelayTransport) route(response RelayResponse) {
	t.mu.Lock()
	slot, ok := t.pending[response.ID]
	delete(t.pending, response.ID)
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("dropping relay response with no waiting request",
			"correlation_id", response.ID,
			"status", response.StatusCode,
		)
		return
	}
	// Capacity 1 and the entry is gone, so this never blocks.
	slot <- response
}
