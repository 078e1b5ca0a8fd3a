// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultRelayQueueCapacity is the capacity NewRelayQueue uses for a
// non-positive argument.
const DefaultRelayQueueCapacity = 1024

// RelayRequest is the request intent handed to the relay process. ID
// correlates it with the RelayResponse the process eventually
// delivers.
type RelayRequest struct {
	ID     string              `cbor:"id"`
	Method string              `cbor:"method"`
	URL    string              `cbor:"url"`
	Header map[string][]string `cbor:"header,omitempty"`
	Body   []byte              `cbor:"body,omitempty"`
}

// RelayResponse is a completed exchange delivered by the relay process.
type RelayResponse struct {
	ID         string              `cbor:"id"`
	StatusCode int                 `cbor:"status"`
	Header     map[string][]string `cbor:"header,omitempty"`
	Body       []byte              `cbor:"body,omitempty"`
}

// RelayForwarder hands request intent to the relay process. Forward
// returns once the request is handed off, not when it completes.
type RelayForwarder interface {
	Forward(ctx context.Context, request RelayRequest) error
}

// ForwarderFunc adapts a function to RelayForwarder.
type ForwarderFunc func(ctx context.Context, request RelayRequest) error

// Forward calls f.
func (f ForwarderFunc) Forward(ctx context.Context, request RelayRequest) error {
	return f(ctx, request)
}

// RelayQueue is the bounded feed of completed responses from the relay
// process to one RelayTransport. Any number of producers may Deliver;
// exactly one RelayTransport consumes. Closing the queue signals
// permanent relay shutdown.
type RelayQueue struct {
	responses chan RelayResponse
	closed    chan struct{}
	closeOnce sync.Once
	claimed   atomic.Bool
}

// NewRelayQueue creates a queue holding up to capacity undelivered
// responses.
func NewRelayQueue(capacity int) *RelayQueue {
	if capacity <= 0 {
		capacity = DefaultRelayQueueCapacity
	}
	return &RelayQueue{
		responses: make(chan RelayResponse, capacity),
		closed:    make(chan struct{}),
	}
}

// Deliver enqueues response, blocking while the queue is full. Returns
// ErrRelayClosed if the queue is closed, or ctx.Err() if ctx ends
// first.
func (q *RelayQueue) Deliver(ctx context.Context, response RelayResponse) error {
	select {
	case <-q.closed:
		return ErrRelayClosed
	default:
	}
	select {
	case q.responses <- response:
		return nil
	case <-q.closed:
		return ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the relay as permanently shut down. Idempotent.
// Responses already queued are still routed to their callers.
func (q *RelayQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Done returns a channel that is closed when the queue is closed.
func (q *RelayQueue) Done() <-chan struct{} {
	return q.closed
}

// Len returns the number of responses waiting to be consumed.
func (q *RelayQueue) Len() int {
	return len(q.responses)
}

var errQueueClaimed = errors.New("transport: relay queue already has a consumer")

// claim reserves the queue for a single consumer.
func (q *RelayQueue) claim() error {
	if !q.claimed.CompareAndSwap(false, true) {
		return errQueueClaimed
	}
	return nil
}
