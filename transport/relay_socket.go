// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/p2pmatrix/lib/clock"
	"github.com/bureau-foundation/p2pmatrix/lib/codec"
	"github.com/bureau-foundation/p2pmatrix/lib/netutil"
)

// Dial backoff for the relay socket.
const (
	relayDialBaseDelay = 50 * time.Millisecond
	relayDialMaxDelay  = 2 * time.Second

	// DefaultRelayDialAttempts is used when SocketRelayConfig leaves
	// DialAttempts unset.
	DefaultRelayDialAttempts = 5
)

// SocketRelayConfig configures DialSocketRelay.
type SocketRelayConfig struct {
	// SocketPath is the relay process's Unix socket. Required.
	SocketPath string

	// Queue receives every response the relay process sends. Required.
	Queue *RelayQueue

	// DialAttempts bounds connection attempts. Zero means
	// DefaultRelayDialAttempts.
	DialAttempts int

	// Clock drives dial backoff. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger, if nil, is slog.Default().
	Logger *slog.Logger
}

// SocketRelay connects a RelayTransport to a relay process over a Unix
// socket. Outbound frames are CBOR-encoded RelayRequest values;
// inbound frames are RelayResponse values, delivered to the queue in
// arrival order. When the connection ends, for any reason, the queue
// is closed.
type SocketRelay struct {
	conn   net.Conn
	queue  *RelayQueue
	logger *slog.Logger

	writeMu sync.Mutex
	encoder *codec.Encoder

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

var _ RelayForwarder = (*SocketRelay)(nil)

// DialSocketRelay connects to the relay process, retrying with
// exponential backoff, and starts the read loop.
func DialSocketRelay(ctx context.Context, config SocketRelayConfig) (*SocketRelay, error) {
	if config.SocketPath == "" {
		return nil, fmt.Errorf("transport: socket relay config has no socket path")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("transport: socket relay config has no queue")
	}
	attempts := config.DialAttempts
	if attempts <= 0 {
		attempts = DefaultRelayDialAttempts
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dialWithBackoff(ctx, clk, logger, config.SocketPath, attempts)
	if err != nil {
		return nil, err
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	relay := &SocketRelay{
		conn:    conn,
		queue:   config.Queue,
		logger:  logger,
		encoder: codec.NewEncoder(conn),
		ctx:     relayCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go relay.readLoop()
	return relay, nil
}

func dialWithBackoff(ctx context.Context, clk clock.Clock, logger *slog.Logger, socketPath string, attempts int) (net.Conn, error) {
	dialer := &UnixDialer{}
	delay := relayDialBaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		logger.Debug("relay socket dial failed, retrying",
			"path", socketPath,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transport: dialing relay socket %s: %w", socketPath, ctx.Err())
		case <-clk.After(delay):
		}
		delay = min(delay*2, relayDialMaxDelay)
	}
	return nil, fmt.Errorf("transport: dialing relay socket %s after %d attempts: %w", socketPath, attempts, lastErr)
}

// Forward writes request to the relay socket. Concurrent calls are
// serialized. The write honors ctx's deadline and cancellation. A write
// that fails partway leaves a partial frame on the stream, so any write
// error disconnects the relay and is reported as ErrRelayClosed.
func (r *SocketRelay) Forward(ctx context.Context, request RelayRequest) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	// Zero when ctx has no deadline, which also clears any deadline a
	// previous interrupted write left behind.
	deadline, _ := ctx.Deadline()
	if err := r.conn.SetWriteDeadline(deadline); err != nil {
		r.disconnect()
		return fmt.Errorf("transport: setting relay write deadline: %w: %w", ErrRelayClosed, err)
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		r.conn.SetWriteDeadline(time.Unix(1, 0))
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
	}()

	if err := r.encoder.Encode(request); err != nil {
		r.logger.Warn("relay socket write failed, disconnecting", "correlation_id", request.ID, "error", err)
		r.disconnect()
		return fmt.Errorf("transport: writing relay request %s: %w: %w", request.ID, ErrRelayClosed, err)
	}
	return nil
}

// Close disconnects from the relay process and closes the queue. Blocks
// until the read loop exits. Idempotent.
func (r *SocketRelay) Close() error {
	err := r.disconnect()
	<-r.done
	if err != nil && !netutil.IsExpectedCloseError(err) {
		return err
	}
	return nil
}

// disconnect closes the connection once. The read loop then exits and
// closes the queue. Only the first call reports the close error.
func (r *SocketRelay) disconnect() error {
	var err error
	r.closeOnce.Do(func() {
		r.cancel()
		err = r.conn.Close()
	})
	return err
}

// Done returns a channel that is closed when the read loop exits.
func (r *SocketRelay) Done() <-chan struct{} {
	return r.done
}

func (r *SocketRelay) readLoop() {
	defer close(r.done)
	defer r.queue.Close()

	decoder := codec.NewDecoder(r.conn)
	for {
		var frame codec.RawMessage
		if err := decoder.Decode(&frame); err != nil {
			if netutil.IsExpectedCloseError(err) || r.ctx.Err() != nil {
				r.logger.Info("relay socket closed")
			} else {
				r.logger.Warn("relay socket read failed", "error", err)
			}
			return
		}
		// The frame boundary is intact, so a frame of the wrong shape is
		// dropped and the stream continues.
		var response RelayResponse
		if err := codec.Unmarshal(frame, &response); err != nil {
			diagnostic, diagnoseErr := codec.Diagnose(frame)
			if diagnoseErr != nil {
				diagnostic = fmt.Sprintf("%x", frame)
			}
			r.logger.Warn("dropping undecodable relay frame", "error", err, "frame", diagnostic)
			continue
		}
		if err := r.queue.Deliver(r.ctx, response); err != nil {
			if !errors.Is(err, ErrRelayClosed) && r.ctx.Err() == nil {
				r.logger.Warn("relay response delivery failed", "correlation_id", response.ID, "error", err)
			}
			return
		}
	}
}
