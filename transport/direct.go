// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bureau-foundation/p2pmatrix/lib/netutil"
	"github.com/bureau-foundation/p2pmatrix/messaging"
)

// DefaultRequestTimeout bounds a direct request when DirectConfig
// leaves RequestTimeout unset.
const DefaultRequestTimeout = 30 * time.Second

// DirectConfig configures a DirectTransport.
type DirectConfig struct {
	// HTTPClient is the client used for requests. If nil, a new client
	// is built, routed through Dialer when one is set. Its own Timeout
	// is left alone; RequestTimeout applies on top.
	HTTPClient *http.Client

	// Dialer and DialAddress route every connection to a fixed address
	// regardless of the endpoint host. Ignored when HTTPClient is set.
	Dialer      Dialer
	DialAddress string

	// RequestTimeout bounds each exchange, including reading the body.
	// Zero or negative means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// MaxResponseSize bounds the response body. Zero means
	// netutil.MaxResponseSize.
	MaxResponseSize int64

	// Logger receives one debug record per exchange. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// DirectTransport sends requests straight to the homeserver over HTTP.
type DirectTransport struct {
	httpClient      *http.Client
	requestTimeout  time.Duration
	maxResponseSize int64
	logger          *slog.Logger
}

var _ Client = (*DirectTransport)(nil)

// NewDirectTransport creates a DirectTransport.
func NewDirectTransport(config DirectConfig) *DirectTransport {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if config.Dialer != nil {
			httpClient.Transport = HTTPTransport(config.Dialer, config.DialAddress)
		}
	}
	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	maxResponseSize := config.MaxResponseSize
	if maxResponseSize <= 0 {
		maxResponseSize = netutil.MaxResponseSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectTransport{
		httpClient:      httpClient,
		requestTimeout:  requestTimeout,
		maxResponseSize: maxResponseSize,
		logger:          logger,
	}
}

// SendRequest implements Client.
func (t *DirectTransport) SendRequest(ctx context.Context, requiresAuth bool, endpoint *url.URL, session *messaging.SessionHandle, method string, request Request) (*Response, error) {
	authorization, err := prepare(requiresAuth, session, method, &request)
	if err != nil {
		return nil, err
	}

	target, err := targetURL(endpoint, request.Path)
	if err != nil {
		return nil, newError(ErrConnectionFailed, request, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()

	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, request.Method, target, body)
	if err != nil {
		return nil, newError(ErrConnectionFailed, request, err)
	}
	httpRequest.Header = requestHeader(request.Header, authorization, request.Body)

	start := time.Now()
	httpResponse, err := t.httpClient.Do(httpRequest)
	if err != nil {
		return nil, t.failure(ctx, request, err)
	}
	defer httpResponse.Body.Close()

	responseBody, err := netutil.ReadResponseLimit(httpResponse.Body, t.maxResponseSize)
	if err != nil {
		if errors.Is(err, netutil.ErrResponseTooLarge) {
			return nil, newError(ErrMalformedResponse, request, err)
		}
		return nil, t.failure(ctx, request, err)
	}

	t.logger.Debug("direct request",
		"method", request.Method,
		"path", request.Path,
		"status", httpResponse.StatusCode,
		"duration", time.Since(start),
	)

	return &Response{
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       responseBody,
	}, nil
}

// failure classifies an I/O error. A deadline expiry (ours or the
// caller's) is ErrTimeout; everything else, caller cancellation
// included, is ErrConnectionFailed.
func (t *DirectTransport) failure(ctx context.Context, request Request, err error) *Error {
	kind := ErrConnectionFailed
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrTimeout
	}
	t.logger.Debug("direct request failed",
		"method", request.Method,
		"path", request.Path,
		"error", err,
	)
	return newError(kind, request, err)
}
