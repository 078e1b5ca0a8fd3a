// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/p2pmatrix/messaging"
)

// Client executes one request/response exchange with a homeserver.
// Implementations are safe for concurrent use and never mutate the
// session.
type Client interface {
	// SendRequest sends request to endpoint. When requiresAuth is set,
	// the current session's access token is attached as a Bearer
	// credential; with no session the call fails with
	// ErrUnauthenticated before any I/O. method overrides
	// request.Method when non-empty.
	//
	// A response with any HTTP status is returned as a *Response. The
	// error is non-nil only when no response was obtained.
	SendRequest(ctx context.Context, requiresAuth bool, endpoint *url.URL, session *messaging.SessionHandle, method string, request Request) (*Response, error)
}

// Request is one outgoing exchange. Transports do not interpret Body.
type Request struct {
	// Method is the HTTP method. Defaults to GET.
	Method string
	// Path is either a path relative to the endpoint
	// ("/_matrix/client/v3/sync?since=s1") or an absolute URL.
	Path string
	// Header holds extra request headers. May be nil.
	Header http.Header
	// Body is the raw request body. May be nil.
	Body []byte
}

// Response is one completed exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MatrixError returns the decoded Matrix error for a non-2xx response,
// or nil for a 2xx response.
func (r *Response) MatrixError() *messaging.MatrixError {
	if r.OK() {
		return nil
	}
	return messaging.ParseMatrixError(r.StatusCode, r.Body)
}

// prepare settles the method and presence of credentials, returning
// the Authorization header value to attach (empty when none). It runs
// before any I/O so an unauthenticated request never leaves the
// process.
func prepare(requiresAuth bool, session *messaging.SessionHandle, method string, request *Request) (string, error) {
	if method != "" {
		request.Method = method
	}
	if request.Method == "" {
		request.Method = http.MethodGet
	}
	if !requiresAuth {
		return "", nil
	}
	current, ok := session.Get()
	if !ok || current.AccessToken == "" {
		return "", newError(ErrUnauthenticated, *request, nil)
	}
	return "Bearer " + current.AccessToken, nil
}

// targetURL joins the endpoint and the request path. Concatenation
// rather than url.URL.ResolveReference keeps percent-encoded path
// segments (room aliases with slashes, for example) intact.
func targetURL(endpoint *url.URL, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		if _, err := url.Parse(path); err != nil {
			return "", err
		}
		return path, nil
	}
	if endpoint == nil {
		return "", fmt.Errorf("relative path %q with no endpoint", path)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(endpoint.String(), "/") + path, nil
}

// requestHeader copies header and adds the authorization and default
// content type.
func requestHeader(header http.Header, authorization string, body []byte) http.Header {
	result := header.Clone()
	if result == nil {
		result = make(http.Header)
	}
	if authorization != "" {
		result.Set("Authorization", authorization)
	}
	if len(body) > 0 && result.Get("Content-Type") == "" {
		result.Set("Content-Type", "application/json")
	}
	return result
}
