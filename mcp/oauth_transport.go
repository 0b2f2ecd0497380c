// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/prismworks-ai/prism-mcp-go/auth"
	"golang.org/x/oauth2"
)

// withOAuth returns a shallow copy of client whose Transport authorizes
// every outbound request via handler, per the [auth.OAuthHandler] contract:
// attach the current token if one has already been obtained, and on a
// 401/403 hand the failing exchange to handler.Authorize to establish one
// before retrying exactly once. A nil handler returns client unchanged.
func withOAuth(client *http.Client, handler auth.OAuthHandler) *http.Client {
	if handler == nil {
		return client
	}
	cp := *client
	cp.Transport = newOAuthRoundTripper(client.Transport, handler)
	return &cp
}

// oauthRoundTripper is the [http.RoundTripper] withOAuth installs. It is
// grounded on auth/client_private.go's (build-tag-gated, deprecated)
// HTTPTransport, adapted to the un-gated two-method OAuthHandler interface
// in auth/client.go so that OAuth wiring works in a default build.
type oauthRoundTripper struct {
	base    http.RoundTripper
	handler auth.OAuthHandler

	mu     sync.Mutex
	source oauth2.TokenSource
}

func newOAuthRoundTripper(base http.RoundTripper, handler auth.OAuthHandler) *oauthRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &oauthRoundTripper{base: base, handler: handler}
}

func (t *oauthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	attempt := cloneWithBody(req, bodyBytes)
	t.applyToken(attempt)

	resp, err := t.base.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	// Authorize is documented to close resp.Body itself.
	if err := t.handler.Authorize(req.Context(), req, resp); err != nil {
		return nil, err
	}
	source, err := t.handler.TokenSource(req.Context())
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.source = source
	t.mu.Unlock()

	retry := cloneWithBody(req, bodyBytes)
	t.applyToken(retry)
	return t.base.RoundTrip(retry)
}

// applyToken attaches the current token source's token to req, if a token
// source has been obtained and it can mint a token without error. A missing
// or failing token source leaves req unauthenticated rather than failing the
// whole round trip; the server's 401/403 response is what actually drives
// acquiring a token via Authorize.
func (t *oauthRoundTripper) applyToken(req *http.Request) {
	t.mu.Lock()
	source := t.source
	t.mu.Unlock()
	if source == nil {
		var err error
		source, err = t.handler.TokenSource(req.Context())
		if err != nil || source == nil {
			return
		}
		t.mu.Lock()
		t.source = source
		t.mu.Unlock()
	}
	tok, err := source.Token()
	if err != nil {
		return
	}
	tok.SetAuthHeader(req)
}

func cloneWithBody(req *http.Request, bodyBytes []byte) *http.Request {
	clone := req.Clone(req.Context())
	if bodyBytes != nil {
		clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	return clone
}
