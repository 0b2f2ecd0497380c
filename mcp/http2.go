// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// NewHTTP2StreamableHandler wraps handler (typically a
// [StreamableHTTPHandler]) so it is served over HTTP/2, including cleartext
// HTTP/2 (h2c) for clients that connect without TLS — common for
// same-datacenter service-to-service MCP traffic where a TLS terminator
// sits in front of the pod, per spec.md §4.2's transport-agnostic
// framing: the same streamable HTTP wire format travels over either
// protocol version, since http2.Server only affects how the bytes are
// framed, not the request/response or SSE semantics in streamable.go.
func NewHTTP2StreamableHandler(handler http.Handler) http.Handler {
	h2s := &http2.Server{}
	return h2c.NewHandler(handler, h2s)
}

// ConfigureHTTP2Server upgrades srv in place to also accept TLS-negotiated
// HTTP/2 (via ALPN) on top of whatever h1/h2c support was already wired via
// [NewHTTP2StreamableHandler]. Call this once before srv.ListenAndServeTLS.
func ConfigureHTTP2Server(srv *http.Server) error {
	return http2.ConfigureServer(srv, &http2.Server{})
}

// HTTP2ClientTransportOptions configures [NewHTTP2Client].
type HTTP2ClientTransportOptions struct {
	// TLSConfig is used for HTTP/2-over-TLS connections. If nil, Go's
	// default configuration is used.
	TLSConfig *tls.Config

	// AllowHTTP permits the returned client to speak cleartext HTTP/2
	// (h2c) to "http://" URLs, rather than falling back to HTTP/1.1. Use
	// this to talk to a server wrapped in [NewHTTP2StreamableHandler]
	// without TLS.
	AllowHTTP bool
}

// NewHTTP2Client returns an [*http.Client] that negotiates HTTP/2 for its
// requests, suitable for the HTTPClient field of
// [StreamableClientTransportOptions]. Streamable HTTP's long-lived GET
// (the SSE stream) and concurrent POSTs multiplex cleanly over a single
// HTTP/2 connection instead of exhausting the peer's HTTP/1.1 connection
// pool, which matters once a client holds one session open per server it
// talks to.
func NewHTTP2Client(opts *HTTP2ClientTransportOptions) *http.Client {
	if opts == nil {
		opts = &HTTP2ClientTransportOptions{}
	}
	transport := &http2.Transport{
		TLSClientConfig: opts.TLSConfig,
	}
	if opts.AllowHTTP {
		transport.AllowHTTP = true
		// With AllowHTTP, http2.Transport otherwise refuses to dial
		// "http://" URLs over a TCP socket instead of TLS; DialTLSContext
		// supplies that raw dial so h2c actually works.
		transport.DialTLSContext = h2cDialer()
	}
	return &http.Client{Transport: transport}
}

// h2cDialer returns the raw-TCP dial func http2.Transport needs to speak h2c:
// without it, http2.Transport insists on a TLS handshake even when
// AllowHTTP is set.
func h2cDialer() func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
	var d net.Dialer
	return func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
		return d.DialContext(ctx, network, addr)
	}
}
