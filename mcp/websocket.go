// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prismworks-ai/prism-mcp-go/auth"
	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// WebSocketClientTransport provides a WebSocket-based transport for MCP clients.
// It connects to a WebSocket server and uses the 'mcp' subprotocol for communication.
//
// The connection sends a heartbeat ping every 30s. Connect dials once; the
// transport does not reconnect when the connection drops, and nothing in
// this package calls [backoffWithJitter].
type WebSocketClientTransport struct {
	// URL is the WebSocket server URL (e.g., "ws://localhost:8080/mcp" or "wss://example.com/mcp")
	URL string

	// Dialer is the WebSocket dialer to use. If nil, a default dialer will be used.
	Dialer *websocket.Dialer

	// Header specifies additional HTTP headers to send during the WebSocket handshake.
	Header http.Header

	// MaxFrameBytes bounds a single decoded message; 0 selects jsonrpc.DefaultMaxFrameBytes.
	MaxFrameBytes int64

	// OAuth, if set, authorizes the handshake per the [auth.OAuthHandler]
	// contract: a previously obtained token is attached as a Bearer
	// Authorization header before dialing, and a handshake rejected with
	// 401/403 triggers OAuth's flow before the dial is retried once.
	OAuth auth.OAuthHandler
}

const (
	websocketHeartbeatInterval = 30 * time.Second
	websocketMaxBackoff        = 30 * time.Second
)

// authorizedHeader returns a copy of t.Header with a Bearer Authorization
// header attached from t.OAuth's current token source, if any. A handler
// that errors or has no token yet leaves the header untouched; the
// handshake then proceeds unauthenticated and, if rejected, Connect's
// 401/403 retry path takes over.
func (t *WebSocketClientTransport) authorizedHeader(ctx context.Context) http.Header {
	if t.OAuth == nil {
		return t.Header
	}
	source, err := t.OAuth.TokenSource(ctx)
	if err != nil || source == nil {
		return t.Header
	}
	tok, err := source.Token()
	if err != nil {
		return t.Header
	}
	header := t.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	authReq := &http.Request{Header: header}
	tok.SetAuthHeader(authReq)
	return header
}

// Connect establishes a WebSocket connection to the configured URL.
func (t *WebSocketClientTransport) Connect(ctx context.Context) (Connection, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	// Set the MCP subprotocol
	dialer.Subprotocols = []string{"mcp"}

	header := t.authorizedHeader(ctx)
	conn, resp, err := dialer.DialContext(ctx, t.URL, header)
	if err != nil && t.OAuth != nil && resp != nil &&
		(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		authReq, aerr := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
		if aerr == nil {
			if aerr := t.OAuth.Authorize(ctx, authReq, resp); aerr == nil {
				header = t.authorizedHeader(ctx)
				conn, resp, err = dialer.DialContext(ctx, t.URL, header)
			}
		}
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed: %w (status: %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	wc := &websocketConn{
		conn:          conn,
		sessionID:     randText(),
		maxFrameBytes: t.MaxFrameBytes,
		stopHeartbeat: make(chan struct{}),
	}
	wc.conn.SetPongHandler(func(string) error { return nil })
	go wc.heartbeatLoop()
	return wc, nil
}

// websocketConn implements the Connection interface for WebSocket connections.
type websocketConn struct {
	conn          *websocket.Conn
	sessionID     string
	maxFrameBytes int64
	mu            sync.Mutex // Protects Write operations
	closeOnce     sync.Once
	stopHeartbeat chan struct{}
}

// heartbeatLoop sends a ping every websocketHeartbeatInterval, per spec.md §4.2.
func (c *websocketConn) heartbeatLoop() {
	ticker := time.NewTicker(websocketHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-c.stopHeartbeat:
			return
		}
	}
}

// backoffWithJitter returns the delay for reconnect attempt n (0-based),
// exponential with base 1s, capped at websocketMaxBackoff, with full jitter.
func backoffWithJitter(attempt int) time.Duration {
	base := time.Second << attempt
	if base > websocketMaxBackoff || base <= 0 {
		base = websocketMaxBackoff
	}
	return time.Duration(mathrand.Int63n(int64(base)))
}

// Read reads a JSON-RPC message from the WebSocket connection.
func (c *websocketConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	// Set up context cancellation
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	// Read message from WebSocket
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("websocket read error: %w", err)
	}

	// Ensure we received a text message (JSON-RPC should be text)
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket message type: %d (expected text)", messageType)
	}

	// Decode the JSON-RPC message
	msg, err := jsonrpc.DecodeMessage(data, c.maxFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON-RPC message: %w", err)
	}

	return msg, nil
}

// Write sends a JSON-RPC message over the WebSocket connection.
func (c *websocketConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	// Encode the message before acquiring lock to reduce contention
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to encode JSON-RPC message: %w", err)
	}

	// Check context before expensive operations
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Fast path: if context is already done, bail out immediately
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Set write deadline if context has deadline
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{}) // Reset deadline
	}

	// Write directly - gorilla/websocket handles blocking
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write error: %w", err)
	}

	return nil
}

// Close closes the WebSocket connection gracefully.
func (c *websocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopHeartbeat)
		// Close the connection directly
		// The gorilla/websocket library handles the close handshake
		err = c.conn.Close()
	})
	return err
}

// SessionID returns the unique session identifier for this connection.
func (c *websocketConn) SessionID() string {
	return c.sessionID
}

// WebSocketServerTransport provides a WebSocket server transport for MCP servers.
// It can be used as an http.Handler to upgrade HTTP connections to WebSocket.
// Each upgraded connection is handed to the [*Server] returned by serverFor,
// so a single transport can multiplex requests across several servers (e.g.
// to select one by path or header) the way [StreamableHTTPHandler] does.
type WebSocketServerTransport struct {
	upgrader  websocket.Upgrader
	serverFor func(*http.Request) *Server
}

// NewWebSocketServerTransport creates a new WebSocket server transport.
// serverFor selects which [*Server] handles a given upgrade request.
func NewWebSocketServerTransport(serverFor func(*http.Request) *Server) *WebSocketServerTransport {
	return &WebSocketServerTransport{
		serverFor: serverFor,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"mcp"},
			CheckOrigin: func(r *http.Request) bool {
				// By default, allow all origins. In production, implement proper origin checking.
				return true
			},
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and runs an MCP
// session over it until the connection closes.
func (t *WebSocketServerTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv := t.serverFor(r)
	if srv == nil {
		http.Error(w, "no server configured for request", http.StatusNotFound)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("WebSocket upgrade failed: %v", err), http.StatusBadRequest)
		return
	}
	wc := t.accept(conn)

	session, err := srv.Connect(r.Context(), &preEstablishedTransport{wc}, nil)
	if err != nil {
		wc.Close()
		return
	}
	session.Wait()
}

// accept wraps an already-upgraded connection as a [Connection] and starts
// its heartbeat loop.
func (t *WebSocketServerTransport) accept(conn *websocket.Conn) *websocketConn {
	wc := &websocketConn{
		conn:          conn,
		sessionID:     randText(),
		stopHeartbeat: make(chan struct{}),
	}
	wc.conn.SetPongHandler(func(string) error { return nil })
	go wc.heartbeatLoop()
	return wc
}

// preEstablishedTransport adapts a [Connection] that already exists (e.g. a
// WebSocket connection upgraded by an [http.Handler]) to the [Transport]
// interface expected by [Server.Connect] / [Client.Connect].
type preEstablishedTransport struct {
	conn Connection
}

func (p *preEstablishedTransport) Connect(context.Context) (Connection, error) {
	return p.conn, nil
}
