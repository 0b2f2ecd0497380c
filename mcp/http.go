// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/prismworks-ai/prism-mcp-go/auth"
	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// PlainHTTPHandler is an [http.Handler] serving the plain request/response
// HTTP transport: every JSON-RPC exchange is exactly one POST in, one
// response out, with no hanging GET and no SSE stream. It is the
// minimal-ceremony sibling of [StreamableHTTPHandler], for clients that
// never need a server-initiated reverse call (sampling/createMessage,
// elicitation/create, roots/list) and would rather not hold a long-lived
// connection open.
//
// Because there is no channel for the server to push through between
// client requests, a [Server] connected over this transport cannot issue
// reverse calls; attempting one fails immediately with an error rather
// than hanging.
type PlainHTTPHandler struct {
	getServer func(*http.Request) *Server

	// MaxBodyBytes caps the size of an incoming POST body, with the same
	// zero/negative semantics as [StreamableHTTPOptions.MaxBodyBytes].
	MaxBodyBytes int64
}

// NewPlainHTTPHandler returns a handler that looks up or creates a
// [*Server] for each request via getServer, the same dispatch idiom
// [NewStreamableHTTPHandler] uses.
func NewPlainHTTPHandler(getServer func(*http.Request) *Server) *PlainHTTPHandler {
	return &PlainHTTPHandler{getServer: getServer}
}

func (h *PlainHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
		return
	}

	if limit := effectiveMaxBodyBytes(h.MaxBodyBytes); limit > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, limit)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeRequestBodyTooLarge(w)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "POST requires a non-empty body", http.StatusBadRequest)
		return
	}

	msgs, wasBatch, err := readBatch(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("malformed payload: %v", err), http.StatusBadRequest)
		return
	}

	conn := newPlainServerConn(msgs, wasBatch)
	server := h.getServer(req)
	if _, err := server.Connect(req.Context(), &preEstablishedTransport{conn}, nil); err != nil {
		http.Error(w, "failed connection", http.StatusInternalServerError)
		return
	}

	responses, err := conn.waitForResponses(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	if len(responses) == 0 {
		// Every incoming message was a notification: nothing to report.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	var payload []byte
	if len(responses) == 1 && !conn.wasBatch {
		payload, err = jsonrpc.EncodeMessage(responses[0])
	} else {
		payload, err = encodeBatch(responses)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Write(payload)
}

// encodeBatch marshals msgs as a JSON array of their individual wire
// forms. [jsonrpc.EncodeMessage] itself refuses to encode a [jsonrpc.Batch]
// (the session core only ever emits singleton messages, per spec.md §9),
// so a plain request/response reply that fans out to more than one
// response builds the array by hand.
func encodeBatch(msgs []JSONRPCMessage) ([]byte, error) {
	parts := make([][]byte, len(msgs))
	for i, m := range msgs {
		data, err := jsonrpc.EncodeMessage(m)
		if err != nil {
			return nil, err
		}
		parts[i] = data
	}
	out := make([]byte, 0, 2+len(parts)*2)
	out = append(out, '[')
	for i, p := range parts {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, p...)
	}
	out = append(out, ']')
	return out, nil
}

// plainServerConn is the one-shot [Connection] behind [PlainHTTPHandler]:
// Read replays the decoded request body's messages once each, Write
// collects replies until every request has been answered, at which point
// waitForResponses unblocks the handler.
type plainServerConn struct {
	wasBatch bool

	mu      sync.Mutex
	pending map[JSONRPCID]bool // request ID -> still awaiting a response
	toRead  []JSONRPCMessage
	replies []JSONRPCMessage
	done    chan struct{}
	closed  bool
}

func newPlainServerConn(msgs []JSONRPCMessage, wasBatch bool) *plainServerConn {
	c := &plainServerConn{
		toRead:   msgs,
		wasBatch: wasBatch,
		pending:  make(map[JSONRPCID]bool),
		done:     make(chan struct{}),
	}
	for _, m := range msgs {
		if r, ok := m.(*JSONRPCRequest); ok && r.ID.IsValid() {
			c.pending[r.ID] = true
		}
	}
	if len(c.pending) == 0 {
		close(c.done) // all notifications: nothing to wait for
	}
	return c
}

func (c *plainServerConn) SessionID() string { return "" }

func (c *plainServerConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toRead) == 0 {
		// The session keeps calling Read after it has drained every request
		// it was handed; block until the connection is torn down rather
		// than returning io.EOF (which would look like a transport error).
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			c.mu.Lock()
			return nil, ctx.Err()
		case <-c.done:
			c.mu.Lock()
			return nil, io.EOF
		}
	}
	msg := c.toRead[0]
	c.toRead = c.toRead[1:]
	return msg, nil
}

func (c *plainServerConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := msg.(*JSONRPCResponse)
	if !ok {
		// A server-initiated request or notification has nowhere to go on a
		// one-shot connection; surface that immediately instead of hanging.
		return errors.New("mcp: plain HTTP transport cannot carry a server-initiated message")
	}
	c.replies = append(c.replies, resp)
	delete(c.pending, resp.ID)
	if len(c.pending) == 0 && !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *plainServerConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// waitForResponses blocks until every request this connection was handed
// has been answered, ctx is done, or the connection is closed early.
func (c *plainServerConn) waitForResponses(ctx context.Context) ([]JSONRPCMessage, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("mcp: request canceled before a response was produced: %w", ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replies, nil
}

// PlainHTTPClientTransportOptions configures a [PlainHTTPClientTransport].
type PlainHTTPClientTransportOptions struct {
	// HTTPClient is the client used to issue each POST. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client

	// ModifyRequest, if set, is called on every outgoing POST before it is
	// sent, so callers can attach auth headers or other per-request
	// metadata, mirroring [StreamableClientTransportOptions.ModifyRequest].
	ModifyRequest func(*http.Request)

	// OAuth, if set, authorizes every outgoing POST per the
	// [auth.OAuthHandler] contract: the current token is attached
	// automatically, and a 401/403 response triggers OAuth's flow before the
	// request is retried once.
	OAuth auth.OAuthHandler
}

// PlainHTTPClientTransport is the client half of [PlainHTTPHandler]: every
// message written to the resulting [Connection] becomes its own POST, and
// the decoded response(s) are queued for the next Read. There is no hanging
// GET and no SSE stream, so a server connected through this transport can
// never push a reverse call between requests; each POST carries exactly the
// messages the caller wrote since the last one.
type PlainHTTPClientTransport struct {
	url  string
	opts PlainHTTPClientTransportOptions
}

// NewPlainHTTPClientTransport returns a client transport that POSTs to url.
func NewPlainHTTPClientTransport(url string, opts *PlainHTTPClientTransportOptions) *PlainHTTPClientTransport {
	t := &PlainHTTPClientTransport{url: url}
	if opts != nil {
		t.opts = *opts
	}
	return t
}

// Connect implements the [Transport] interface.
func (t *PlainHTTPClientTransport) Connect(ctx context.Context) (Connection, error) {
	client := t.opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	client = withOAuth(client, t.opts.OAuth)
	return &plainClientConn{
		url:           t.url,
		client:        client,
		modifyRequest: t.opts.ModifyRequest,
		incoming:      make(chan JSONRPCMessage, 16),
		done:          make(chan struct{}),
	}, nil
}

// plainClientConn is the client-side [Connection] behind
// [PlainHTTPClientTransport]. Write performs a synchronous POST and
// enqueues the decoded reply (if any) onto incoming for the session's next
// Read; there's no persistent socket, so nothing arrives on incoming except
// as a direct consequence of a prior Write.
type plainClientConn struct {
	url           string
	client        *http.Client
	modifyRequest func(*http.Request)

	incoming chan JSONRPCMessage

	closeOnce sync.Once
	done      chan struct{}
}

func (c *plainClientConn) SessionID() string { return "" }

func (c *plainClientConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *plainClientConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.modifyRequest != nil {
		c.modifyRequest(req)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: plain HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		// The message we sent was a notification or a response to a
		// server-initiated request: no reply body to decode.
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mcp: reading plain HTTP response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mcp: plain HTTP POST returned status %d: %s", resp.StatusCode, body)
	}
	if len(body) == 0 {
		return nil
	}
	msgs, _, err := readBatch(body)
	if err != nil {
		return fmt.Errorf("mcp: decoding plain HTTP response: %w", err)
	}
	for _, m := range msgs {
		select {
		case c.incoming <- m:
		case <-c.done:
			return nil
		}
	}
	return nil
}

func (c *plainClientConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
