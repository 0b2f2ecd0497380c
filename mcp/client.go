// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// RootsHandler answers a server's roots/list request with the client's
// exposed filesystem roots.
type RootsHandler func(ctx context.Context, req *ListRootsRequest) (*ListRootsResult, error)

// SamplingHandler answers a server's sampling/createMessage request by
// invoking a model on the client's behalf.
type SamplingHandler func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error)

// ElicitationHandler answers a server's elicitation/create request by
// collecting information from the end user.
type ElicitationHandler func(ctx context.Context, req *ElicitRequest) (*ElicitResult, error)

// LoggingHandler receives notifications/message log records forwarded by
// the server.
type LoggingHandler func(ctx context.Context, req *LoggingMessageRequest)

// ClientOptions configures a [Client].
type ClientOptions struct {
	Logger *slog.Logger

	RootsHandler       RootsHandler
	SamplingHandler    SamplingHandler
	ElicitationHandler ElicitationHandler
	LoggingHandler     LoggingHandler

	// Roots are reported to the server if RootsHandler is nil; set either,
	// not both.
	Roots []*Root

	// KeepAlive, if positive, pings the server on this interval once the
	// session is ready; a failed ping closes the session. Zero disables
	// keepalive.
	KeepAlive time.Duration
}

func (o *ClientOptions) orDefaults() *ClientOptions {
	if o == nil {
		o = &ClientOptions{}
	}
	cp := *o
	if cp.Logger == nil {
		cp.Logger = slog.Default()
	}
	return &cp
}

// A Client is an MCP client identity, bindable to one or more [Server]s
// via [Client.Connect].
type Client struct {
	impl *Implementation
	opts *ClientOptions

	sendingMiddleware   []Middleware[*ClientSession]
	receivingMiddleware []Middleware[*ClientSession]
}

// NewClient creates a Client with the given implementation identity. impl
// is reported to servers in InitializeParams.ClientInfo.
func NewClient(impl *Implementation, opts *ClientOptions) *Client {
	return &Client{impl: impl, opts: opts.orDefaults()}
}

// AddSendingMiddleware adds middleware run around every outbound call this
// client makes. It must be called before [Client.Connect].
func (c *Client) AddSendingMiddleware(mw ...Middleware[*ClientSession]) {
	c.sendingMiddleware = append(c.sendingMiddleware, mw...)
}

// AddReceivingMiddleware adds middleware run around every inbound reverse
// call (roots/list, sampling/createMessage, elicitation/create) this
// client answers. It must be called before [Client.Connect].
func (c *Client) AddReceivingMiddleware(mw ...Middleware[*ClientSession]) {
	c.receivingMiddleware = append(c.receivingMiddleware, mw...)
}

func (c *Client) capabilities() *ClientCapabilities {
	caps := &ClientCapabilities{}
	if c.opts.RootsHandler != nil || c.opts.Roots != nil {
		caps.Roots = &RootCapabilities{ListChanged: true}
	}
	if c.opts.SamplingHandler != nil {
		caps.Sampling = &SamplingCapabilities{}
	}
	if c.opts.ElicitationHandler != nil {
		caps.Elicitation = &ElicitationCapabilities{}
	}
	return caps
}

// Connect dials t, performs the initialize handshake, and returns the live
// [ClientSession].
func (c *Client) Connect(ctx context.Context, t Transport, _ *ClientSessionOptions) (*ClientSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect: %w", err)
	}
	cs := &ClientSession{client: c}
	cs.session = newSession(conn, false, cs)
	cs.session.setState(stateInitializing)
	go cs.session.run(ctx)

	result, err := cs.initialize(ctx)
	if err != nil {
		cs.session.Close()
		return nil, err
	}
	cs.mu.Lock()
	cs.serverInfo = result.ServerInfo
	cs.serverCaps = result.Capabilities
	cs.mu.Unlock()
	cs.session.setState(stateReady)
	if err := cs.session.notify(ctx, notificationInitialized, &InitializedParams{}); err != nil {
		cs.session.Close()
		return nil, err
	}
	startKeepAlive(cs.session, c.opts.KeepAlive, func(ctx context.Context) error {
		return cs.Ping(ctx, nil)
	})
	return cs, nil
}

// ClientSessionOptions is a placeholder for future per-connection client
// options.
type ClientSessionOptions struct{}

// A ClientSession is a single connection to a server: the client-side half
// of the initialize handshake, plus every client->server call a caller may
// make.
type ClientSession struct {
	client  *Client
	session *session

	mu         sync.Mutex
	serverInfo *Implementation
	serverCaps *ServerCapabilities
}

// ID returns the transport-level session identifier, or "" if the
// transport has none.
func (cs *ClientSession) ID() string { return cs.session.conn.SessionID() }

// Close tears down the session's connection.
func (cs *ClientSession) Close() error { return cs.session.Close() }

// Wait blocks until the session is closed.
func (cs *ClientSession) Wait() error { return cs.session.Wait() }

// ServerInfo returns the Implementation reported by the server during
// initialize.
func (cs *ClientSession) ServerInfo() *Implementation {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.serverInfo
}

func (cs *ClientSession) initialize(ctx context.Context) (*InitializeResult, error) {
	params := &InitializeParams{
		Capabilities:    cs.client.capabilities(),
		ClientInfo:      cs.client.impl,
		ProtocolVersion: ProtocolVersion,
	}
	raw, err := cs.session.call(ctx, methodInitialize, params)
	if err != nil {
		return nil, err
	}
	var res InitializeResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping sends a ping to the server and waits for the response.
func (cs *ClientSession) Ping(ctx context.Context, params *PingParams) error {
	_, err := cs.session.call(ctx, methodPing, params)
	return err
}

// ListTools lists one page of the server's tools, starting at params.Cursor.
// It does not follow NextCursor to fetch further pages.
func (cs *ClientSession) ListTools(ctx context.Context, params *ListToolsParams) (*ListToolsResult, error) {
	if params == nil {
		params = &ListToolsParams{}
	}
	raw, err := cs.session.call(ctx, methodListTools, params)
	if err != nil {
		return nil, err
	}
	var res ListToolsResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CallTool invokes a tool by name.
func (cs *ClientSession) CallTool(ctx context.Context, params *CallToolParams) (*CallToolResult, error) {
	raw, err := cs.session.call(ctx, methodCallTool, params)
	if err != nil {
		return nil, err
	}
	var res CallToolResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListPrompts lists the server's prompts.
func (cs *ClientSession) ListPrompts(ctx context.Context, params *ListPromptsParams) (*ListPromptsResult, error) {
	if params == nil {
		params = &ListPromptsParams{}
	}
	raw, err := cs.session.call(ctx, methodListPrompts, params)
	if err != nil {
		return nil, err
	}
	var res ListPromptsResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPrompt fetches a named prompt's rendered messages.
func (cs *ClientSession) GetPrompt(ctx context.Context, params *GetPromptParams) (*GetPromptResult, error) {
	raw, err := cs.session.call(ctx, methodGetPrompt, params)
	if err != nil {
		return nil, err
	}
	var res GetPromptResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResources lists the server's concrete resources.
func (cs *ClientSession) ListResources(ctx context.Context, params *ListResourcesParams) (*ListResourcesResult, error) {
	if params == nil {
		params = &ListResourcesParams{}
	}
	raw, err := cs.session.call(ctx, methodListResources, params)
	if err != nil {
		return nil, err
	}
	var res ListResourcesResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResourceTemplates lists the server's resource templates.
func (cs *ClientSession) ListResourceTemplates(ctx context.Context, params *ListResourceTemplatesParams) (*ListResourceTemplatesResult, error) {
	if params == nil {
		params = &ListResourceTemplatesParams{}
	}
	raw, err := cs.session.call(ctx, methodListResourceTemplates, params)
	if err != nil {
		return nil, err
	}
	var res ListResourceTemplatesResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadResource reads a resource by URI.
func (cs *ClientSession) ReadResource(ctx context.Context, params *ReadResourceParams) (*ReadResourceResult, error) {
	raw, err := cs.session.call(ctx, methodReadResource, params)
	if err != nil {
		return nil, err
	}
	var res ReadResourceResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Subscribe asks the server to notify this session of updates to a
// resource.
func (cs *ClientSession) Subscribe(ctx context.Context, params *SubscribeParams) error {
	_, err := cs.session.call(ctx, methodSubscribe, params)
	return err
}

// Unsubscribe reverses a prior Subscribe.
func (cs *ClientSession) Unsubscribe(ctx context.Context, params *UnsubscribeParams) error {
	_, err := cs.session.call(ctx, methodUnsubscribe, params)
	return err
}

// Complete requests autocompletion suggestions for a prompt argument or
// resource template variable.
func (cs *ClientSession) Complete(ctx context.Context, params *CompleteParams) (*CompleteResult, error) {
	raw, err := cs.session.call(ctx, methodComplete, params)
	if err != nil {
		return nil, err
	}
	var res CompleteResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetLoggingLevel requests that the server send only log messages at level
// or more severe.
func (cs *ClientSession) SetLoggingLevel(ctx context.Context, level LoggingLevel) error {
	_, err := cs.session.call(ctx, methodSetLevel, &SetLoggingLevelParams{Level: level})
	return err
}

// handleRequest implements incomingHandler for the client side: reverse
// calls from the server (roots/list, sampling/createMessage,
// elicitation/create, ping).
func (cs *ClientSession) handleRequest(ctx context.Context, _ *session, req *jsonrpc.Request) (any, error) {
	var handle MethodHandler[*ClientSession] = func(ctx context.Context, cs *ClientSession, method string, _ any) (any, error) {
		return cs.dispatchMethod(ctx, method, req.Params)
	}
	for i := len(cs.client.receivingMiddleware) - 1; i >= 0; i-- {
		handle = cs.client.receivingMiddleware[i](handle)
	}
	return handle(ctx, cs, req.Method, req.Params)
}

func (cs *ClientSession) dispatchMethod(ctx context.Context, method string, raw []byte) (any, error) {
	switch method {
	case methodPing:
		return &struct{}{}, nil
	case methodListRoots:
		if cs.client.opts.RootsHandler != nil {
			var params ListRootsParams
			_ = decodeJSON(raw, &params)
			return cs.client.opts.RootsHandler(ctx, &ListRootsRequest{Session: cs, Params: &params})
		}
		roots := cs.client.opts.Roots
		if roots == nil {
			roots = []*Root{}
		}
		return &ListRootsResult{Roots: roots}, nil
	case methodCreateMessage:
		if cs.client.opts.SamplingHandler == nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "client does not support sampling"}
		}
		var params CreateMessageParams
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return cs.client.opts.SamplingHandler(ctx, &CreateMessageRequest{Session: cs, Params: &params})
	case methodElicit:
		if cs.client.opts.ElicitationHandler == nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "client does not support elicitation"}
		}
		var params ElicitParams
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return cs.client.opts.ElicitationHandler(ctx, &ElicitRequest{Session: cs, Params: &params})
	default:
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

// handleNotification implements incomingHandler for the client side.
func (cs *ClientSession) handleNotification(ctx context.Context, _ *session, notif *jsonrpc.Notification) {
	switch notif.Method {
	case notificationLoggingMessage:
		if cs.client.opts.LoggingHandler == nil {
			return
		}
		var params LoggingMessageParams
		if err := decodeJSON(notif.Params, &params); err != nil {
			return
		}
		cs.client.opts.LoggingHandler(ctx, &LoggingMessageRequest{Session: cs, Params: &params})
	case notificationToolListChanged, notificationPromptListChanged, notificationResourceListChanged, notificationResourceUpdated:
		// No caching layer to invalidate yet: callers always re-list.
	}
}
