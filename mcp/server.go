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

// ProtocolVersion is the MCP wire version this module speaks, per spec.md
// §1 ("we implement MCP 2025-06-18 verbatim").
const ProtocolVersion = "2025-06-18"

// ServerOptions configures a [Server]. A nil *ServerOptions is equivalent
// to the zero value, which selects every default.
type ServerOptions struct {
	// Instructions are returned to the client in InitializeResult, as a hint
	// for how to use the server.
	Instructions string

	// Logger receives structured diagnostics about session lifecycle and
	// dispatch decisions. Defaults to slog.Default().
	Logger *slog.Logger

	// PageSize overrides [DefaultPageSize] for this server's list
	// operations.
	PageSize int

	// GlobalConcurrency and PerKindConcurrency override the dispatcher's
	// bounded-concurrency defaults (spec.md §4.5).
	GlobalConcurrency  int
	PerKindConcurrency int

	// SessionStore holds [ServerSessionState] values. A nil store selects
	// [NewMemoryServerSessionStateStore]. No transport or session in this
	// package loads or saves state through it.
	SessionStore ServerSessionStateStore

	// KeepAlive, if positive, pings each connected client on this interval
	// once the session is ready; a failed ping closes the session. Zero
	// disables keepalive.
	KeepAlive time.Duration
}

func (o *ServerOptions) orDefaults() *ServerOptions {
	if o == nil {
		o = &ServerOptions{}
	}
	cp := *o
	if cp.Logger == nil {
		cp.Logger = slog.Default()
	}
	if cp.PageSize <= 0 {
		cp.PageSize = DefaultPageSize
	}
	if cp.SessionStore == nil {
		cp.SessionStore = NewMemoryServerSessionStateStore()
	}
	return &cp
}

// A Server is an MCP server: a registry of tools, prompts, and resources,
// bound to zero or more live [ServerSession]s as clients connect.
//
// A Server may be [Server.Connect]ed to more than one transport
// concurrently; every session shares the same capability registries, so a
// tool added after some sessions are already connected is visible to all
// of them (and triggers notifications/tools/list_changed on each).
type Server struct {
	impl *Implementation
	opts *ServerOptions

	tools     *toolRegistry
	prompts   *promptRegistry
	resources *resourceRegistry

	dispatch *dispatcher

	mu       sync.Mutex
	sessions map[*ServerSession]struct{}

	sendingMiddleware   []Middleware[*ServerSession]
	receivingMiddleware []Middleware[*ServerSession]

	completionHandler CompletionHandler
}

// SetCompletionHandler installs the handler for completion/complete
// requests. If unset, the server answers every completion request with an
// empty result.
func (s *Server) SetCompletionHandler(h CompletionHandler) { s.completionHandler = h }

// Middleware wraps the handling of one request or notification, for
// logging, tracing, or rate limiting. T is [*ServerSession] on the server
// side and [*ClientSession] on the client side.
type Middleware[T any] func(next MethodHandler[T]) MethodHandler[T]

// MethodHandler is the shape a [Middleware] wraps: it receives the
// session, the wire method name, and the already-unmarshaled params, and
// returns the result to marshal back (or an error).
type MethodHandler[T any] func(ctx context.Context, session T, method string, params any) (any, error)

// NewServer creates a Server with the given implementation identity. impl
// is reported to clients in InitializeResult.ServerInfo.
func NewServer(impl *Implementation, opts *ServerOptions) *Server {
	o := opts.orDefaults()
	s := &Server{
		impl:      impl,
		opts:      o,
		tools:     newToolRegistry(),
		prompts:   newPromptRegistry(),
		resources: newResourceRegistry(),
		dispatch:  newDispatcher(o.GlobalConcurrency, o.PerKindConcurrency),
		sessions:  make(map[*ServerSession]struct{}),
	}
	s.tools.onChange = func() { s.broadcast(context.Background(), notificationToolListChanged, &ToolListChangedParams{}) }
	s.prompts.onChange = func() { s.broadcast(context.Background(), notificationPromptListChanged, &PromptListChangedParams{}) }
	s.resources.onChange = func() { s.broadcast(context.Background(), notificationResourceListChanged, &ResourceListChangedParams{}) }
	return s
}

// AddSendingMiddleware adds middleware run (outermost-first) around every
// outbound call this server makes (reverse calls like sampling/createMessage,
// and outgoing notifications). It must be called before [Server.Connect].
func (s *Server) AddSendingMiddleware(mw ...Middleware[*ServerSession]) {
	s.sendingMiddleware = append(s.sendingMiddleware, mw...)
}

// AddReceivingMiddleware adds middleware run (outermost-first) around every
// inbound request this server handles. It must be called before
// [Server.Connect].
func (s *Server) AddReceivingMiddleware(mw ...Middleware[*ServerSession]) {
	s.receivingMiddleware = append(s.receivingMiddleware, mw...)
}

// AddTool registers a tool whose raw (already-schema-validated) arguments
// are handled by h.
func (s *Server) AddTool(t *Tool, h ToolHandler) error {
	st, err := newServerTool(t, h)
	if err != nil {
		return fmt.Errorf("mcp: AddTool %q: %w", t.Name, err)
	}
	return s.tools.add(st)
}

// AddTool registers a tool whose input and output schemas are inferred
// from In and Out via reflection, and whose arguments are unmarshaled into
// In before h is called.
//
// It is a package-level function, rather than a method, because Go does
// not support type parameters on a method of a non-generic type.
func AddTool[In, Out any](s *Server, t *Tool, h TypedToolHandler[In, Out]) error {
	st, err := newTypedServerTool(t, h)
	if err != nil {
		return fmt.Errorf("mcp: AddTool %q: %w", t.Name, err)
	}
	return s.tools.add(st)
}

// RemoveTools unregisters the named tools. It is a no-op for unknown names.
func (s *Server) RemoveTools(names ...string) { s.tools.remove(names...) }

// HasTool reports whether a tool named name is currently registered.
func (s *Server) HasTool(name string) bool {
	_, ok := s.tools.get(name)
	return ok
}

// AddPrompt registers a prompt, failing with [DuplicateNameError] if a
// prompt by that name is already registered, per spec.md §4.4.
func (s *Server) AddPrompt(p *Prompt, h PromptHandler) error {
	return s.prompts.add(newServerPrompt(p, h))
}

// RemovePrompts unregisters the named prompts. It is a no-op for unknown names.
func (s *Server) RemovePrompts(names ...string) { s.prompts.remove(names...) }

// HasPrompt reports whether a prompt named name is currently registered.
func (s *Server) HasPrompt(name string) bool {
	_, ok := s.prompts.get(name)
	return ok
}

// AddResource registers a single, concrete resource, failing with
// [DuplicateNameError] if a resource under that URI is already registered,
// per spec.md §4.4.
func (s *Server) AddResource(r *Resource, h ResourceHandler) error {
	return s.resources.add(newServerResource(r, h))
}

// RemoveResources unregisters the named resources by URI. It is a no-op for
// unknown URIs.
func (s *Server) RemoveResources(uris ...string) { s.resources.remove(uris...) }

// HasResource reports whether a resource with the given URI is currently
// registered (an exact match; it does not test resource templates).
func (s *Server) HasResource(uri string) bool {
	return s.resources.exists(uri)
}

// AddResourceTemplate registers a resource template, matched against
// resources/read URIs that have no exact registration, per spec.md §4.3.
func (s *Server) AddResourceTemplate(rt *ResourceTemplate, h ResourceHandler) error {
	st, err := newServerResourceTemplate(rt, h)
	if err != nil {
		return err
	}
	return s.resources.addTemplate(st)
}

// capabilities reports this server's ServerCapabilities for the initialize
// handshake.
func (s *Server) capabilities() *ServerCapabilities {
	return &ServerCapabilities{
		Completions: &CompletionCapabilities{},
		Logging:     &LoggingCapabilities{},
		Prompts:     &PromptCapabilities{ListChanged: true},
		Resources:   &ResourceCapabilities{ListChanged: true, Subscribe: true},
		Tools:       &ToolCapabilities{ListChanged: true},
	}
}

// Connect binds the server to a new session over t, starts its read loop,
// and returns the live [ServerSession]; the initialize handshake completes
// when the client's initialize request arrives. The session
// runs in the background until its peer disconnects or [ServerSession.Close]
// is called; use [ServerSession.Wait] to block for that.
func (s *Server) Connect(ctx context.Context, t Transport, _ *ServerSessionOptions) (*ServerSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect: %w", err)
	}
	ss := &ServerSession{
		server:   s,
		logLevel: "info",
	}
	ss.session = newSession(conn, true, ss)
	ss.session.setState(stateInitializing)
	ss.session.onClose = func() {
		s.mu.Lock()
		delete(s.sessions, ss)
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.sessions[ss] = struct{}{}
	s.mu.Unlock()
	go ss.session.run(ctx)
	return ss, nil
}

// ServerSessionOptions is a placeholder for future per-connection server
// options (e.g. supplying a pre-existing resumption ID).
type ServerSessionOptions struct{}

// broadcast sends a notification to every currently-connected session.
func (s *Server) broadcast(ctx context.Context, method string, params any) {
	s.mu.Lock()
	sessions := make([]*ServerSession, 0, len(s.sessions))
	for ss := range s.sessions {
		sessions = append(sessions, ss)
	}
	s.mu.Unlock()
	for _, ss := range sessions {
		_ = ss.session.notify(ctx, method, params)
	}
}

// A ServerSession is a single client connection to a [Server]: the
// server-side half of the initialize handshake, plus the reverse-call
// methods (roots/list, sampling/createMessage, elicitation/create) a tool
// handler may invoke against the connected client.
type ServerSession struct {
	server  *Server
	session *session

	mu               sync.Mutex
	clientCaps       *ClientCapabilities
	clientInfo       *Implementation
	clientProtoVer   string
	logLevel         LoggingLevel
	initializedOnce  bool
}

// ID returns the transport-level session identifier, or "" for transports
// (stdio, in-memory) that don't have one.
func (ss *ServerSession) ID() string { return ss.session.conn.SessionID() }

// Close tears down the session's connection.
func (ss *ServerSession) Close() error { return ss.session.Close() }

// Wait blocks until the session is closed.
func (ss *ServerSession) Wait() error { return ss.session.Wait() }

// Ping sends a ping to the client and waits for the response.
func (ss *ServerSession) Ping(ctx context.Context, params *PingParams) error {
	_, err := ss.session.call(ctx, methodPing, params)
	return err
}

// reverseCallGate returns a local CodeMethodNotFound error, without ever
// touching the wire, if the client's declared capabilities from initialize
// don't include have. spec.md §4.7 requires that "servers must not invoke
// unsupported methods," and Seed Scenario 6 (§8) spells out exactly this:
// a reverse call against an undeclared capability "fails immediately with
// MethodNotFound locally without hitting the wire."
func (ss *ServerSession) reverseCallGate(have bool, capability string) error {
	if have {
		return nil
	}
	return newError(jsonrpc.CodeMethodNotFound, "client does not support %s", capability)
}

// ListRoots asks the client which filesystem roots it exposes.
func (ss *ServerSession) ListRoots(ctx context.Context, params *ListRootsParams) (*ListRootsResult, error) {
	ss.mu.Lock()
	have := ss.clientCaps != nil && ss.clientCaps.Roots != nil
	ss.mu.Unlock()
	if err := ss.reverseCallGate(have, "roots"); err != nil {
		return nil, err
	}
	raw, err := ss.session.call(ctx, methodListRoots, params)
	if err != nil {
		return nil, err
	}
	var res ListRootsResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateMessage asks the client to sample from its model (sampling/createMessage).
func (ss *ServerSession) CreateMessage(ctx context.Context, params *CreateMessageParams) (*CreateMessageResult, error) {
	ss.mu.Lock()
	have := ss.clientCaps != nil && ss.clientCaps.Sampling != nil
	ss.mu.Unlock()
	if err := ss.reverseCallGate(have, "sampling"); err != nil {
		return nil, err
	}
	raw, err := ss.session.call(ctx, methodCreateMessage, params)
	if err != nil {
		return nil, err
	}
	var res CreateMessageResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Elicit asks the client to collect additional information from the user.
func (ss *ServerSession) Elicit(ctx context.Context, params *ElicitParams) (*ElicitResult, error) {
	ss.mu.Lock()
	have := ss.clientCaps != nil && ss.clientCaps.Elicitation != nil
	ss.mu.Unlock()
	if err := ss.reverseCallGate(have, "elicitation"); err != nil {
		return nil, err
	}
	raw, err := ss.session.call(ctx, methodElicit, params)
	if err != nil {
		return nil, err
	}
	var res ElicitResult
	if err := decodeJSON(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// NotifyProgress sends a notifications/progress message for an
// in-progress request, per spec.md §4.7.
func (ss *ServerSession) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	return ss.session.notify(ctx, notificationProgress, params)
}

// Log sends a notifications/message log record to the client, if the
// client's requested logging/setLevel permits it.
func (ss *ServerSession) Log(ctx context.Context, params *LoggingMessageParams) error {
	ss.mu.Lock()
	level := ss.logLevel
	ss.mu.Unlock()
	if !logLevelAtLeast(params.Level, level) {
		return nil
	}
	return ss.session.notify(ctx, notificationLoggingMessage, params)
}

var logLevelSeverity = map[LoggingLevel]int{
	"debug": 0, "info": 1, "notice": 2, "warning": 3,
	"error": 4, "critical": 5, "alert": 6, "emergency": 7,
}

func logLevelAtLeast(level, floor LoggingLevel) bool {
	return logLevelSeverity[level] >= logLevelSeverity[floor]
}

// handleRequest implements incomingHandler for the server side: it
// dispatches an inbound request to the matching capability handler,
// wrapped by the configured dispatcher and receiving middleware.
func (ss *ServerSession) handleRequest(ctx context.Context, _ *session, req *jsonrpc.Request) (any, error) {
	var handle MethodHandler[*ServerSession] = func(ctx context.Context, ss *ServerSession, method string, _ any) (any, error) {
		return ss.dispatchMethod(ctx, method, req.Params)
	}
	for i := len(ss.server.receivingMiddleware) - 1; i >= 0; i-- {
		handle = ss.server.receivingMiddleware[i](handle)
	}
	return ss.server.dispatch.run(ctx, req.Method, func(ctx context.Context) (any, error) {
		return handle(ctx, ss, req.Method, req.Params)
	})
}

func (ss *ServerSession) dispatchMethod(ctx context.Context, method string, raw []byte) (any, error) {
	switch method {
	case methodInitialize:
		var params InitializeParams
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return ss.initialize(ctx, &params)
	case methodPing:
		return &struct{}{}, nil
	case methodListTools:
		var params ListToolsParams
		_ = decodeJSON(raw, &params)
		tools, next, err := ss.server.tools.list(params.Cursor, ss.server.opts.PageSize)
		if err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return &ListToolsResult{Tools: tools, NextCursor: next}, nil
	case methodCallTool:
		var params CallToolParamsRaw
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		st, ok := ss.server.tools.get(params.Name)
		if !ok {
			return nil, newError(CodeToolNotFound, "tool not found: %s", params.Name)
		}
		req := &CallToolRequest{Session: ss, Params: &params}
		return st.handler(ctx, req)
	case methodListPrompts:
		var params ListPromptsParams
		_ = decodeJSON(raw, &params)
		prompts, next, err := ss.server.prompts.list(params.Cursor, ss.server.opts.PageSize)
		if err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return &ListPromptsResult{Prompts: prompts, NextCursor: next}, nil
	case methodGetPrompt:
		var params GetPromptParams
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		sp, ok := ss.server.prompts.get(params.Name)
		if !ok {
			return nil, newError(CodePromptNotFound, "prompt not found: %s", params.Name)
		}
		req := &GetPromptRequest{Session: ss, Params: &params}
		return sp.handler(ctx, req)
	case methodListResources:
		var params ListResourcesParams
		_ = decodeJSON(raw, &params)
		resources, next, err := ss.server.resources.list(params.Cursor, ss.server.opts.PageSize)
		if err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return &ListResourcesResult{Resources: resources, NextCursor: next}, nil
	case methodListResourceTemplates:
		var params ListResourceTemplatesParams
		_ = decodeJSON(raw, &params)
		templates, next, err := ss.server.resources.listTemplates(params.Cursor, ss.server.opts.PageSize)
		if err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return &ListResourceTemplatesResult{ResourceTemplates: templates, NextCursor: next}, nil
	case methodReadResource:
		var params ReadResourceParams
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		sr, ok := ss.server.resources.resolve(params.URI)
		if !ok {
			return nil, ResourceNotFoundError(params.URI)
		}
		req := &ReadResourceRequest{Session: ss, Params: &params}
		return sr.handler(ctx, req)
	case methodComplete:
		var params CompleteParams
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		if ss.server.completionHandler == nil {
			return &CompleteResult{}, nil
		}
		req := &CompleteRequest{Session: ss, Params: &params}
		return ss.server.completionHandler(ctx, req)
	case methodSetLevel:
		var params SetLoggingLevelParams
		if err := decodeJSON(raw, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		ss.mu.Lock()
		ss.logLevel = params.Level
		ss.mu.Unlock()
		return &struct{}{}, nil
	case methodSubscribe, methodUnsubscribe:
		// Resource subscriptions are acknowledged with an empty result. They
		// are not recorded, and the server sends no
		// notifications/resources/updated.
		return &struct{}{}, nil
	default:
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

func (ss *ServerSession) initialize(_ context.Context, params *InitializeParams) (*InitializeResult, error) {
	ss.mu.Lock()
	ss.clientCaps = params.Capabilities
	ss.clientInfo = params.ClientInfo
	ss.clientProtoVer = params.ProtocolVersion
	ss.mu.Unlock()
	ss.session.setState(stateReady)
	startKeepAlive(ss.session, ss.server.opts.KeepAlive, func(ctx context.Context) error {
		return ss.Ping(ctx, nil)
	})
	return &InitializeResult{
		Capabilities:    ss.server.capabilities(),
		Instructions:    ss.server.opts.Instructions,
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ss.server.impl,
	}, nil
}

// handleNotification implements incomingHandler for the server side.
func (ss *ServerSession) handleNotification(_ context.Context, _ *session, notif *jsonrpc.Notification) {
	switch notif.Method {
	case notificationInitialized:
		ss.mu.Lock()
		ss.initializedOnce = true
		ss.mu.Unlock()
	case notificationRootsListChanged:
		// Nothing to do yet: roots are re-fetched lazily via ListRoots.
	}
}
