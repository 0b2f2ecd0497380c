// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// ServerSessionState is the subset of a [ServerSession]'s state needed to
// restore it after a transport-level reconnect. It is the value type of a
// [ServerSessionStateStore]; no transport in this package saves or loads it.
type ServerSessionState struct {
	ClientInfo       *Implementation     `json:"clientInfo,omitempty"`
	ClientCapabilities *ClientCapabilities `json:"clientCapabilities,omitempty"`
	ProtocolVersion  string              `json:"protocolVersion,omitempty"`
	LogLevel         LoggingLevel        `json:"logLevel,omitempty"`
}

// requestKey identifies an in-flight JSON-RPC request. It is the wire ID,
// reused as a map key for both the pending-response table (outbound calls)
// and the cancellation table (inbound calls).
type requestKey = jsonrpc.ID

// pendingShards partitions the pending-request table to reduce contention
// between concurrent callers, per spec.md §4.2 ("a sharded table of
// in-flight requests, partitioned by id % N to bound lock contention").
const pendingShards = 16

// sessionState tracks the lifecycle of a [Session], per spec.md §4.2:
// Created -> Initializing -> Ready -> ShuttingDown -> Closed.
type sessionState int32

const (
	stateCreated sessionState = iota
	stateInitializing
	stateReady
	stateShuttingDown
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateInitializing:
		return "initializing"
	case stateReady:
		return "ready"
	case stateShuttingDown:
		return "shutting down"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultRequestTimeout is applied to an outbound call when the caller's
// context carries no deadline, per spec.md §4.5.
const DefaultRequestTimeout = 30 * time.Second

// DefaultHandlerTimeout bounds how long an inbound request's handler may
// run before the dispatcher cancels its context, per spec.md §4.5.
const DefaultHandlerTimeout = 60 * time.Second

// incomingHandler processes a single inbound request or notification and
// returns the result to marshal into a response (nil for notifications).
// It is supplied by the server or client side of a session, since the two
// sides dispatch to different method tables.
type incomingHandler interface {
	// handleRequest dispatches req and returns its result (a [Result]) or
	// an error to translate into a JSON-RPC error response.
	handleRequest(ctx context.Context, sess *session, req *jsonrpc.Request) (any, error)
	// handleNotification dispatches a notification; errors are logged, not
	// returned to the peer (notifications have no response).
	handleNotification(ctx context.Context, sess *session, notif *jsonrpc.Notification)
}

type pendingShard struct {
	mu      sync.Mutex
	pending map[requestKey]chan *jsonrpc.Response
}

// session is the transport-agnostic plumbing shared by [ServerSession] and
// [ClientSession]: request ID allocation, the pending-response table,
// the read loop, and orderly shutdown. It implements the "ordered pair of
// lazy sequences" abstraction from spec.md §4.2 on top of a [Connection].
type session struct {
	conn    Connection
	handler incomingHandler

	state atomic.Int32

	// Clients allocate positive IDs, servers allocate negative IDs, so a
	// single wire ID never collides between the two directions of a
	// reverse call (spec.md §4.5's reverse-call controller).
	nextID   atomic.Int64
	isServer bool

	shards [pendingShards]pendingShard

	// cancelFuncs tracks the context.CancelFunc for each in-flight inbound
	// request, keyed by its wire ID, so that notifications/cancelled can
	// cancel the handler's context (spec.md §4.7).
	cancelMu    sync.Mutex
	cancelFuncs map[requestKey]context.CancelFunc

	writeMu sync.Mutex // serializes writes to conn

	outbound *outboundQueue

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	wg sync.WaitGroup // outstanding handler goroutines

	onClose func()
}

func newSession(conn Connection, isServer bool, handler incomingHandler) *session {
	s := &session{
		conn:        conn,
		handler:     handler,
		isServer:    isServer,
		cancelFuncs: make(map[requestKey]context.CancelFunc),
		closed:      make(chan struct{}),
		outbound:    newOutboundQueue(),
	}
	if isServer {
		s.nextID.Store(0)
	} else {
		s.nextID.Store(0)
	}
	s.state.Store(int32(stateCreated))
	for i := range s.shards {
		s.shards[i].pending = make(map[requestKey]chan *jsonrpc.Response)
	}
	return s
}

func (s *session) setState(st sessionState) { s.state.Store(int32(st)) }
func (s *session) getState() sessionState   { return sessionState(s.state.Load()) }

// allocID returns the next request ID for this side of the session.
// Servers count down through negative integers, clients count up through
// positive integers, per spec.md §4.5.
func (s *session) allocID() requestKey {
	n := s.nextID.Add(1)
	if s.isServer {
		return jsonrpc.NewIntID(-n)
	}
	return jsonrpc.NewIntID(n)
}

func (s *session) shardFor(id requestKey) *pendingShard {
	h := uint64(0)
	for _, b := range []byte(id.String()) {
		h = h*31 + uint64(b)
	}
	return &s.shards[h%pendingShards]
}

// call sends a request and blocks until its response arrives, ctx is done,
// or the session closes.
func (s *session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if s.getState() == stateClosed {
		return nil, ErrConnectionClosed
	}
	paramsRaw, err := encodeJSON(params)
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}

	id := s.allocID()
	ch := make(chan *jsonrpc.Response, 1)
	shard := s.shardFor(id)
	shard.mu.Lock()
	shard.pending[id] = ch
	shard.mu.Unlock()
	defer func() {
		shard.mu.Lock()
		delete(shard.pending, id)
		shard.mu.Unlock()
	}()

	req := &jsonrpc.Request{ID: id, Method: method, Params: paramsRaw}
	if err := s.write(ctx, req); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &rpcError{resp.Error}
		}
		return resp.Result, nil
	case <-ctx.Done():
		// Best-effort: tell the peer we no longer want the answer.
		_ = s.notify(context.Background(), notificationCancelled, &CancelledParams{RequestID: idToWire(id)})
		return nil, ctx.Err()
	case <-s.closed:
		if s.closeErr != nil {
			return nil, s.closeErr
		}
		return nil, ErrConnectionClosed
	}
}

// notify sends a one-way notification.
func (s *session) notify(ctx context.Context, method string, params any) error {
	if s.getState() == stateClosed {
		return ErrConnectionClosed
	}
	raw, err := encodeJSON(params)
	if err != nil {
		return err
	}
	return s.write(ctx, &jsonrpc.Notification{Method: method, Params: raw})
}

// write sends msg, applying spec.md §4.2's backpressure contract: once the
// session's outbound queue exceeds MaxOutboundBytes or MaxOutboundMessages,
// write blocks until usage drains back under the low watermark, and reports
// CodeTooBusy if ctx expires while waiting rather than ever silently
// dropping or reordering msg.
func (s *session) write(ctx context.Context, msg jsonrpc.Message) error {
	size := wireSize(msg)
	if err := s.outbound.acquire(ctx, size); err != nil {
		return err
	}
	defer s.outbound.release(size)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, msg)
}

// run drives the read loop until the connection closes or ctx is done. It
// is invoked in its own goroutine by the server/client Connect method.
func (s *session) run(ctx context.Context) {
	for {
		msg, err := s.conn.Read(ctx)
		if err != nil {
			s.closeWith(err)
			return
		}
		s.dispatch(ctx, msg)
	}
}

func (s *session) dispatch(ctx context.Context, msg jsonrpc.Message) {
	switch m := msg.(type) {
	case *jsonrpc.Response:
		shard := s.shardFor(m.ID)
		shard.mu.Lock()
		ch, ok := shard.pending[m.ID]
		shard.mu.Unlock()
		if ok {
			ch <- m
		}
	case *jsonrpc.Request:
		// Reserve req.ID's cancelFuncs slot here, synchronously, rather than
		// inside the handler goroutine: that's the only way to catch two
		// concurrent inbound requests sharing the same id (spec.md §4.5) —
		// by the time serveRequest itself ran, both goroutines could already
		// be past the check. The loser gets an immediate InvalidRequest
		// response without ever reaching the handler; the winner proceeds
		// normally.
		hctx, cancel := context.WithTimeout(ctx, DefaultHandlerTimeout)
		hctx = context.WithValue(hctx, idContextKey{}, m.ID)
		s.cancelMu.Lock()
		if _, dup := s.cancelFuncs[m.ID]; dup {
			s.cancelMu.Unlock()
			cancel()
			s.wg.Add(1)
			go func(id requestKey) {
				defer s.wg.Done()
				resp := &jsonrpc.Response{
					ID: id,
					Error: &jsonrpc.Error{
						Code:    jsonrpc.CodeInvalidRequest,
						Message: fmt.Sprintf("duplicate request id %s is already in flight", id),
					},
				}
				_ = s.write(context.Background(), resp)
			}(m.ID)
			return
		}
		s.cancelFuncs[m.ID] = cancel
		s.cancelMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveRequest(hctx, cancel, m)
		}()
	case *jsonrpc.Notification:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveNotification(ctx, m)
		}()
	case jsonrpc.Batch:
		for _, inner := range m {
			s.dispatch(ctx, inner)
		}
	}
}

// serveRequest runs req's handler to completion and writes its response.
// hctx/cancel are created and registered in s.dispatch, before this
// goroutine was spawned, so that a duplicate inbound id can be detected
// synchronously rather than racing two handler goroutines against each
// other.
func (s *session) serveRequest(hctx context.Context, cancel context.CancelFunc, req *jsonrpc.Request) {
	defer func() {
		cancel()
		s.cancelMu.Lock()
		delete(s.cancelFuncs, req.ID)
		s.cancelMu.Unlock()
	}()

	result, err := s.handler.handleRequest(hctx, s, req)
	resp := &jsonrpc.Response{ID: req.ID}
	if err != nil {
		resp.Error = toWireError(err)
	} else {
		raw, merr := encodeJSON(result)
		if merr != nil {
			resp.Error = &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: merr.Error()}
		} else {
			resp.Result = raw
		}
	}
	_ = s.write(context.Background(), resp)
}

func (s *session) serveNotification(ctx context.Context, notif *jsonrpc.Notification) {
	if notif.Method == notificationCancelled {
		var params CancelledParams
		if err := decodeJSON(notif.Params, &params); err == nil {
			s.cancelRequest(params.RequestID)
		}
		return
	}
	s.handler.handleNotification(ctx, s, notif)
}

// idToWire renders a requestKey the way it crosses the wire inside a
// CancelledParams.RequestID ("any" per the protocol, since a request ID is
// itself a string-or-number).
func idToWire(id requestKey) any {
	data, err := id.MarshalJSON()
	if err != nil {
		return id.String()
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return id.String()
	}
	return v
}

func (s *session) cancelRequest(rawID any) {
	want, _ := json.Marshal(rawID)
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	for id, cancel := range s.cancelFuncs {
		got, _ := json.Marshal(idToWire(id))
		if string(got) == string(want) {
			cancel()
			return
		}
	}
}

// Close tears down the session's connection. It is safe to call more than
// once and from multiple goroutines.
func (s *session) Close() error {
	return s.closeWith(nil)
}

func (s *session) closeWith(err error) error {
	s.closeOnce.Do(func() {
		s.setState(stateClosed)
		s.closeErr = err
		close(s.closed)
		_ = s.conn.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// startKeepAlive runs ping on every interval until the session closes. A
// failed ping means the peer is unreachable, so the session is closed with
// that error rather than left to time out on its next real call.
// interval <= 0 disables keepalive.
func startKeepAlive(s *session, interval time.Duration, ping func(context.Context) error) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.closed:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				err := ping(ctx)
				cancel()
				if err != nil {
					s.closeWith(fmt.Errorf("mcp: keepalive ping failed: %w", err))
					return
				}
			}
		}
	}()
}

// Wait blocks until the session is closed and all in-flight handlers have
// returned.
func (s *session) Wait() error {
	<-s.closed
	s.wg.Wait()
	return s.closeErr
}

func toWireError(err error) *jsonrpc.Error {
	if e, ok := err.(*rpcError); ok {
		return e.err
	}
	var werr *jsonrpc.Error
	if errors.As(err, &werr) {
		return werr
	}
	return &jsonrpc.Error{Code: jsonrpc.CodeHandlerError, Message: err.Error()}
}

func encodeJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
