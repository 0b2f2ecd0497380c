// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// Type aliases so the transport implementations in this package can refer to
// the wire message shapes without a package qualifier, matching the style
// used throughout protocol.go and requests.go.
type (
	JSONRPCMessage      = jsonrpc.Message
	JSONRPCID           = jsonrpc.ID
	JSONRPCRequest      = jsonrpc.Request
	JSONRPCResponse     = jsonrpc.Response
	JSONRPCNotification = jsonrpc.Notification
	JSONRPCBatch        = jsonrpc.Batch
)

// A Connection is the transport-level handle a [Session] reads frames from
// and writes frames to. It exposes the "ordered pair of lazy sequences"
// described by spec.md §4.2: Read drains the inbound sequence, Write appends
// to the outbound sequence, and Close tears both down.
//
// Every transport in this package (stdio, HTTP request/response, HTTP
// streaming, HTTP/2, WebSocket, and the in-memory pipe used by tests)
// produces a Connection with these same semantics, so the session core is
// written once against this interface.
type Connection interface {
	// Read returns the next inbound message, blocking until one arrives, ctx
	// is done, or the connection is closed (in which case it returns io.EOF).
	Read(ctx context.Context) (JSONRPCMessage, error)

	// Write sends msg on the connection. Per-direction ordering is
	// preserved; Write may block under backpressure (spec.md §4.2).
	Write(ctx context.Context, msg JSONRPCMessage) error

	// Close shuts down both directions of the connection. It is safe to
	// call more than once.
	Close() error

	// SessionID returns the transport-level session identifier, used by
	// transports (HTTP, WebSocket) that must correlate multiple physical
	// connections with one logical session. Stdio and in-memory transports
	// return the empty string.
	SessionID() string
}

// A Transport is a factory for client-side [Connection]s: dialing a server,
// spawning a child process, or wrapping an already-open pipe.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
}
