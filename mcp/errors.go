// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"errors"
	"fmt"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// Application error codes, in the -32000...-32099 MCP range reserved by
// spec.md §4.1. CodeTooBusy, CodeHandlerError, and CodePluginFault are
// defined in the jsonrpc package since the dispatcher classifies directly
// into wire error codes; the rest are mcp-specific.
const (
	CodeResourceNotFound = -32002
	CodePromptNotFound   = -32003
	CodeToolNotFound     = -32004
	// CodeDuplicateName is returned when a registration names a (kind,name)
	// pair the registry already holds, per spec.md §4.4.
	CodeDuplicateName = -32005
)

// ErrConnectionClosed is returned by session methods once the underlying
// connection has been closed, either locally or by the peer.
var ErrConnectionClosed = errors.New("mcp: connection closed")

// ErrSessionMissing is returned by a [StreamableClientTransport] connection
// when the server no longer recognizes its Mcp-Session-Id, e.g. because the
// server restarted or evicted the session. errors.Is matches this against
// the underlying HTTP 404, via httpStatusError's Is method.
var ErrSessionMissing = errors.New("mcp: session missing")

// McpError is the interface satisfied by every error kind named in
// spec.md §7: it carries a JSON-RPC error code alongside the usual error
// message.
type McpError interface {
	error
	Code() int64
}

// rpcError wraps a jsonrpc.Error as a Go error that also implements
// McpError, so callers can use errors.As to recover the wire code.
type rpcError struct {
	err *jsonrpc.Error
}

func (e *rpcError) Error() string { return e.err.Error() }

func (e *rpcError) Code() int64 { return e.err.Code }

func (e *rpcError) Unwrap() error { return e.err }

func newError(code int64, format string, args ...any) error {
	return &rpcError{&jsonrpc.Error{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// ResourceNotFoundError reports that the resource identified by uri does
// not exist, or is not currently readable.
func ResourceNotFoundError(uri string) error {
	return newError(CodeResourceNotFound, "resource not found: %s", uri)
}

// DuplicateNameError reports that kind (e.g. "tool", "prompt", "resource")
// already has an entry registered under name, per spec.md §4.4's
// register(kind, entry) contract.
func DuplicateNameError(kind, name string) error {
	return newError(CodeDuplicateName, "%s %q is already registered", kind, name)
}

// errorCode returns the JSON-RPC code carried by err, or 0 if err is nil, or
// -1 if err carries no code at all.
func errorCode(err error) int64 {
	if err == nil {
		return 0
	}
	var werr *jsonrpc.Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return -1
}
