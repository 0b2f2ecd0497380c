// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc implements the JSON-RPC 2.0 message shapes and framing
// used by the MCP wire protocol. It is transport-agnostic: transports move
// opaque [Message] values, and this package only concerns itself with their
// JSON representation.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Reserved JSON-RPC 2.0 error codes, plus the MCP application range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeTooBusy is returned when a dispatcher rejects a request because a
	// concurrency limit was exceeded.
	CodeTooBusy = -32000
	// CodeHandlerError is returned when a registered handler returns a
	// business-logic error.
	CodeHandlerError = -32001
	// CodePluginFault is returned when a plugin-backed handler panics or
	// violates its ABI contract.
	CodePluginFault = -32099
)

const protocolVersion = "2.0"

// An ID identifies a [Request] and its matching [Response]. Per JSON-RPC
// 2.0 it is a non-null string or integer. The zero ID (IsValid() == false)
// marks a [Notification].
type ID struct {
	str   string
	num   int64
	isStr bool
	isNum bool
}

// NewStringID returns an ID holding a string value.
func NewStringID(s string) ID { return ID{str: s, isStr: true} }

// NewIntID returns an ID holding an integer value.
func NewIntID(n int64) ID { return ID{num: n, isNum: true} }

// IsValid reports whether id holds a value (as opposed to the zero ID used
// internally for notifications).
func (id ID) IsValid() bool { return id.isStr || id.isNum }

// String renders the ID for logging and map keys.
func (id ID) String() string {
	switch {
	case id.isStr:
		return id.str
	case id.isNum:
		return fmt.Sprintf("%d", id.num)
	default:
		return "<no id>"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.isStr:
		return json.Marshal(id.str)
	case id.isNum:
		return json.Marshal(id.num)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var asNum int64
	if err := json.Unmarshal(data, &asNum); err == nil {
		*id = ID{num: asNum, isNum: true}
		return nil
	}
	var asStr string
	if err := json.Unmarshal(data, &asStr); err == nil {
		*id = ID{str: asStr, isStr: true}
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a string or integer, got %s", data)
}

// A Message is a [Request], [Response], [Notification], or [Batch]: the
// tagged union that crosses the wire, per spec.md's Message data model.
type Message interface {
	isMessage()
}

// A Request expects exactly one matching [Response].
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

func (*Request) isMessage() {}

// A Response answers a previously sent [Request]. Exactly one of Result or
// Error is set.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *Error
}

func (*Response) isMessage() {}

// An Error is the JSON-RPC error object carried by a [Response].
type Error struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// A Notification carries no ID and is never answered.
type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Notification) isMessage() {}

// A Batch is an ordered, non-empty sequence of messages. The core only ever
// accepts batches from a peer; it never emits one (spec.md §9, Open
// Questions: batch handling is asymmetric).
type Batch []Message

func (Batch) isMessage() {}

// wireMessage is the on-the-wire shape used to distinguish the four kinds
// of [Message] by which fields are present.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func (m *Request) toWire() *wireMessage {
	return &wireMessage{JSONRPC: protocolVersion, ID: &m.ID, Method: m.Method, Params: m.Params}
}

func (m *Response) toWire() *wireMessage {
	w := &wireMessage{JSONRPC: protocolVersion, ID: &m.ID}
	if m.Error != nil {
		w.Error = m.Error
	} else {
		w.Result = m.Result
		if w.Result == nil {
			w.Result = json.RawMessage("null")
		}
	}
	return w
}

func (m *Notification) toWire() *wireMessage {
	return &wireMessage{JSONRPC: protocolVersion, Method: m.Method, Params: m.Params}
}
