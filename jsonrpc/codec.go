// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/prismworks-ai/prism-mcp-go/internal/jsonrpc2"
)

// DefaultMaxFrameBytes is the default ceiling on a single encoded message,
// per spec.md §4.1.
const DefaultMaxFrameBytes = 16 * 1024 * 1024

// EncodeMessage marshals msg to its wire form. Batches are rejected: the
// core only ever emits singleton messages (spec.md §9).
func EncodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		return json.Marshal(m.toWire())
	case *Response:
		return json.Marshal(m.toWire())
	case *Notification:
		return json.Marshal(m.toWire())
	case Batch:
		return nil, fmt.Errorf("jsonrpc: cannot encode a batch; the core only emits singleton messages")
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message type %T", msg)
	}
}

// DecodeMessage parses data (which must not exceed maxFrameBytes if
// maxFrameBytes > 0) into a [Message]. A maxFrameBytes of 0 selects
// [DefaultMaxFrameBytes]; a negative value disables the limit.
func DecodeMessage(data []byte, maxFrameBytes int64) (Message, error) {
	limit := effectiveMaxFrameBytes(maxFrameBytes)
	if limit > 0 && int64(len(data)) > limit {
		return nil, &Error{Code: CodeParseError, Message: fmt.Sprintf("frame of %d bytes exceeds the %d byte limit", len(data), limit)}
	}

	// A batch is a top-level JSON array; everything else is a top-level
	// object.
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, &Error{Code: CodeParseError, Message: err.Error()}
		}
		if len(raws) == 0 {
			return nil, &Error{Code: CodeInvalidRequest, Message: "batch must not be empty"}
		}
		batch := make(Batch, 0, len(raws))
		for _, raw := range raws {
			msg, err := decodeOne(raw)
			if err != nil {
				return nil, err
			}
			batch = append(batch, msg)
		}
		return batch, nil
	}
	return decodeOne(data)
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

func decodeOne(data []byte) (Message, error) {
	var w wireMessage
	if err := jsonrpc2.StrictUnmarshal(data, &w); err != nil {
		return nil, &Error{Code: CodeParseError, Message: err.Error()}
	}
	if w.JSONRPC != protocolVersion {
		return nil, &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("jsonrpc: expected version %q, got %q", protocolVersion, w.JSONRPC)}
	}
	switch {
	case w.Method != "" && w.ID != nil:
		return &Request{ID: *w.ID, Method: w.Method, Params: w.Params}, nil
	case w.Method != "":
		return &Notification{Method: w.Method, Params: w.Params}, nil
	case w.ID != nil:
		return &Response{ID: *w.ID, Result: w.Result, Error: w.Error}, nil
	default:
		return nil, &Error{Code: CodeInvalidRequest, Message: "message has neither method nor id"}
	}
}

func effectiveMaxFrameBytes(maxFrameBytes int64) int64 {
	switch {
	case maxFrameBytes == 0:
		return DefaultMaxFrameBytes
	case maxFrameBytes < 0:
		return 0
	default:
		return maxFrameBytes
	}
}
