// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// A LoggingTransport wraps another [Transport], writing a line to Writer for
// every message read from or written to the underlying connection. It is
// useful for debugging a session's wire traffic without modifying the
// session or server code.
type LoggingTransport struct {
	Transport Transport
	Writer    io.Writer
}

// Connect implements the [Transport] interface.
func (t *LoggingTransport) Connect(ctx context.Context) (Connection, error) {
	conn, err := t.Transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConn{conn: conn, w: t.Writer}, nil
}

type loggingConn struct {
	conn Connection
	mu   sync.Mutex
	w    io.Writer
}

func (c *loggingConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	msg, err := c.conn.Read(ctx)
	if err == nil {
		c.log("read", msg)
	}
	return msg, err
}

func (c *loggingConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.log("write", msg)
	return c.conn.Write(ctx, msg)
}

func (c *loggingConn) log(dir string, msg JSONRPCMessage) {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s: %s\n", dir, data)
}

func (c *loggingConn) Close() error { return c.conn.Close() }

func (c *loggingConn) SessionID() string { return c.conn.SessionID() }
