// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// InMemoryTransport is a [Transport] backed by a pair of Go channels, used
// to connect a [Client] and [Server] within a single process without a
// real byte-oriented transport underneath. It is most useful in tests.
type InMemoryTransport struct {
	conn *inMemoryConn
}

// NewInMemoryTransports returns two [Transport]s wired directly to each
// other: messages written on one are read from the other.
func NewInMemoryTransports() (client, server *InMemoryTransport) {
	aToB := make(chan jsonrpc.Message, 64)
	bToA := make(chan jsonrpc.Message, 64)
	closeOnce := make(chan struct{})

	client = &InMemoryTransport{conn: &inMemoryConn{send: aToB, recv: bToA, closed: closeOnce}}
	server = &InMemoryTransport{conn: &inMemoryConn{send: bToA, recv: aToB, closed: closeOnce}}
	return client, server
}

// Connect returns the underlying [Connection]. It may only be called once.
func (t *InMemoryTransport) Connect(ctx context.Context) (Connection, error) {
	return t.conn, nil
}

type inMemoryConn struct {
	send   chan<- jsonrpc.Message
	recv   <-chan jsonrpc.Message
	closed chan struct{}
}

func (c *inMemoryConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg, ok := <-c.recv:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return msg, nil
	case <-c.closed:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *inMemoryConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *inMemoryConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *inMemoryConn) SessionID() string { return "" }
