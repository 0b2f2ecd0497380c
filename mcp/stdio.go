// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// stdioMaxLine caps a single newline-delimited frame, mirroring
// [jsonrpc.DefaultMaxFrameBytes].
const stdioMaxLine = jsonrpc.DefaultMaxFrameBytes

// A StdioTransport is a [Transport] that speaks newline-delimited JSON-RPC
// over a pair of byte streams, the framing MCP uses for a server launched
// as a child process.
type StdioTransport struct {
	Reader io.Reader
	Writer io.Writer
}

// Connect returns a [Connection] wrapping t's streams. It never fails: any
// error surfaces from the first Read or Write.
func (t *StdioTransport) Connect(ctx context.Context) (Connection, error) {
	return newStdioConn(t.Reader, t.Writer), nil
}

type stdioConn struct {
	scanner *bufio.Scanner
	writer  io.Writer

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
	closer  io.Closer
}

func newStdioConn(r io.Reader, w io.Writer) *stdioConn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), int(stdioMaxLine))
	c := &stdioConn{scanner: scanner, writer: w}
	if rc, ok := r.(io.Closer); ok {
		c.closer = rc
	}
	return c
}

func (c *stdioConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	type result struct {
		msg jsonrpc.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				ch <- result{nil, err}
				return
			}
			ch <- result{nil, io.EOF}
			return
		}
		line := append([]byte(nil), c.scanner.Bytes()...)
		msg, err := jsonrpc.DecodeMessage(line, 0)
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *stdioConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *stdioConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *stdioConn) SessionID() string { return "" }
