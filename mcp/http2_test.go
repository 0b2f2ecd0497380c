// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTP2CleartextRoundTrip(t *testing.T) {
	ctx := context.Background()

	impl := &Implementation{Name: "test", Version: "1.0.0"}
	server := NewServer(impl, nil)
	if err := AddTool(server, greetTool(), sayHi); err != nil {
		t.Fatal(err)
	}

	streamable := NewStreamableHTTPHandler(func(*http.Request) *Server { return server }, nil)
	ts := httptest.NewUnstartedServer(NewHTTP2StreamableHandler(streamable))
	ts.Start() // cleartext: no ts.StartTLS, h2c negotiates HTTP/2 without TLS
	defer ts.Close()

	client := NewClient(impl, nil)
	clientTransport := NewStreamableClientTransport(ts.URL, &StreamableClientTransportOptions{
		HTTPClient: NewHTTP2Client(&HTTP2ClientTransportOptions{AllowHTTP: true}),
	})
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &CallToolParams{Name: "greet", Arguments: hiParams{Name: "h2c"}})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	text, ok := res.Content[0].(*TextContent)
	if !ok || text.Text != "hi h2c" {
		t.Errorf("CallTool result = %+v, want text %q", res.Content, "hi h2c")
	}
}
