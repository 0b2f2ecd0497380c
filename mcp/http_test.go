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

func TestPlainHTTPRoundTrip(t *testing.T) {
	impl := &Implementation{Name: "test", Version: "1.0.0"}
	server := NewServer(impl, nil)
	if err := AddTool(server, greetTool(), sayHi); err != nil {
		t.Fatal(err)
	}
	handler := NewPlainHTTPHandler(func(*http.Request) *Server { return server })
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx := context.Background()
	client := NewClient(impl, nil)
	session, err := client.Connect(ctx, NewPlainHTTPClientTransport(ts.URL, nil), nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &CallToolParams{Name: "greet", Arguments: hiParams{Name: "plain"}})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	text, ok := res.Content[0].(*TextContent)
	if !ok || text.Text != "hi plain" {
		t.Errorf("CallTool result = %+v, want text %q", res.Content, "hi plain")
	}
}

func TestPlainHTTPHandlerRejectsGet(t *testing.T) {
	handler := NewPlainHTTPHandler(func(*http.Request) *Server { return nil })
	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestPlainHTTPHandlerRejectsEmptyBody(t *testing.T) {
	handler := NewPlainHTTPHandler(func(*http.Request) *Server { return nil })
	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Post(ts.URL, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty POST status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
