// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestNegotiateCompression(t *testing.T) {
	tests := []struct {
		header string
		want   compressionEncoding
	}{
		{"", encodingIdentity},
		{"br", encodingIdentity},
		{"gzip", encodingGzip},
		{"gzip, deflate", encodingGzip},
		{"zstd", encodingZstd},
		{"gzip, zstd", encodingZstd},
		{"zstd;q=0.9, gzip;q=1.0", encodingZstd},
	}
	for _, tt := range tests {
		if got := negotiateCompression(tt.header); got != tt.want {
			t.Errorf("negotiateCompression(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestCompressingResponseWriterGzip(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCompressingResponseWriter(rec, encodingGzip)
	if _, err := cw.Write([]byte("hello, gzip")); err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello, gzip" {
		t.Errorf("decompressed body = %q, want %q", data, "hello, gzip")
	}
}

func TestCompressingResponseWriterZstd(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCompressingResponseWriter(rec, encodingZstd)
	if _, err := cw.Write([]byte("hello, zstd")); err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}

	if got := rec.Header().Get("Content-Encoding"); got != "zstd" {
		t.Errorf("Content-Encoding = %q, want zstd", got)
	}
	zr, err := zstd.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello, zstd" {
		t.Errorf("decompressed body = %q, want %q", data, "hello, zstd")
	}
}

// TestStreamableClientNegotiatesCompression exercises the ServeHTTP
// compression path end to end: net/http's default [http.Transport] adds
// "Accept-Encoding: gzip" automatically and transparently decompresses a
// matching response, so a working round trip here means the negotiated
// gzip encoding didn't disturb streamable HTTP's SSE framing.
func TestStreamableClientNegotiatesCompression(t *testing.T) {
	impl := &Implementation{Name: "test", Version: "1.0.0"}
	server := NewServer(impl, nil)
	if err := AddTool(server, greetTool(), sayHi); err != nil {
		t.Fatal(err)
	}
	handler := NewStreamableHTTPHandler(func(*http.Request) *Server { return server }, nil)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx := context.Background()
	client := NewClient(impl, nil)
	session, err := client.Connect(ctx, NewStreamableClientTransport(ts.URL, nil), nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &CallToolParams{Name: "greet", Arguments: hiParams{Name: "zstd"}})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	text, ok := res.Content[0].(*TextContent)
	if !ok || text.Text != "hi zstd" {
		t.Errorf("CallTool result = %+v, want text %q", res.Content, "hi zstd")
	}
}
