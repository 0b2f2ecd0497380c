// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// compressionEncoding is the wire compression streamable HTTP negotiates
// via the incoming request's Accept-Encoding header.
type compressionEncoding int

const (
	encodingIdentity compressionEncoding = iota
	encodingGzip
	encodingZstd
)

// negotiateCompression picks the strongest compression the client
// declared support for, preferring zstd (better ratio, cheap to flush)
// over gzip, falling back to no compression for anything else. Wire
// compression is orthogonal to spec.md §4.2's transport framing: it
// shrinks the bytes on the wire without changing streamable HTTP's
// message-at-a-time delivery.
func negotiateCompression(acceptEncoding string) compressionEncoding {
	best := encodingIdentity
	for _, tok := range strings.Split(acceptEncoding, ",") {
		switch strings.TrimSpace(strings.SplitN(tok, ";", 2)[0]) {
		case "zstd":
			return encodingZstd
		case "gzip":
			best = encodingGzip
		}
	}
	return best
}

// compressingResponseWriter wraps an [http.ResponseWriter], compressing
// everything written to it with the negotiated encoding. Flush drains the
// compressor as well as the underlying connection, so an SSE event
// written by streamResponse still reaches the client as soon as it's
// written instead of waiting for the compressor to fill an internal
// block or for the response to close.
type compressingResponseWriter struct {
	http.ResponseWriter
	enc         compressionEncoding
	gz          *gzip.Writer
	zs          *zstd.Encoder
	wroteHeader bool
}

func newCompressingResponseWriter(w http.ResponseWriter, enc compressionEncoding) *compressingResponseWriter {
	cw := &compressingResponseWriter{ResponseWriter: w, enc: enc}
	switch enc {
	case encodingGzip:
		cw.gz = gzip.NewWriter(w)
	case encodingZstd:
		zs, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			// Only returned for an invalid encoder option; ours is a
			// constant, valid one, so this cannot actually happen.
			panic(err)
		}
		cw.zs = zs
	}
	return cw
}

func (cw *compressingResponseWriter) WriteHeader(status int) {
	if !cw.wroteHeader {
		switch cw.enc {
		case encodingGzip:
			cw.Header().Set("Content-Encoding", "gzip")
		case encodingZstd:
			cw.Header().Set("Content-Encoding", "zstd")
		}
		cw.Header().Del("Content-Length")
		cw.wroteHeader = true
	}
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *compressingResponseWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	switch cw.enc {
	case encodingGzip:
		return cw.gz.Write(p)
	case encodingZstd:
		return cw.zs.Write(p)
	default:
		return cw.ResponseWriter.Write(p)
	}
}

// Flush implements [http.Flusher].
func (cw *compressingResponseWriter) Flush() {
	switch cw.enc {
	case encodingGzip:
		cw.gz.Flush()
	case encodingZstd:
		cw.zs.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Close releases the compressor. Callers must call it once the response
// is complete; it is not part of [http.ResponseWriter].
func (cw *compressingResponseWriter) Close() error {
	switch cw.enc {
	case encodingGzip:
		return cw.gz.Close()
	case encodingZstd:
		return cw.zs.Close()
	}
	return nil
}

// Hijack implements [http.Hijacker] so this wrapper stays transparent to
// anything layered on top that needs the raw connection. Streamable HTTP
// itself never hijacks.
func (cw *compressingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := cw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("mcp: underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}
