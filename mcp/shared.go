// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "reflect"

// Meta holds the protocol's reserved "_meta" object, attached to most
// params and results. Types embed Meta anonymously so that [Meta.GetMeta]
// is promoted, giving every params/result type a uniform accessor.
type Meta map[string]any

// GetMeta returns m itself, satisfying the metaHolder shape used by types
// that embed Meta.
func (m Meta) GetMeta() Meta { return m }

const progressTokenKey = "progressToken"

// A Params is the parameter type of a [Request] or [Notification]. Every
// concrete params type in protocol.go implements this by embedding [Meta]
// and providing progress-token accessors.
type Params interface {
	isParams()
	GetMeta() Meta
	GetProgressToken() any
	SetProgressToken(any)
}

// A Result is the result type of a [Request]. Every concrete result type
// in protocol.go implements this with an unexported marker method.
type Result interface {
	isResult()
}

// getProgressToken reads the progress token from p's "_meta" object, if
// any. Used by the GetProgressToken method each [Params] type defines.
func getProgressToken(p interface{ GetMeta() Meta }) any {
	meta := p.GetMeta()
	if meta == nil {
		return nil
	}
	return meta[progressTokenKey]
}

// setProgressToken sets the progress token in p's "_meta" object, creating
// it if necessary. p must be a pointer to a struct with an embedded Meta
// field; reflection is required because embedding only promotes read
// access to the map (maps are reference types, but a nil map can't be
// replaced through the promoted method alone).
func setProgressToken(p any, token any) {
	v := reflect.ValueOf(p)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v = v.Elem()
	f := v.FieldByName("Meta")
	if !f.IsValid() || !f.CanSet() {
		return
	}
	meta, _ := f.Interface().(Meta)
	if meta == nil {
		meta = make(Meta, 1)
	}
	meta[progressTokenKey] = token
	f.Set(reflect.ValueOf(meta))
}

// A ServerRequest wraps the params of a client->server request together
// with the server-side session handle it arrived on, as described by
// spec.md §4.5 ("per-call context ... the session handle (for reverse
// calls from within the handler)").
type ServerRequest[P Params] struct {
	Session *ServerSession
	Params  P

	// requestID is the wire ID of the inbound request, used to correlate
	// notifications/cancelled and notifications/progress.
	requestID requestKey
}

// A ClientRequest wraps the params of a server->client reverse call
// together with the client-side session handle it arrived on.
type ClientRequest[P Params] struct {
	Session *ClientSession
	Params  P

	requestID requestKey
}
