// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// DefaultPerKindConcurrency bounds how many calls of a single request kind
// (tools/call, resources/read, ...) may run at once, per spec.md §4.5.
const DefaultPerKindConcurrency = 64

// DefaultGlobalConcurrency bounds how many inbound requests may be
// in-flight across all kinds at once, per spec.md §4.5.
const DefaultGlobalConcurrency = 1024

// dispatcher enforces the bounded-concurrency policy described by
// spec.md §4.5: a global semaphore shared by every request kind, plus a
// per-kind semaphore so that one noisy kind (e.g. a slow tool) cannot
// starve the others.
type dispatcher struct {
	global chan struct{}

	mu             sync.Mutex
	perKind        map[string]chan struct{}
	defaultPerKind int
}

func newDispatcher(global, perKind int) *dispatcher {
	if global <= 0 {
		global = DefaultGlobalConcurrency
	}
	if perKind <= 0 {
		perKind = DefaultPerKindConcurrency
	}
	return &dispatcher{
		global:         make(chan struct{}, global),
		perKind:        make(map[string]chan struct{}),
		defaultPerKind: perKind,
	}
}

// kindSem returns the semaphore for kind, creating it on first use. run is
// invoked from a fresh goroutine per inbound request (mcp/session.go's
// dispatch), so two requests can race to create the same kind's semaphore
// concurrently; perKind is a plain map and needs its own lock rather than
// relying on the semaphores it hands out.
func (d *dispatcher) kindSem(kind string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sem, ok := d.perKind[kind]; ok {
		return sem
	}
	sem := make(chan struct{}, d.defaultPerKind)
	d.perKind[kind] = sem
	return sem
}

// run acquires both semaphores for method, invokes fn, and classifies the
// result per spec.md §4.1's error taxonomy: TooBusy (-32000) if a slot
// couldn't be acquired before ctx expired, PluginFault (-32099) if fn
// panics, and otherwise whatever fn itself returns (a HandlerError, or a
// domain-specific McpError).
func (d *dispatcher) run(ctx context.Context, method string, fn func(context.Context) (any, error)) (result any, err error) {
	kindSem := d.kindSem(method)

	select {
	case d.global <- struct{}{}:
	case <-ctx.Done():
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeTooBusy, Message: "server is too busy: global concurrency limit reached"}
	}
	defer func() { <-d.global }()

	select {
	case kindSem <- struct{}{}:
	case <-ctx.Done():
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeTooBusy, Message: fmt.Sprintf("server is too busy: %s concurrency limit reached", method)}
	}
	defer func() { <-kindSem }()

	defer func() {
		if r := recover(); r != nil {
			err = &jsonrpc.Error{Code: jsonrpc.CodePluginFault, Message: fmt.Sprintf("handler panicked: %v", r)}
		}
	}()

	return fn(ctx)
}
