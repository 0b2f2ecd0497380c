// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

func TestDispatcherRunSuccess(t *testing.T) {
	d := newDispatcher(0, 0)
	result, err := d.run(context.Background(), "tools/call", func(context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("run() result = %v, want %q", result, "ok")
	}
}

func TestDispatcherRunPropagatesHandlerError(t *testing.T) {
	d := newDispatcher(0, 0)
	want := errors.New("handler failed")
	_, err := d.run(context.Background(), "tools/call", func(context.Context) (any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("run() error = %v, want %v", err, want)
	}
}

func TestDispatcherRunRecoversPanic(t *testing.T) {
	d := newDispatcher(0, 0)
	_, err := d.run(context.Background(), "tools/call", func(context.Context) (any, error) {
		panic("boom")
	})
	var werr *jsonrpc.Error
	if !errors.As(err, &werr) || werr.Code != jsonrpc.CodePluginFault {
		t.Fatalf("run() error = %v, want a PluginFault jsonrpc.Error", err)
	}
}

// TestDispatcherPerKindConcurrencyLimit holds one "tools/call" slot open and
// confirms a second call of the same kind is rejected with TooBusy once its
// context expires while still waiting for a slot.
func TestDispatcherPerKindConcurrencyLimit(t *testing.T) {
	d := newDispatcher(10, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		d.run(context.Background(), "tools/call", func(context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.run(ctx, "tools/call", func(context.Context) (any, error) {
		return "should not run", nil
	})

	var werr *jsonrpc.Error
	if !errors.As(err, &werr) || werr.Code != jsonrpc.CodeTooBusy {
		t.Fatalf("run() error = %v, want a TooBusy jsonrpc.Error", err)
	}
}

// TestDispatcherGlobalConcurrencyLimit is the same shape as
// TestDispatcherPerKindConcurrencyLimit but exhausts the global semaphore
// using two different request kinds, confirming the global limit applies
// across kinds rather than only within one.
func TestDispatcherGlobalConcurrencyLimit(t *testing.T) {
	d := newDispatcher(1, 10)
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		d.run(context.Background(), "tools/call", func(context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.run(ctx, "resources/read", func(context.Context) (any, error) {
		return "should not run", nil
	})

	var werr *jsonrpc.Error
	if !errors.As(err, &werr) || werr.Code != jsonrpc.CodeTooBusy {
		t.Fatalf("run() error = %v, want a TooBusy jsonrpc.Error", err)
	}
}

// TestDispatcherKindSemConcurrentCreation exercises kindSem's map access
// from many goroutines racing to create semaphores for overlapping sets of
// kinds — the scenario that used to trigger a concurrent map write once
// dispatcher.run started being invoked from a fresh goroutine per inbound
// request (mcp/session.go's dispatch).
func TestDispatcherKindSemConcurrentCreation(t *testing.T) {
	d := newDispatcher(0, 0)
	kinds := []string{"tools/call", "resources/read", "prompts/get", "completion/complete"}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		for _, kind := range kinds {
			wg.Add(1)
			go func(kind string) {
				defer wg.Done()
				d.run(context.Background(), kind, func(context.Context) (any, error) {
					return nil, nil
				})
			}(kind)
		}
	}
	wg.Wait()

	for _, kind := range kinds {
		if d.kindSem(kind) == nil {
			t.Errorf("kindSem(%q) = nil after concurrent creation", kind)
		}
	}
}
