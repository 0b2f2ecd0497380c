// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
	"github.com/prismworks-ai/prism-mcp-go/mcp"
	"go.uber.org/goleak"
)

// TestMain wires goleak in so that a forgotten ticker or stuck drain loop
// in the host fails the suite instead of leaking silently.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testServer(t *testing.T) *mcp.Server {
	t.Helper()
	return mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
}

func newTestLoadedPlugin(name string, inst Instance) *loadedPlugin {
	lp := &loadedPlugin{
		manifest: &Manifest{Name: name},
		instance: inst,
		crashes:  newCrashWindow(),
	}
	lp.setState(stateRunning)
	return lp
}

func TestHostRegisterAndGuardedCall(t *testing.T) {
	srv := testServer(t)
	h := NewHost(srv)

	called := make(chan struct{}, 1)
	inst := Instance{
		Tools: []ToolExport{{
			Tool: &mcp.Tool{Name: "echo"},
			Handler: func(ctx context.Context, req *mcp.CallToolRequest, args any) (*mcp.CallToolResult, error) {
				called <- struct{}{}
				return &mcp.CallToolResult{}, nil
			},
		}},
	}
	lp := newTestLoadedPlugin("p1", inst)
	if err := h.register("p1", lp); err != nil {
		t.Fatalf("register: %v", err)
	}
	h.plugins["p1"] = lp

	if !srv.HasTool("echo") {
		t.Fatal("tool was not registered on the server")
	}

	guarded := h.guardTool(lp, inst.Tools[0].Handler)
	if _, err := guarded(context.Background(), nil, nil); err != nil {
		t.Fatalf("guarded handler returned error: %v", err)
	}
	select {
	case <-called:
	default:
		t.Fatal("underlying handler was never invoked")
	}
}

func TestHostNameCollisionNamespaces(t *testing.T) {
	srv := testServer(t)
	if err := srv.AddTool(&mcp.Tool{Name: "search"}, func(ctx context.Context, req *mcp.CallToolRequest, args any) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	}); err != nil {
		t.Fatal(err)
	}
	h := NewHost(srv)

	inst := Instance{Tools: []ToolExport{{
		Tool: &mcp.Tool{Name: "search"},
		Handler: func(ctx context.Context, req *mcp.CallToolRequest, args any) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{}, nil
		},
	}}}
	lp := newTestLoadedPlugin("finder", inst)
	if err := h.register("finder", lp); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !srv.HasTool("finder.search") {
		t.Fatal("colliding tool should have been namespaced to finder.search")
	}
}

func TestGuardRecoversPanicAndQuarantines(t *testing.T) {
	srv := testServer(t)
	h := NewHost(srv)
	h.QuarantineThreshold = 2
	h.QuarantineWindow = time.Minute

	inst := Instance{Tools: []ToolExport{{
		Tool: &mcp.Tool{Name: "boom"},
		Handler: func(ctx context.Context, req *mcp.CallToolRequest, args any) (*mcp.CallToolResult, error) {
			panic("kaboom")
		},
	}}}
	lp := newTestLoadedPlugin("bomb", inst)
	if err := h.register("bomb", lp); err != nil {
		t.Fatal(err)
	}
	h.plugins["bomb"] = lp

	guarded := h.guardTool(lp, inst.Tools[0].Handler)
	for i := 0; i < 2; i++ {
		_, err := guarded(context.Background(), nil, nil)
		var wireErr *jsonrpc.Error
		if !errors.As(err, &wireErr) || wireErr.Code != jsonrpc.CodePluginFault {
			t.Fatalf("call %d: err = %v, want a PluginFault wire error", i, err)
		}
	}

	// recordFault quarantines asynchronously; poll briefly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if lp.getState() == stateFailed {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if lp.getState() != stateFailed {
		t.Fatalf("plugin state = %s, want %s after crossing quarantine threshold", lp.getState(), stateFailed)
	}
	if srv.HasTool("boom") {
		t.Fatal("quarantined plugin's tool should have been unregistered")
	}
}

func TestUnloadDrainsAndDestroys(t *testing.T) {
	srv := testServer(t)
	h := NewHost(srv)
	h.DrainTimeout = time.Second

	destroyed := make(chan struct{})
	inst := Instance{
		Tools: []ToolExport{{
			Tool: &mcp.Tool{Name: "slow"},
			Handler: func(ctx context.Context, req *mcp.CallToolRequest, args any) (*mcp.CallToolResult, error) {
				return &mcp.CallToolResult{}, nil
			},
		}},
		Destroy: func() { close(destroyed) },
	}
	lp := newTestLoadedPlugin("slowpoke", inst)
	if err := h.register("slowpoke", lp); err != nil {
		t.Fatal(err)
	}
	h.plugins["slowpoke"] = lp

	if err := h.Unload(context.Background(), "slowpoke"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if lp.getState() != stateUnloaded {
		t.Fatalf("state = %s, want %s", lp.getState(), stateUnloaded)
	}
	select {
	case <-destroyed:
	default:
		t.Fatal("Destroy was never called")
	}
	if srv.HasTool("slow") {
		t.Fatal("unloaded plugin's tool should have been unregistered")
	}
}
