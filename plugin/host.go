// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package plugin

import (
	"context"
	"errors"
	"fmt"
	stdplugin "plugin"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
	"github.com/prismworks-ai/prism-mcp-go/mcp"
)

var errABIMismatch = errors.New("plugin: incompatible ABI version")

// pluginState tracks one loaded plugin's lifecycle, mirroring the server
// session's own atomic state machine (mcp/session.go's sessionState): a
// small enum stored in an atomic.Int32 rather than guarded by the host's
// main mutex, so a status read never blocks on an in-flight call.
type pluginState int32

const (
	stateLoading pluginState = iota
	stateRunning
	stateDraining
	stateFailed
	stateUnloaded
)

func (s pluginState) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	case stateFailed:
		return "failed"
	case stateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// DefaultDrainTimeout bounds how long [Host.Reload] and [Host.Unload] wait
// for in-flight plugin calls to finish before force-resolving them, per
// spec.md §4.6.
const DefaultDrainTimeout = 30 * time.Second

// DefaultQuarantineThreshold and DefaultQuarantineWindow implement
// spec.md §4.6's fault-isolation policy: a plugin that panics or returns an
// error this many times within this window is quarantined (unregistered
// and marked Failed) rather than kept serving calls that keep crashing it.
const (
	DefaultQuarantineThreshold = 3
	DefaultQuarantineWindow    = 60 * time.Second
)

// loadedPlugin is one plugin currently known to the host.
type loadedPlugin struct {
	manifest *Manifest
	lib      *stdplugin.Plugin
	entry    *Entry
	instance Instance

	state   atomic.Int32
	inflight atomic.Int64

	mu     sync.Mutex
	crashes *crashWindow
}

func (p *loadedPlugin) getState() pluginState  { return pluginState(p.state.Load()) }
func (p *loadedPlugin) setState(s pluginState) { p.state.Store(int32(s)) }

// Host discovers, loads, and supervises plugins, registering their
// exported capabilities onto a live [mcp.Server] and unregistering them on
// crash, reload, or unload. It is the server-side counterpart to
// spec.md §4.6: every entry point into plugin code is guarded so that a
// fault in one plugin cannot corrupt the registry or any other plugin,
// echoing the bounded-concurrency dispatcher's panic-recovery pattern
// (mcp/dispatcher.go's run method) at the plugin boundary instead of the
// request-kind boundary.
type Host struct {
	server *mcp.Server

	QuarantineThreshold int
	QuarantineWindow    time.Duration
	DrainTimeout        time.Duration

	mu      sync.Mutex
	plugins map[string]*loadedPlugin
}

// NewHost creates a plugin host that registers capabilities onto server.
func NewHost(server *mcp.Server) *Host {
	return &Host{
		server:              server,
		QuarantineThreshold: DefaultQuarantineThreshold,
		QuarantineWindow:    DefaultQuarantineWindow,
		DrainTimeout:        DefaultDrainTimeout,
		plugins:             make(map[string]*loadedPlugin),
	}
}

// LoadAll discovers every plugin under root and loads them concurrently,
// collecting (rather than aborting on) individual load failures so that
// one bad plugin doesn't prevent the rest of the directory from starting.
func (h *Host) LoadAll(ctx context.Context, root string) (loaded []string, failures []error) {
	manifests, discoveryFailures := Discover(root)
	for _, f := range discoveryFailures {
		failures = append(failures, fmt.Errorf("%s: %w", f.Dir, f.Err))
	}

	// Opening the .so and running Initialize/Configure can each take real
	// wall-clock time across a directory of plugins; loading them
	// concurrently rather than one at a time keeps LoadAll's latency close
	// to the slowest plugin rather than their sum. Load already serializes
	// each plugin's own registration under h.mu, so the only thing this
	// needs to protect is the two result slices.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range manifests {
		g.Go(func() error {
			if err := h.Load(gctx, m); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", m.Name, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			loaded = append(loaded, m.Name)
			mu.Unlock()
			return nil
		})
	}
	g.Wait() // every Go func above returns nil, so this only ever reports ctx errors

	return loaded, failures
}

// Load opens, constructs, and initializes a single plugin from its
// manifest, then registers its exported capabilities. Name collisions with
// capabilities already registered (by the host or by another plugin) are
// resolved by namespacing the plugin's own registrations as
// "<plugin>.<name>", per spec.md §4.6; if that namespaced name is itself
// taken, Load fails rather than silently shadowing an existing capability.
func (h *Host) Load(ctx context.Context, m *Manifest) error {
	h.mu.Lock()
	if _, exists := h.plugins[m.Name]; exists {
		h.mu.Unlock()
		return fmt.Errorf("plugin: %q is already loaded", m.Name)
	}
	h.mu.Unlock()

	lp := &loadedPlugin{manifest: m, crashes: newCrashWindow()}
	lp.setState(stateLoading)

	lib, entry, err := loadEntry(m.entryPointPath())
	if err != nil {
		lp.setState(stateFailed)
		return err
	}
	lp.lib, lp.entry = lib, entry

	inst, err := entry.Construct()
	if err != nil {
		lp.setState(stateFailed)
		return fmt.Errorf("constructing plugin: %w", err)
	}
	lp.instance = inst

	if inst.Initialize != nil {
		if err := inst.Initialize(ctx); err != nil {
			lp.setState(stateFailed)
			return fmt.Errorf("initializing plugin: %w", err)
		}
	}
	if inst.Configure != nil {
		if err := inst.Configure(manifestConfig(m)); err != nil {
			lp.setState(stateFailed)
			return fmt.Errorf("configuring plugin: %w", err)
		}
	}

	if err := h.register(m.Name, lp); err != nil {
		lp.setState(stateFailed)
		h.unregister(m.Name, lp) // clean up whatever partially registered before the collision
		return err
	}

	lp.setState(stateRunning)
	h.mu.Lock()
	h.plugins[m.Name] = lp
	h.mu.Unlock()
	return nil
}

// register wires a constructed instance's exports onto the server,
// guarding every handler with the plugin's operational-isolation wrapper.
// The Has*/AddTool sequence below is a check-then-act race when LoadAll is
// loading several plugins concurrently; AddTool/AddResource/AddPrompt's own
// duplicate check is the actual backstop; a race lost here surfaces as that
// call returning a [mcp.DuplicateNameError] instead of silently clobbering
// another plugin's registration.
func (h *Host) register(name string, lp *loadedPlugin) error {
	for _, te := range lp.instance.Tools {
		tool := *te.Tool
		regName := te.Tool.Name
		if h.server.HasTool(regName) {
			regName = pluginNamespace(name, te.Tool.Name)
			if h.server.HasTool(regName) {
				return fmt.Errorf("tool %q collides even when namespaced", regName)
			}
			tool.Name = regName
		}
		handler := te.Handler
		if err := h.server.AddTool(&tool, h.guardTool(lp, handler)); err != nil {
			return err
		}
	}
	for _, re := range lp.instance.Resources {
		res := *re.Resource
		if h.server.HasResource(res.URI) {
			return fmt.Errorf("resource %q collides", res.URI)
		}
		if err := h.server.AddResource(&res, h.guardResource(lp, re.Handler)); err != nil {
			return err
		}
	}
	for _, pe := range lp.instance.Prompts {
		prompt := *pe.Prompt
		regName := prompt.Name
		if h.server.HasPrompt(regName) {
			regName = pluginNamespace(name, prompt.Name)
			if h.server.HasPrompt(regName) {
				return fmt.Errorf("prompt %q collides even when namespaced", regName)
			}
			prompt.Name = regName
		}
		if err := h.server.AddPrompt(&prompt, h.guardPrompt(lp, pe.Handler)); err != nil {
			return err
		}
	}
	return nil
}

// pluginNamespace returns the "<plugin>.<name>" form, mirroring
// mcp/registry.go's unexported helper of the same name and purpose (that
// one is internal to package mcp and unreachable from here).
func pluginNamespace(plugin, name string) string {
	if plugin == "" {
		return name
	}
	return plugin + "." + name
}

// guard wraps fn so that every call into plugin code tracks inflight
// count, recovers a panic into a PluginFault wire error, and records a
// crash for quarantine purposes on either a panic or a returned error.
func guard[Req, Res any](h *Host, lp *loadedPlugin, fn func(context.Context, Req) (Res, error)) func(context.Context, Req) (res Res, err error) {
	return func(ctx context.Context, req Req) (res Res, err error) {
		if lp.getState() != stateRunning {
			return res, fmt.Errorf("plugin: %q is not running (state %s)", lp.manifest.Name, lp.getState())
		}
		lp.inflight.Add(1)
		defer lp.inflight.Add(-1)

		defer func() {
			if r := recover(); r != nil {
				err = &jsonrpc.Error{Code: jsonrpc.CodePluginFault, Message: fmt.Sprintf("plugin %q panicked: %v", lp.manifest.Name, r)}
			}
			if err != nil {
				h.recordFault(lp)
			}
		}()

		res, err = fn(ctx, req)
		return res, err
	}
}

func (h *Host) guardTool(lp *loadedPlugin, handler mcp.ToolHandler) mcp.ToolHandler {
	type call struct {
		req  *mcp.CallToolRequest
		args any
	}
	wrapped := guard(h, lp, func(ctx context.Context, c call) (*mcp.CallToolResult, error) {
		return handler(ctx, c.req, c.args)
	})
	return func(ctx context.Context, req *mcp.CallToolRequest, args any) (*mcp.CallToolResult, error) {
		return wrapped(ctx, call{req, args})
	}
}

func (h *Host) guardResource(lp *loadedPlugin, handler mcp.ResourceHandler) mcp.ResourceHandler {
	wrapped := guard(h, lp, handler)
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return wrapped(ctx, req)
	}
}

func (h *Host) guardPrompt(lp *loadedPlugin, handler mcp.PromptHandler) mcp.PromptHandler {
	wrapped := guard(h, lp, handler)
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return wrapped(ctx, req)
	}
}

// recordFault records a crash and quarantines the plugin once it crosses
// QuarantineThreshold crashes inside QuarantineWindow.
func (h *Host) recordFault(lp *loadedPlugin) {
	lp.mu.Lock()
	n := lp.crashes.record(h.quarantineWindow())
	lp.mu.Unlock()
	if n >= h.quarantineThreshold() {
		go h.quarantine(lp.manifest.Name)
	}
}

func (h *Host) quarantineThreshold() int {
	if h.QuarantineThreshold > 0 {
		return h.QuarantineThreshold
	}
	return DefaultQuarantineThreshold
}

func (h *Host) quarantineWindow() time.Duration {
	if h.QuarantineWindow > 0 {
		return h.QuarantineWindow
	}
	return DefaultQuarantineWindow
}

func (h *Host) drainTimeout() time.Duration {
	if h.DrainTimeout > 0 {
		return h.DrainTimeout
	}
	return DefaultDrainTimeout
}

// quarantine unregisters a repeatedly-crashing plugin's capabilities and
// marks it Failed, without attempting to reload it. A quarantined plugin
// stays in the host's table (so Status/List still report it) but serves no
// further calls.
func (h *Host) quarantine(name string) {
	h.mu.Lock()
	lp, ok := h.plugins[name]
	h.mu.Unlock()
	if !ok || lp.getState() != stateRunning {
		return
	}
	lp.setState(stateFailed)
	h.unregister(name, lp)
}

func (h *Host) unregister(name string, lp *loadedPlugin) {
	for _, te := range lp.instance.Tools {
		regName := te.Tool.Name
		if !h.server.HasTool(regName) {
			regName = pluginNamespace(name, te.Tool.Name)
		}
		h.server.RemoveTools(regName)
	}
	for _, re := range lp.instance.Resources {
		h.server.RemoveResources(re.Resource.URI)
	}
	for _, pe := range lp.instance.Prompts {
		regName := pe.Prompt.Name
		if !h.server.HasPrompt(regName) {
			regName = pluginNamespace(name, pe.Prompt.Name)
		}
		h.server.RemovePrompts(regName)
	}
}

// drain waits for lp's inflight call count to reach zero, or until
// DrainTimeout elapses, whichever comes first. It reports whether the
// drain completed cleanly.
func (h *Host) drain(lp *loadedPlugin) (clean bool) {
	deadline := time.After(h.drainTimeout())
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if lp.inflight.Load() == 0 {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return false
		}
	}
}

// Unload drains, shuts down, and unloads the named plugin. It is terminal:
// the plugin stays Unloaded until a fresh [Host.Load].
func (h *Host) Unload(ctx context.Context, name string) error {
	h.mu.Lock()
	lp, ok := h.plugins[name]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin: %q is not loaded", name)
	}
	return h.unload(ctx, lp)
}

func (h *Host) unload(ctx context.Context, lp *loadedPlugin) error {
	lp.setState(stateDraining)
	h.unregister(lp.manifest.Name, lp)
	h.drain(lp) // a dirty drain still proceeds to shutdown; in-flight calls observe stateDraining via guard

	if lp.instance.Destroy != nil {
		lp.instance.Destroy()
	}
	lp.setState(stateUnloaded)
	return nil
}

// Reload drains the named plugin, shuts it down, then loads it afresh from
// its original manifest. The plugin's name must match; its version may
// differ (e.g. the entry point was rebuilt in place). A failed reload
// leaves the plugin Unloaded, matching Unload's terminal semantics, rather
// than resurrecting the old, possibly-faulty instance.
func (h *Host) Reload(ctx context.Context, name string) error {
	h.mu.Lock()
	lp, ok := h.plugins[name]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin: %q is not loaded", name)
	}
	manifest := lp.manifest

	if err := h.unload(ctx, lp); err != nil {
		return err
	}

	h.mu.Lock()
	delete(h.plugins, name)
	h.mu.Unlock()

	return h.Load(ctx, manifest)
}

// Status reports the current lifecycle state of the named plugin.
func (h *Host) Status(name string) (pluginState, bool) {
	h.mu.Lock()
	lp, ok := h.plugins[name]
	h.mu.Unlock()
	if !ok {
		return 0, false
	}
	return lp.getState(), true
}

// Names returns the names of every plugin the host currently tracks,
// loaded or not.
func (h *Host) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	return names
}
