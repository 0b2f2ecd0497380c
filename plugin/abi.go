// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package plugin

import (
	"context"
	"fmt"
	stdplugin "plugin"

	"github.com/prismworks-ai/prism-mcp-go/mcp"
)

// ABIVersion is the only entry-point contract this host understands. A
// plugin built against a different version is rejected at load time rather
// than risking a mismatched vtable call, per spec.md §4.6.
const ABIVersion = 1

// EntrySymbol is the single exported symbol every plugin shared object
// must define, looked up via [stdplugin.Lookup]. It must have type
// func() *Entry.
const EntrySymbol = "PrismPluginEntry"

// Entry is what a plugin's exported constructor function returns: enough
// for the host to negotiate ABI compatibility and construct/destruct one
// instance of the plugin. It is the Go-native analogue of spec.md §4.6's
// "{abi_version, constructor, destructor, vtable_ptrs_for(...), metadata_fn}" —
// expressed as func values rather than raw C function pointers, since a
// same-process .so load shares the host's calling convention and GC, so
// there is nothing to gain by routing through cgo or an FFI vtable.
type Entry struct {
	// ABIVersion must equal the host's ABIVersion or the plugin is
	// rejected before Construct is ever called.
	ABIVersion int

	// Construct creates one plugin instance. Called once per load (and
	// once per reload).
	Construct func() (Instance, error)
}

// Instance is a constructed plugin: the set of lifecycle and capability
// hooks the host drives. A plugin need not populate every capability
// field — nil fields are simply not registered.
type Instance struct {
	// Initialize runs async setup (e.g. connecting to a backing service).
	// It runs once, before Configure.
	Initialize func(ctx context.Context) error

	// Configure delivers the plugin's manifest-declared configuration, if
	// any, as raw JSON. May be nil if the plugin takes no configuration.
	Configure func(raw []byte) error

	// Destroy releases any resources the instance holds. Called on
	// unload and before a reload's fresh Construct.
	Destroy func()

	Tools     []ToolExport
	Resources []ResourceExport
	Prompts   []PromptExport

	// Complete, if non-nil, lets the plugin answer completion/complete
	// requests for references it owns (a prompt or resource it
	// registered). The host routes a request to whichever loaded plugin
	// registered the referenced prompt/resource.
	Complete mcp.CompletionHandler
}

// ToolExport pairs a tool definition with its handler, mirroring
// [mcp.Server.AddTool]'s untyped form: a plugin instance is constructed at
// runtime, so there is no static [In, Out] type pair to parameterize a
// generic registration with.
type ToolExport struct {
	Tool    *mcp.Tool
	Handler mcp.ToolHandler
}

// ResourceExport pairs a resource definition with its handler.
type ResourceExport struct {
	Resource *mcp.Resource
	Handler  mcp.ResourceHandler
}

// PromptExport pairs a prompt definition with its handler.
type PromptExport struct {
	Prompt  *mcp.Prompt
	Handler mcp.PromptHandler
}

// loadEntry opens the plugin shared object at path and looks up its single
// entry symbol, checking ABI compatibility before returning.
func loadEntry(path string) (*stdplugin.Plugin, *Entry, error) {
	lib, err := stdplugin.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening plugin: %w", err)
	}
	sym, err := lib.Lookup(EntrySymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up %s: %w", EntrySymbol, err)
	}
	newEntry, ok := sym.(func() *Entry)
	if !ok {
		return nil, nil, fmt.Errorf("symbol %s has wrong type %T, want func() *Entry", EntrySymbol, sym)
	}
	entry := newEntry()
	if entry.ABIVersion != ABIVersion {
		return nil, nil, fmt.Errorf("%w: plugin abi %d, host abi %d", errABIMismatch, entry.ABIVersion, ABIVersion)
	}
	return lib, entry, nil
}
