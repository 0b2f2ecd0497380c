// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// DefaultPageSize is the number of items returned in a single list page
// when the caller supplies no cursor, per spec.md §4.3.
const DefaultPageSize = 100

// pluginNamespace returns the "<plugin>.<name>" form used to namespace a
// capability registered on behalf of a loaded plugin, per spec.md §4.3 (so
// that two plugins may each register a tool named "search" without
// colliding).
func pluginNamespace(plugin, name string) string {
	if plugin == "" {
		return name
	}
	return plugin + "." + name
}

// toolRegistry holds the server's registered tools, keyed by their
// (possibly plugin-namespaced) name. It is read far more often than it is
// written, so its mutex is a sync.RWMutex biased toward readers, matching
// the teacher's reflection_validator caching style of "resolve once, read
// many".
type toolRegistry struct {
	mu    sync.RWMutex
	byName map[string]*serverTool
	order []string // insertion order, for stable list pages

	onChange func()
}

func newToolRegistry() *toolRegistry {
	return &toolRegistry{byName: make(map[string]*serverTool)}
}

// add registers st, failing with [DuplicateNameError] if a tool by that
// name is already registered, per spec.md §4.4.
func (r *toolRegistry) add(st *serverTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[st.tool.Name]; exists {
		return DuplicateNameError("tool", st.tool.Name)
	}
	r.order = append(r.order, st.tool.Name)
	r.byName[st.tool.Name] = st
	r.notifyLocked()
	return nil
}

func (r *toolRegistry) remove(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := false
	for _, name := range names {
		if _, ok := r.byName[name]; ok {
			delete(r.byName, name)
			removed = true
		}
	}
	if removed {
		kept := r.order[:0:0]
		for _, n := range r.order {
			if _, ok := r.byName[n]; ok {
				kept = append(kept, n)
			}
		}
		r.order = kept
		r.notifyLocked()
	}
}

func (r *toolRegistry) removePlugin(plugin string) {
	r.mu.Lock()
	prefix := plugin + "."
	var drop []string
	for name := range r.byName {
		if hasPrefix(name, prefix) {
			drop = append(drop, name)
		}
	}
	r.mu.Unlock()
	if len(drop) > 0 {
		r.remove(drop...)
	}
}

func (r *toolRegistry) get(name string) (*serverTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.byName[name]
	return st, ok
}

func (r *toolRegistry) notifyLocked() {
	if r.onChange != nil {
		go r.onChange()
	}
}

// list returns a page of tools, sorted by name for a deterministic and
// resumable cursor ordering, plus the opaque cursor for the following page
// (empty if this was the last page).
func (r *toolRegistry) list(cursor string, pageSize int) ([]*Tool, string, error) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()
	sort.Strings(names)

	start, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if start > len(names) {
		start = len(names)
	}
	end := start + pageSize
	if end > len(names) {
		end = len(names)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	page := make([]*Tool, 0, end-start)
	for _, name := range names[start:end] {
		if st, ok := r.byName[name]; ok {
			page = append(page, st.tool)
		}
	}
	next := ""
	if end < len(names) {
		next = encodeCursor(end)
	}
	return page, next, nil
}

// encodeCursor/decodeCursor implement spec.md §4.3's "opaque pagination
// cursor": callers must treat the string as meaningless, but internally it
// is just a base64-encoded offset into the sorted name list.
func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("mcp: invalid cursor: %w", err)
	}
	n, err := strconv.Atoi(string(data))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("mcp: invalid cursor: %q", cursor)
	}
	return n, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// promptRegistry mirrors toolRegistry for prompts/list and prompts/get.
type promptRegistry struct {
	mu     sync.RWMutex
	byName map[string]*serverPrompt
	order  []string

	onChange func()
}

func newPromptRegistry() *promptRegistry {
	return &promptRegistry{byName: make(map[string]*serverPrompt)}
}

// add registers sp, failing with [DuplicateNameError] if a prompt by that
// name is already registered, per spec.md §4.4.
func (r *promptRegistry) add(sp *serverPrompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[sp.prompt.Name]; exists {
		return DuplicateNameError("prompt", sp.prompt.Name)
	}
	r.order = append(r.order, sp.prompt.Name)
	r.byName[sp.prompt.Name] = sp
	if r.onChange != nil {
		go r.onChange()
	}
	return nil
}

func (r *promptRegistry) get(name string) (*serverPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.byName[name]
	return sp, ok
}

func (r *promptRegistry) remove(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := false
	for _, name := range names {
		if _, ok := r.byName[name]; ok {
			delete(r.byName, name)
			removed = true
		}
	}
	if removed {
		kept := r.order[:0:0]
		for _, n := range r.order {
			if _, ok := r.byName[n]; ok {
				kept = append(kept, n)
			}
		}
		r.order = kept
		if r.onChange != nil {
			go r.onChange()
		}
	}
}

func (r *promptRegistry) list(cursor string, pageSize int) ([]*Prompt, string, error) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()
	sort.Strings(names)

	start, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if start > len(names) {
		start = len(names)
	}
	end := start + pageSize
	if end > len(names) {
		end = len(names)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	page := make([]*Prompt, 0, end-start)
	for _, name := range names[start:end] {
		if sp, ok := r.byName[name]; ok {
			page = append(page, sp.prompt)
		}
	}
	next := ""
	if end < len(names) {
		next = encodeCursor(end)
	}
	return page, next, nil
}

// resourceRegistry holds both concrete resources (exact URI match) and
// resource templates (matched via RFC 6570 templates, spec.md §4.3).
type resourceRegistry struct {
	mu        sync.RWMutex
	byURI     map[string]*serverResource
	uriOrder  []string
	templates []*serverResourceTemplate

	onChange func()
}

func newResourceRegistry() *resourceRegistry {
	return &resourceRegistry{byURI: make(map[string]*serverResource)}
}

// add registers sr, failing with [DuplicateNameError] if a resource under
// that URI is already registered, per spec.md §4.4.
func (r *resourceRegistry) add(sr *serverResource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byURI[sr.resource.URI]; exists {
		return DuplicateNameError("resource", sr.resource.URI)
	}
	r.uriOrder = append(r.uriOrder, sr.resource.URI)
	r.byURI[sr.resource.URI] = sr
	if r.onChange != nil {
		go r.onChange()
	}
	return nil
}

func (r *resourceRegistry) exists(uri string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byURI[uri]
	return ok
}

func (r *resourceRegistry) remove(uris ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := false
	for _, uri := range uris {
		if _, ok := r.byURI[uri]; ok {
			delete(r.byURI, uri)
			removed = true
		}
	}
	if removed {
		kept := r.uriOrder[:0:0]
		for _, u := range r.uriOrder {
			if _, ok := r.byURI[u]; ok {
				kept = append(kept, u)
			}
		}
		r.uriOrder = kept
		if r.onChange != nil {
			go r.onChange()
		}
	}
}

// addTemplate registers st, failing with [DuplicateNameError] if a template
// with the same URI template is already registered, per spec.md §4.4.
func (r *resourceRegistry) addTemplate(st *serverResourceTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.templates {
		if existing.template.URITemplate == st.template.URITemplate {
			return DuplicateNameError("resource template", st.template.URITemplate)
		}
	}
	r.templates = append(r.templates, st)
	if r.onChange != nil {
		go r.onChange()
	}
	return nil
}

// resolve finds the handler for uri, first by exact match, then by trying
// each registered template in registration order.
func (r *resourceRegistry) resolve(uri string) (*serverResource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sr, ok := r.byURI[uri]; ok {
		return sr, true
	}
	for _, t := range r.templates {
		if args, ok := t.match(uri); ok {
			return &serverResource{resource: &Resource{URI: uri}, handler: t.bind(args), template: t}, true
		}
	}
	return nil, false
}

func (r *resourceRegistry) list(cursor string, pageSize int) ([]*Resource, string, error) {
	r.mu.RLock()
	uris := make([]string, len(r.uriOrder))
	copy(uris, r.uriOrder)
	r.mu.RUnlock()
	sort.Strings(uris)

	start, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if start > len(uris) {
		start = len(uris)
	}
	end := start + pageSize
	if end > len(uris) {
		end = len(uris)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	page := make([]*Resource, 0, end-start)
	for _, uri := range uris[start:end] {
		if sr, ok := r.byURI[uri]; ok {
			page = append(page, sr.resource)
		}
	}
	next := ""
	if end < len(uris) {
		next = encodeCursor(end)
	}
	return page, next, nil
}

func (r *resourceRegistry) listTemplates(cursor string, pageSize int) ([]*ResourceTemplate, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if start > len(r.templates) {
		start = len(r.templates)
	}
	end := start + pageSize
	if end > len(r.templates) {
		end = len(r.templates)
	}
	page := make([]*ResourceTemplate, 0, end-start)
	for _, t := range r.templates[start:end] {
		page = append(page, t.template)
	}
	next := ""
	if end < len(r.templates) {
		next = encodeCursor(end)
	}
	return page, next, nil
}
