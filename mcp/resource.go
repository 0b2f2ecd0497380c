// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// A ResourceHandler reads a resource, called when a client sends
// resources/read. If it cannot find the resource it should return the
// result of [ResourceNotFoundError].
type ResourceHandler func(ctx context.Context, req *ReadResourceRequest) (*ReadResourceResult, error)

// A serverResource is a concrete resource (or, if template is set, a
// resolved match against a registered [ResourceTemplate]) bound to its handler.
type serverResource struct {
	resource *Resource
	handler  ResourceHandler
	template *serverResourceTemplate
}

func newServerResource(r *Resource, h ResourceHandler) *serverResource {
	return &serverResource{resource: r, handler: h}
}

// templateHandler is implemented by handlers that are parameterized by the
// variables bound from an RFC 6570 URI template match.
type templateHandler func(vars map[string]string) ResourceHandler

// serverResourceTemplate associates a [ResourceTemplate] with a compiled
// [uritemplate.Template] for matching incoming resources/read URIs, and a
// handler factory that receives the matched variables.
type serverResourceTemplate struct {
	template *ResourceTemplate
	compiled *uritemplate.Template
	make     templateHandler
}

func newServerResourceTemplate(rt *ResourceTemplate, h ResourceHandler) (*serverResourceTemplate, error) {
	compiled, err := uritemplate.New(rt.URITemplate)
	if err != nil {
		return nil, fmt.Errorf("mcp: invalid resource template %q: %w", rt.URITemplate, err)
	}
	return &serverResourceTemplate{
		template: rt,
		compiled: compiled,
		make:     func(map[string]string) ResourceHandler { return h },
	}, nil
}

// match reports whether uri matches t's template, returning the bound
// variables on success.
func (t *serverResourceTemplate) match(uri string) (map[string]string, bool) {
	values, ok := t.compiled.Match(uri)
	if !ok {
		return nil, false
	}
	vars := make(map[string]string, len(values))
	for name, v := range values {
		vars[name] = v.String()
	}
	return vars, true
}

// bind returns the handler to invoke for a URI that matched with the given
// variables.
func (t *serverResourceTemplate) bind(vars map[string]string) ResourceHandler {
	return t.make(vars)
}

// FileResourceHandler returns a [ResourceHandler] that serves files rooted
// at dir, rejecting any request whose resolved path escapes dir. URIs must
// use the "file" scheme; the path component (after stripping a leading
// "file://") is joined to dir.
func FileResourceHandler(dir string) ResourceHandler {
	return func(ctx context.Context, req *ReadResourceRequest) (*ReadResourceResult, error) {
		rel := strings.TrimPrefix(req.Params.URI, "file://")
		rel = strings.TrimPrefix(rel, "/")
		clean := filepath.Clean(rel)
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, ResourceNotFoundError(req.Params.URI)
		}
		full := filepath.Join(dir, clean)
		if !strings.HasPrefix(full, filepath.Clean(dir)+string(filepath.Separator)) && full != filepath.Clean(dir) {
			return nil, ResourceNotFoundError(req.Params.URI)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ResourceNotFoundError(req.Params.URI)
			}
			return nil, err
		}
		return &ReadResourceResult{
			Contents: []*ResourceContents{{URI: req.Params.URI, Text: string(data)}},
		}, nil
	}
}
