// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()

	writeManifest(t, filepath.Join(root, "good"), `{
		"name": "good",
		"version": "1.0.0",
		"entry_point": "good.so",
		"mcp_version": "2025-06-18",
		"capabilities": {"tools": true}
	}`)
	writeManifest(t, filepath.Join(root, "bad"), `{not json`)

	if err := os.Mkdir(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	manifests, failures := Discover(root)

	if len(manifests) != 1 || manifests[0].Name != "good" {
		t.Fatalf("Discover manifests = %+v, want one named %q", manifests, "good")
	}
	if len(failures) != 1 || failures[0].Dir != filepath.Join(root, "bad") {
		t.Fatalf("Discover failures = %+v, want one for %q", failures, "bad")
	}
	if got := manifests[0].entryPointPath(); got != filepath.Join(root, "good", "good.so") {
		t.Errorf("entryPointPath() = %q, want resolved against manifest dir", got)
	}
}

func TestDiscoverMissingRequiredFields(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "noname"), `{"entry_point": "x.so"}`)
	writeManifest(t, filepath.Join(root, "noentry"), `{"name": "x"}`)

	manifests, failures := Discover(root)
	if len(manifests) != 0 {
		t.Errorf("Discover manifests = %+v, want none", manifests)
	}
	if len(failures) != 2 {
		t.Fatalf("Discover failures = %+v, want 2", failures)
	}
}

func TestDiscoverYAMLFallback(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "yamlplugin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `
name: yamlplugin
version: 1.0.0
entry_point: yamlplugin.so
mcp_version: "2025-06-18"
capabilities:
  tools: true
config:
  greeting: hello
`
	if err := os.WriteFile(filepath.Join(dir, manifestFileYAML), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	manifests, failures := Discover(root)
	if len(failures) != 0 {
		t.Fatalf("Discover failures = %+v, want none", failures)
	}
	if len(manifests) != 1 || manifests[0].Name != "yamlplugin" {
		t.Fatalf("Discover manifests = %+v, want one named %q", manifests, "yamlplugin")
	}
	if cfg := manifestConfig(manifests[0]); string(cfg) != `{"greeting":"hello"}` {
		t.Errorf("manifestConfig = %s, want JSON-normalized config", cfg)
	}
}
