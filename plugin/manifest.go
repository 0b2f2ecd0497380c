// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package plugin implements the dynamic plugin host: discovery of plugin
// manifests, C-ABI-style loading via Go's plugin package, lifecycle
// management, hot reload, and fault isolation, per spec.md §4.6.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// manifestFile is the name every plugin directory must carry alongside its
// compiled entry point. manifestFileYAML is tried when manifest.json is
// absent, for plugin authors who'd rather hand-edit YAML.
const (
	manifestFile     = "manifest.json"
	manifestFileYAML = "manifest.yaml"
)

// Requirements bounds the host protocol versions a plugin supports.
type Requirements struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// Manifest describes a plugin before it is loaded: name, version, the path
// to its compiled entry point (relative to the manifest's own directory
// unless absolute), and the capability kinds it claims to export.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	EntryPoint   string          `json:"entry_point"`
	MCPVersion   string          `json:"mcp_version"`
	Capabilities map[string]bool `json:"capabilities"`
	Requirements Requirements    `json:"requirements"`
	Config       json.RawMessage `json:"config,omitempty"`

	dir string
}

// manifestConfig returns m's declared configuration, or nil if it has
// none, ready to hand to an [Instance]'s Configure hook.
func manifestConfig(m *Manifest) []byte {
	if len(m.Config) == 0 {
		return nil
	}
	return []byte(m.Config)
}

// entryPointPath resolves EntryPoint against the manifest's directory.
func (m *Manifest) entryPointPath() string {
	if filepath.IsAbs(m.EntryPoint) {
		return m.EntryPoint
	}
	return filepath.Join(m.dir, m.EntryPoint)
}

// manifestYAML mirrors Manifest field-for-field, except Config is decoded
// into a plain Go value first since yaml.v3 has no hook for json.RawMessage
// (that type only implements UnmarshalJSON, not UnmarshalYAML). The decoded
// value is re-marshaled to JSON so Manifest.Config stays a uniform
// json.RawMessage regardless of which file format it came from.
type manifestYAML struct {
	Name         string          `yaml:"name"`
	Version      string          `yaml:"version"`
	EntryPoint   string          `yaml:"entry_point"`
	MCPVersion   string          `yaml:"mcp_version"`
	Capabilities map[string]bool `yaml:"capabilities"`
	Requirements Requirements    `yaml:"requirements"`
	Config       any             `yaml:"config"`
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		data, err = os.ReadFile(yamlSibling(path))
		if err != nil {
			return nil, err
		}
		return parseManifestYAML(data, filepath.Dir(path))
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return finishManifest(&m, path)
}

// yamlSibling swaps manifest.json for manifest.yaml in the same directory.
func yamlSibling(jsonPath string) string {
	return filepath.Join(filepath.Dir(jsonPath), manifestFileYAML)
}

func parseManifestYAML(data []byte, dir string) (*Manifest, error) {
	var y manifestYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	m := &Manifest{
		Name:         y.Name,
		Version:      y.Version,
		EntryPoint:   y.EntryPoint,
		MCPVersion:   y.MCPVersion,
		Capabilities: y.Capabilities,
		Requirements: y.Requirements,
	}
	if y.Config != nil {
		raw, err := json.Marshal(y.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest config: %w", err)
		}
		m.Config = raw
	}
	return finishManifest(m, filepath.Join(dir, manifestFileYAML))
}

func finishManifest(m *Manifest, path string) (*Manifest, error) {
	if m.Name == "" {
		return nil, fmt.Errorf("manifest missing required field %q", "name")
	}
	if m.EntryPoint == "" {
		return nil, fmt.Errorf("manifest missing required field %q", "entry_point")
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// DiscoveryResult reports one manifest parse failure encountered during
// [Discover], keyed by the plugin directory it came from.
type DiscoveryResult struct {
	Dir string
	Err error
}

// Discover enumerates root's immediate subdirectories, reading a
// manifest.json (or, failing that, a manifest.yaml) from each. A
// subdirectory with neither file, or one whose manifest fails to parse, is
// skipped and reported in the returned failure list rather than aborting
// the scan, per spec.md §4.6 ("manifest parse failure logs and skips the
// plugin").
func Discover(root string) ([]*Manifest, []DiscoveryResult) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, []DiscoveryResult{{Dir: root, Err: err}}
	}

	var manifests []*Manifest
	var failures []DiscoveryResult
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		m, err := loadManifest(filepath.Join(dir, manifestFile))
		if err != nil {
			if os.IsNotExist(err) {
				continue // not every subdirectory need be a plugin
			}
			failures = append(failures, DiscoveryResult{Dir: dir, Err: err})
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, failures
}
