package rules

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry holds every loaded ruleset version. It is built once at startup
// and then only read; callers resolve a *Ruleset and pass it explicitly.
type Registry struct {
	byVersion      map[string]*Ruleset
	defaultVersion string
}

type rulesetFile struct {
	Default  string     `yaml:"default"`
	Rulesets []*Ruleset `yaml:"rulesets"`
}

// LoadFile reads a ruleset YAML resource.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rulesets: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a ruleset document.
func Parse(data []byte) (*Registry, error) {
	var f rulesetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rulesets: %w", err)
	}
	return NewRegistry(f.Default, f.Rulesets...)
}

// NewRegistry validates rulesets and indexes them by version. An empty
// defaultVersion selects the last ruleset given.
func NewRegistry(defaultVersion string, rulesets ...*Ruleset) (*Registry, error) {
	if len(rulesets) == 0 {
		return nil, fmt.Errorf("no rulesets defined")
	}
	r := &Registry{byVersion: make(map[string]*Ruleset, len(rulesets))}
	for _, rs := range rulesets {
		if rs == nil {
			continue
		}
		if err := rs.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byVersion[rs.Version]; dup {
			return nil, fmt.Errorf("duplicate ruleset version %q", rs.Version)
		}
		r.byVersion[rs.Version] = rs
		if defaultVersion == "" {
			r.defaultVersion = rs.Version
		}
	}
	if defaultVersion != "" {
		if _, ok := r.byVersion[defaultVersion]; !ok {
			return nil, fmt.Errorf("default ruleset %q is not defined", defaultVersion)
		}
		r.defaultVersion = defaultVersion
	}
	return r, nil
}

// Get returns a ruleset by version.
func (r *Registry) Get(version string) (*Ruleset, bool) {
	rs, ok := r.byVersion[version]
	return rs, ok
}

// Resolve returns the requested version, or the default when version is empty.
func (r *Registry) Resolve(version string) (*Ruleset, error) {
	if version == "" {
		version = r.defaultVersion
	}
	rs, ok := r.byVersion[version]
	if !ok {
		return nil, fmt.Errorf("unknown ruleset version %q", version)
	}
	return rs, nil
}

// WithDefault returns a copy of the registry with another default version.
func (r *Registry) WithDefault(version string) (*Registry, error) {
	if _, ok := r.byVersion[version]; !ok {
		return nil, fmt.Errorf("default ruleset %q is not defined", version)
	}
	return &Registry{byVersion: r.byVersion, defaultVersion: version}, nil
}

// Default returns the active ruleset.
func (r *Registry) Default() *Ruleset {
	return r.byVersion[r.defaultVersion]
}

// Versions lists loaded versions in sorted order.
func (r *Registry) Versions() []string {
	out := make([]string, 0, len(r.byVersion))
	for v := range r.byVersion {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
