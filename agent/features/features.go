// Package features implements the in-process Feature flag registry: a
// single initialize-once structure loaded at startup (optionally from YAML),
// read concurrently by every subsystem without further mutation — the
// "global registries" pattern from spec.md §9.
package features

import (
	"sync"

	"github.com/coreagent/runtime/agent/core"
	"gopkg.in/yaml.v3"
)

// Set holds default feature definitions plus any override booleans applied
// on top, e.g. from a `[features]` config.toml section (spec.md §6). Reads
// take a shared read lock, so concurrent readers do not block one another;
// Set is intended to be built once at startup (RegisterDefault,
// LoadOverridesYAML) and then only read.
type Set struct {
	mu        sync.RWMutex
	defs      map[string]core.Feature
	overrides map[string]bool
}

// New builds an empty Set. Use RegisterDefault to seed built-in features
// before loading overrides.
func New() *Set {
	return &Set{
		defs:      map[string]core.Feature{},
		overrides: map[string]bool{},
	}
}

// RegisterDefault adds (or replaces) a feature definition.
func (s *Set) RegisterDefault(f core.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[f.Key] = f
}

// rawOverrides is the YAML shape of a `[features]` flat map of
// feature_key -> bool, as described in spec.md §6. Unknown feature keys are
// ignored, matching the documented config contract.
type rawOverrides map[string]bool

// LoadOverridesYAML decodes a YAML document into override booleans. Unknown
// keys (no matching RegisterDefault) are silently ignored, mirroring
// spec.md's "Unknown feature keys are ignored" contract.
func (s *Set) LoadOverridesYAML(data []byte) error {
	var raw rawOverrides
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range raw {
		if _, known := s.defs[k]; !known {
			continue
		}
		s.overrides[k] = v
	}
	return nil
}

// Enabled reports whether key is on. An unknown key is treated as disabled.
// A feature at StageRemoved is always disabled regardless of override.
func (s *Set) Enabled(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[key]
	if !ok {
		return false
	}
	if def.Stage == core.StageRemoved {
		return false
	}
	if v, overridden := s.overrides[key]; overridden {
		return v
	}
	return def.Stage == core.StageStable || def.Stage == core.StageBeta
}

// Lookup returns the known default definition for key, and whether it exists
// at all.
func (s *Set) Lookup(key string) (core.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.defs[key]
	return f, ok
}
