package buildorch

import (
	"fmt"
	"strings"
	"sync"
)

// BuildTarget names one (Component, Distribution, stage) unit of work
// the pipeline schedules independently. Package sets carry a
// sub-target such as a spec file or PKGBUILD path, which may contain
// "/" and must be mangled before it can serve as a filesystem-safe
// artifact basename.
type BuildTarget struct {
	Component    *Component
	Distribution *Distribution
	Stage        string
	Path         string // e.g. "rpm_spec/foo.spec", "PKGBUILD"
}

// Mangle returns Path with every "/" replaced by "_", the scheme used
// throughout the Artifact Store and repository layout whenever a
// package-set-relative path must become a single path component.
func (b *BuildTarget) Mangle() string {
	return strings.ReplaceAll(b.Path, "/", "_")
}

// Basename is the artifact key stem for this target:
// "{component}_{mangled-path}".
func (b *BuildTarget) Basename() string {
	return fmt.Sprintf("%s_%s", b.Component.Name, b.Mangle())
}

// targetKey identifies a build target for uniqueness checking,
// independent of which stage it's scheduled for.
type targetKey struct {
	component    string
	distribution string
	path         string
}

// TargetSet enforces the uniqueness invariant: within a given
// (component, distribution), no two build targets may mangle to the
// same basename, since the Artifact Store's key scheme would
// otherwise silently collide two distinct package builds.
type TargetSet struct {
	mu      sync.Mutex
	mangled map[targetKey]string // mangled basename -> original path, for the collision message
}

func NewTargetSet() *TargetSet {
	return &TargetSet{mangled: make(map[targetKey]string)}
}

// Add registers a build target, returning a ConfigError if its
// mangled basename collides with one already registered for the same
// (component, distribution).
func (ts *TargetSet) Add(b *BuildTarget) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	key := targetKey{component: b.Component.Name, distribution: b.Distribution.Raw}
	mangledKey := key
	existing, ok := ts.mangled[targetKey{component: key.component, distribution: key.distribution, path: b.Mangle()}]
	if ok && existing != b.Path {
		return &ConfigError{Err: fmt.Errorf(
			"build target collision in %s/%s: %q and %q both mangle to %q",
			b.Component.Name, b.Distribution.Raw, existing, b.Path, b.Mangle())}
	}
	ts.mangled[targetKey{component: mangledKey.component, distribution: mangledKey.distribution, path: b.Mangle()}] = b.Path
	return nil
}
