package pluginmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// ManifestPlugin is the declared shape of an out-of-tree plugin: a
// directory on the plugin search path carrying a plugin.manifest.yml
// that names the plugin and its place in the stage graph, but no
// executable code loaded from disk at discovery time. Running an
// out-of-tree plugin means invoking it the same way every in-sandbox
// component plugin runs: as commands inside the executor, never as
// dynamically loaded Go code in this process.
type ManifestPlugin struct {
	Name         string               `yaml:"name"`
	Stages       []string             `yaml:"stages"`
	Priority     int                  `yaml:"priority"`
	Dependencies []ManifestDependency `yaml:"dependencies"`
	Entrypoint   string               `yaml:"entrypoint"`
}

// ManifestDependency is a manifest.yml dependency entry, tagged the
// same way a compiled-in Plugin's Dependencies() distinguishes a
// sibling plugin from a source component: an untyped list here would
// let topoSort's component-fetched check silently skip every
// out-of-tree dependency.
type ManifestDependency struct {
	Name string `yaml:"name"`
	// Kind is "plugin" (default) or "component".
	Kind string `yaml:"kind"`
}

// AsDependency converts a manifest entry to the Dependency topoSort
// consumes.
func (d ManifestDependency) AsDependency() Dependency {
	if d.Kind == "component" {
		return ComponentDep(d.Name)
	}
	return PluginDep(d.Name)
}

// AsDependencies converts m.Dependencies to []Dependency.
func (m *ManifestPlugin) AsDependencies() []Dependency {
	out := make([]Dependency, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		out = append(out, d.AsDependency())
	}
	return out
}

// LoadManifest reads plugin.manifest.yml from dir.
func LoadManifest(dir string) (*ManifestPlugin, error) {
	path := filepath.Join(dir, "plugin.manifest.yml")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pluginmgr: read %s: %w", path, err)
	}
	var m ManifestPlugin
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("pluginmgr: parse %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("pluginmgr: %s missing required 'name'", path)
	}
	m.Name = normalizeName(m.Name)
	return &m, nil
}

// DiscoverManifests walks searchPaths (non-recursively, one level)
// looking for plugin.manifest.yml files, the out-of-tree counterpart
// to the compiled-in Register() call.
func DiscoverManifests(searchPaths []string) ([]*ManifestPlugin, error) {
	var found []*ManifestPlugin
	for _, root := range searchPaths {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("pluginmgr: scan %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, e.Name())
			m, err := LoadManifest(dir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, err
			}
			found = append(found, m)
		}
	}
	return found, nil
}
