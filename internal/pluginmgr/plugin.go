// Package pluginmgr implements plugin discovery and instantiation for
// the stage pipeline: a static registry of compiled-in plugins plus
// declared-only out-of-tree plugin manifests, modeled on the
// teacher's targets/register.go init()-time registration pattern.
package pluginmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/buildorch/buildorch/internal/executor"
)

// Plugin is one unit of work a pipeline stage runs for a given
// (component, distribution) or template job.
type Plugin interface {
	// Name is the plugin's canonical name, already stripped of any
	// "qubes-" prefix and with "-" translated to "_" per the on-disk
	// component naming convention.
	Name() string

	// Stages lists the pipeline stages this plugin participates in
	// ("fetch", "prep", "build", "post", "verify", "sign", "publish",
	// "upload", "init-cache").
	Stages() []string

	// Priority orders plugins within the same stage; lower runs
	// first. Ties are broken by Name for determinism.
	Priority() int

	// Dependencies names the other plugins or components that must
	// already have run/been fetched before this one, each tagged so
	// the registry knows whether to resolve it against the sibling
	// plugin graph or the fetched-component set.
	Dependencies() []Dependency

	// Run executes this plugin's contribution to stage via ex.
	Run(ctx context.Context, ex executor.Executor, stage string, args RunArgs) error
}

// DependencyKind distinguishes a dependency on a sibling plugin
// (resolved against the stage's plugin graph) from a dependency on a
// source component (resolved against which components have already
// been fetched), per the plugin/component tagging spec §4.2 requires.
type DependencyKind int

const (
	DependencyPlugin DependencyKind = iota
	DependencyComponent
)

func (k DependencyKind) String() string {
	if k == DependencyComponent {
		return "component"
	}
	return "plugin"
}

// Dependency is one entry in a Plugin's Dependencies list.
type Dependency struct {
	Kind DependencyKind
	Name string
}

// PluginDep declares a dependency on a sibling plugin that must exist
// in the registry (it need not run in the same stage).
func PluginDep(name string) Dependency { return Dependency{Kind: DependencyPlugin, Name: name} }

// ComponentDep declares a dependency on a source component that must
// be present in config and already fetched to disk.
func ComponentDep(name string) Dependency { return Dependency{Kind: DependencyComponent, Name: name} }

// RunArgs carries the job-specific context a plugin needs, kept
// generic here so pluginmgr doesn't import the root package and
// create an import cycle; callers in internal/pipeline populate it
// from a *buildorch.Component / *buildorch.Distribution / *buildorch.Template.
type RunArgs struct {
	Component    string
	Distribution string
	Template     string
	Options      map[string]any
}

// Factory constructs Plugin instances for a given job; a single
// Factory may produce more than one Plugin instance when a component
// declares multiple build targets (e.g. several spec files).
type Factory interface {
	Name() string
	Instances(args RunArgs) ([]Plugin, error)
}

// normalizeName applies the qubes- prefix stripping and -/_
// translation rule shared by the registry and manifest loader, so a
// component declaring itself as a plugin under either spelling
// resolves to the same registry entry.
func normalizeName(name string) string {
	name = strings.TrimPrefix(name, "qubes-")
	return strings.ReplaceAll(name, "-", "_")
}

// sortPlugins orders plugins by Priority then Name, the deterministic
// tie-break the stage pipeline relies on when two plugins declare no
// dependency relationship between them.
func sortPlugins(plugins []Plugin) {
	sort.SliceStable(plugins, func(i, j int) bool {
		if plugins[i].Priority() != plugins[j].Priority() {
			return plugins[i].Priority() < plugins[j].Priority()
		}
		return plugins[i].Name() < plugins[j].Name()
	})
}

var (
	mu        sync.Mutex
	factories = map[string]Factory{}
)

// Register adds a compiled-in Factory to the static registry. Called
// from each built-in plugin package's init(), never at runtime after
// startup — the registry is fixed once main() begins, closing off the
// class of bugs where a plugin's own code could alter what plugins
// are available mid-run.
func Register(f Factory) {
	mu.Lock()
	defer mu.Unlock()
	name := normalizeName(f.Name())
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("pluginmgr: duplicate plugin registration for %q", name))
	}
	factories[name] = f
}

// Lookup returns the registered Factory for name, applying the same
// normalization rule used at registration time.
func Lookup(name string) (Factory, bool) {
	mu.Lock()
	defer mu.Unlock()
	f, ok := factories[normalizeName(name)]
	return f, ok
}

// Names returns every currently registered plugin name, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
