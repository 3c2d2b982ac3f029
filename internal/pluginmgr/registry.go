package pluginmgr

import "fmt"

// ResolveStage returns every registered plugin that participates in
// stage, instantiated against args, ordered by Dependencies first and
// Priority/Name as the tie-break. Mirrors dalec's targets/register.go
// pattern of iterating a static registry rather than scanning a
// filesystem for loadable code.
//
// componentFetched reports whether a named source component has
// already been fetched to disk; it backs each plugin's *component*
// dependencies (spec §4.2's "unfetched component dependency raises a
// fatal error"). A nil componentFetched skips that check, which
// ResolveStage's only caller (internal/pipeline) never does outside
// of tests that don't exercise component dependencies.
func ResolveStage(stage string, args RunArgs, componentFetched func(name string) bool) ([]Plugin, error) {
	mu.Lock()
	snapshot := make([]Factory, 0, len(factories))
	for _, f := range factories {
		snapshot = append(snapshot, f)
	}
	mu.Unlock()

	var all []Plugin
	for _, f := range snapshot {
		instances, err := f.Instances(args)
		if err != nil {
			return nil, fmt.Errorf("pluginmgr: instantiate %q: %w", f.Name(), err)
		}
		for _, p := range instances {
			for _, s := range p.Stages() {
				if s == stage {
					all = append(all, p)
					break
				}
			}
		}
	}

	ordered, err := topoSort(all, componentFetched)
	if err != nil {
		return nil, err
	}
	return ordered, nil
}

// topoSort orders plugins by their declared plugin Dependencies,
// detecting cycles, and validates each declared component dependency
// against componentFetched along the way. Independent plugins (no
// edge between them) fall back to Priority/Name order, matching the
// DAG scheduling the stage pipeline needs without reusing a
// dependency-specific graph library the teacher's own graph.go pulled
// in but this module's go.mod doesn't carry.
func topoSort(plugins []Plugin, componentFetched func(name string) bool) ([]Plugin, error) {
	byName := make(map[string][]Plugin, len(plugins))
	for _, p := range plugins {
		byName[p.Name()] = append(byName[p.Name()], p)
	}

	sortPlugins(plugins)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plugins))
	var order []Plugin

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("pluginmgr: cyclic plugin dependency: %s -> %s", joinPath(path), name)
		}
		ps, ok := byName[name]
		if !ok {
			if _, registered := Lookup(name); !registered {
				return fmt.Errorf("pluginmgr: %s depends on missing plugin %q", joinPath(append(path, name)), name)
			}
			// Registered but not scheduled for this stage is not
			// itself an error; it may run in a different stage.
			return nil
		}
		color[name] = gray
		for _, p := range ps {
			for _, dep := range p.Dependencies() {
				if dep.Kind == DependencyComponent {
					if componentFetched != nil && !componentFetched(dep.Name) {
						return fmt.Errorf("pluginmgr: %s depends on unfetched component %q", name, dep.Name)
					}
					continue
				}
				if err := visit(dep.Name, append(path, name)); err != nil {
					return err
				}
			}
		}
		color[name] = black
		order = append(order, ps...)
		return nil
	}

	for _, p := range plugins {
		if err := visit(p.Name(), nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}
