package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"
)

// Raw is the loosely-typed document tree produced by loading and
// merging YAML files, before it's decoded into a typed Config. Kept
// as map[string]any (rather than a typed struct) through the merge
// step because deep_merge's "+key" append convention and arbitrary
// per-distribution/per-component option bags don't have a fixed
// shape until merge is complete.
type Raw map[string]any

// Load reads path, recursively resolving any "include" list (paths
// relative to the including file) before applying deepMerge in
// declaration order, then returns the fully merged document.
func Load(path string) (Raw, error) {
	seen := map[string]bool{}
	return load(path, seen)
}

func load(path string, seen map[string]bool) (Raw, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	if seen[abs] {
		return nil, fmt.Errorf("config: include cycle at %s", abs)
	}
	seen[abs] = true

	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", abs, err)
	}
	var doc Raw
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", abs, err)
	}

	merged := Raw{}
	if includes, ok := doc["include"]; ok {
		paths, err := toStringList(includes)
		if err != nil {
			return nil, fmt.Errorf("config: %s: include: %w", abs, err)
		}
		dir := filepath.Dir(abs)
		for _, inc := range paths {
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(dir, incPath)
			}
			sub, err := load(incPath, seen)
			if err != nil {
				return nil, err
			}
			merged = deepMerge(merged, sub)
		}
	}
	delete(doc, "include")
	merged = deepMerge(merged, doc)
	return merged, nil
}

func toStringList(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string list entries, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// deepMerge combines override on top of base. Maps recurse key by
// key. Lists replace entirely unless override's key carries a
// leading "+", in which case override's list is appended to base's
// (the "+key" convention for distributions/templates/components/
// stages/plugins lists, letting an including file add entries without
// restating the whole list).
func deepMerge(base, override Raw) Raw {
	out := make(Raw, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		key, appendMode := splitAppendKey(k)
		if appendMode {
			out[key] = mergeAppend(out[key], v)
			continue
		}
		if baseVal, ok := out[key]; ok {
			out[key] = mergeValue(baseVal, v)
		} else {
			out[key] = v
		}
	}
	return out
}

func splitAppendKey(k string) (string, bool) {
	if len(k) > 0 && k[0] == '+' {
		return k[1:], true
	}
	return k, false
}

func mergeValue(base, override any) any {
	baseMap, baseIsMap := base.(Raw)
	if !baseIsMap {
		if m, ok := base.(map[string]any); ok {
			baseMap, baseIsMap = Raw(m), true
		}
	}
	overrideMap, overrideIsMap := override.(Raw)
	if !overrideIsMap {
		if m, ok := override.(map[string]any); ok {
			overrideMap, overrideIsMap = Raw(m), true
		}
	}
	if baseIsMap && overrideIsMap {
		return deepMerge(baseMap, overrideMap)
	}
	// Non-map values, and lists without a "+" prefix, replace outright.
	return override
}

func mergeAppend(base, override any) any {
	baseList, _ := base.([]any)
	overrideList, ok := override.([]any)
	if !ok {
		return override
	}
	return append(append([]any{}, baseList...), overrideList...)
}

// Keys returns m's keys sorted, used by callers that need
// deterministic iteration (e.g. rendering a resolved config back out
// for diagnostics).
func Keys(m Raw) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
