package config

// ExecutorOptions is the resolved set of executor settings for one
// job, after layering every applicable scope.
type ExecutorOptions struct {
	Kind    string
	Options map[string]any
}

// LayerExecutorOptions merges executor option maps in increasing
// precedence: default, then stage, then component, then distribution
// — later layers win key by key, matching the precedence order the
// original implementation's config resolver documents for
// "executor:" blocks. A layer may be nil when that scope declares no
// override.
func LayerExecutorOptions(layers ...Raw) ExecutorOptions {
	merged := Raw{}
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		merged = deepMerge(merged, layer)
	}

	kind, _ := merged["type"].(string)
	if kind == "" {
		kind = "local"
	}
	opts, _ := merged["options"].(Raw)
	if opts == nil {
		if m, ok := merged["options"].(map[string]any); ok {
			opts = Raw(m)
		}
	}
	return ExecutorOptions{Kind: kind, Options: map[string]any(opts)}
}
