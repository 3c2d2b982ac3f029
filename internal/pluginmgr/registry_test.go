package pluginmgr

import (
	"context"
	"testing"

	"github.com/buildorch/buildorch/internal/executor"
)

type fakePlugin struct {
	name     string
	stages   []string
	priority int
	deps     []Dependency
}

func (f *fakePlugin) Name() string               { return f.name }
func (f *fakePlugin) Stages() []string            { return f.stages }
func (f *fakePlugin) Priority() int               { return f.priority }
func (f *fakePlugin) Dependencies() []Dependency  { return f.deps }
func (f *fakePlugin) Run(ctx context.Context, ex executor.Executor, stage string, args RunArgs) error {
	return nil
}

func TestTopoSortOrdersByDependency(t *testing.T) {
	a := &fakePlugin{name: "a", stages: []string{"build"}}
	b := &fakePlugin{name: "b", stages: []string{"build"}, deps: []Dependency{PluginDep("a")}}
	c := &fakePlugin{name: "c", stages: []string{"build"}, deps: []Dependency{PluginDep("b")}}

	ordered, err := topoSort([]Plugin{c, a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ordered) != 3 || ordered[0].Name() != "a" || ordered[1].Name() != "b" || ordered[2].Name() != "c" {
		names := make([]string, len(ordered))
		for i, p := range ordered {
			names[i] = p.Name()
		}
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestTopoSortDetectsCycle(t *testing.T) {
	a := &fakePlugin{name: "a", stages: []string{"build"}, deps: []Dependency{PluginDep("b")}}
	b := &fakePlugin{name: "b", stages: []string{"build"}, deps: []Dependency{PluginDep("a")}}

	_, err := topoSort([]Plugin{a, b}, nil)
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
}

func TestTopoSortRejectsMissingPluginDependency(t *testing.T) {
	a := &fakePlugin{name: "a", stages: []string{"build"}, deps: []Dependency{PluginDep("nonexistent")}}

	_, err := topoSort([]Plugin{a}, nil)
	if err == nil {
		t.Fatal("expected missing-dependency error, got nil")
	}
}

func TestTopoSortRejectsUnfetchedComponentDependency(t *testing.T) {
	a := &fakePlugin{name: "a", stages: []string{"build"}, deps: []Dependency{ComponentDep("widget")}}

	_, err := topoSort([]Plugin{a}, func(name string) bool { return false })
	if err == nil {
		t.Fatal("expected unfetched-component error, got nil")
	}
}

func TestTopoSortAllowsFetchedComponentDependency(t *testing.T) {
	a := &fakePlugin{name: "a", stages: []string{"build"}, deps: []Dependency{ComponentDep("widget")}}

	ordered, err := topoSort([]Plugin{a}, func(name string) bool { return name == "widget" })
	if err != nil {
		t.Fatal(err)
	}
	if len(ordered) != 1 || ordered[0].Name() != "a" {
		t.Fatalf("unexpected order: %v", ordered)
	}
}

func TestNormalizeNameStripsPrefixAndTranslatesDash(t *testing.T) {
	cases := map[string]string{
		"qubes-builder-rpm": "builder_rpm",
		"archlinux":          "archlinux",
		"foo-bar-baz":        "foo_bar_baz",
	}
	for in, want := range cases {
		if got := normalizeName(in); got != want {
			t.Fatalf("normalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
