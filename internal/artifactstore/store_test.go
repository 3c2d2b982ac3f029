package artifactstore

import (
	"testing"

	"github.com/buildorch/buildorch"
)

func TestShouldSkipMatchesOnSourceHash(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	comp := &buildorch.Component{Name: "linux-kernel", Version: "6", Release: "1"}
	target := &buildorch.BuildTarget{Component: comp, Distribution: nil, Path: "kernel.spec"}
	dist := &buildorch.Distribution{Raw: "host-fc38"}
	target.Distribution = dist

	key := store.ComponentKey(comp, dist, target, "build")
	if err := key.Save(&buildorch.ArtifactInfo{Stage: "build", SourceHash: "sha512:abc"}); err != nil {
		t.Fatal(err)
	}

	skip, err := store.ShouldSkip(key, "sha512:abc")
	if err != nil {
		t.Fatal(err)
	}
	if !skip {
		t.Fatal("expected skip=true for matching source hash")
	}

	skip, err = store.ShouldSkip(key, "sha512:changed")
	if err != nil {
		t.Fatal(err)
	}
	if skip {
		t.Fatal("expected skip=false for changed source hash")
	}
}

func TestShouldSkipFalseWhenNoRecord(t *testing.T) {
	store := New(t.TempDir())
	comp := &buildorch.Component{Name: "linux-kernel", Version: "6", Release: "1"}
	dist := &buildorch.Distribution{Raw: "host-fc38"}
	target := &buildorch.BuildTarget{Component: comp, Distribution: dist, Path: "kernel.spec"}

	key := store.ComponentKey(comp, dist, target, "build")
	skip, err := store.ShouldSkip(key, "sha512:abc")
	if err != nil {
		t.Fatal(err)
	}
	if skip {
		t.Fatal("expected skip=false when no record exists yet")
	}
}

func TestSkipMessageIsDeterministic(t *testing.T) {
	if SkipMessage("build", "foo_bar") != SkipMessage("build", "foo_bar") {
		t.Fatal("expected identical messages for identical inputs")
	}
}
