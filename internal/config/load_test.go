package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadResolvesIncludesRelativeToIncludingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.yml"), "distributions:\n  - host-fc38\n")
	writeFile(t, filepath.Join(dir, "sub", "extra.yml"), "distributions:\n  - host-bookworm\n")
	writeFile(t, filepath.Join(dir, "main.yml"), "include:\n  - base.yml\n  - sub/extra.yml\ndistributions:\n  - vm-archlinux\n")

	doc, err := Load(filepath.Join(dir, "main.yml"))
	if err != nil {
		t.Fatal(err)
	}
	dists, _ := doc["distributions"].([]any)
	if len(dists) != 1 || dists[0] != "vm-archlinux" {
		t.Fatalf("expected main.yml's own distributions to win (plain key replaces), got %v", dists)
	}
}

func TestDeepMergeAppendKeyAccumulates(t *testing.T) {
	base := Raw{"distributions": []any{"host-fc38"}}
	override := Raw{"+distributions": []any{"host-bookworm"}}
	merged := deepMerge(base, override)
	dists, _ := merged["distributions"].([]any)
	if len(dists) != 2 || dists[0] != "host-fc38" || dists[1] != "host-bookworm" {
		t.Fatalf("expected accumulated list, got %v", dists)
	}
}

func TestDeepMergeMapsRecurse(t *testing.T) {
	base := Raw{"executor": Raw{"type": "local", "options": Raw{"timeout": 60}}}
	override := Raw{"executor": Raw{"options": Raw{"timeout": 120}}}
	merged := deepMerge(base, override)
	exec, _ := merged["executor"].(Raw)
	if exec["type"] != "local" {
		t.Fatalf("expected base key preserved, got %v", exec["type"])
	}
	opts, _ := exec["options"].(Raw)
	if opts["timeout"] != 120 {
		t.Fatalf("expected override to win on conflicting scalar, got %v", opts["timeout"])
	}
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yml"), "include:\n  - b.yml\n")
	writeFile(t, filepath.Join(dir, "b.yml"), "include:\n  - a.yml\n")

	if _, err := Load(filepath.Join(dir, "a.yml")); err == nil {
		t.Fatal("expected include cycle error")
	}
}
