package buildorch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestComponentVerRel(t *testing.T) {
	c := &Component{Version: "6.9", Release: "1"}
	if c.VerRel() != "6.9-1" {
		t.Fatalf("got %q", c.VerRel())
	}
	c.Devel = "3"
	if c.VerRel() != "6.9-1.3" {
		t.Fatalf("got %q", c.VerRel())
	}
}

func TestResolveVersionFromFiles(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "version"), "6.9\n")
	mustWrite(t, filepath.Join(dir, "rel"), "2\n")

	c := &Component{Name: "kernel", SourceDir: dir}
	if err := c.ResolveVersion(); err != nil {
		t.Fatal(err)
	}
	if c.Version != "6.9" || c.Release != "2" {
		t.Fatalf("got version=%q release=%q", c.Version, c.Release)
	}
}

func TestResolveVersionDefaultsRelease(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "version"), "1.0\n")

	c := &Component{Name: "tool", SourceDir: dir}
	if err := c.ResolveVersion(); err != nil {
		t.Fatal(err)
	}
	if c.Release != "1" {
		t.Fatalf("expected default release \"1\", got %q", c.Release)
	}
}

func TestResolveVersionRejectsMalformedVersion(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "version"), "not-a-version\n")

	c := &Component{Name: "tool", SourceDir: dir}
	if err := c.ResolveVersion(); err == nil {
		t.Fatal("expected rejection of malformed version")
	}
}

func TestIncrementDevelStartsAtOneAndPersists(t *testing.T) {
	dir := t.TempDir()
	c := &Component{Name: "tool", DevelPath: filepath.Join(dir, "devel")}

	if err := c.IncrementDevel(); err != nil {
		t.Fatal(err)
	}
	if c.Devel != "1" {
		t.Fatalf("expected devel=1 on first increment, got %q", c.Devel)
	}

	if err := c.IncrementDevel(); err != nil {
		t.Fatal(err)
	}
	if c.Devel != "2" {
		t.Fatalf("expected devel=2 on second increment, got %q", c.Devel)
	}
}

func TestSourceHashStableAcrossMtimeAndOrder(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	mustWrite(t, filepath.Join(dirA, "a.txt"), "alpha")
	mustWrite(t, filepath.Join(dirA, "b.txt"), "beta")

	// Write in reverse order with different mtimes in dirB; the
	// resulting digest must still match dirA's since content, not
	// directory-entry order or mtime, determines the hash.
	mustWrite(t, filepath.Join(dirB, "b.txt"), "beta")
	time.Sleep(10 * time.Millisecond)
	mustWrite(t, filepath.Join(dirA, "a.txt"), "alpha")
	mustWrite(t, filepath.Join(dirB, "a.txt"), "alpha")

	ca := &Component{Name: "c", SourceDir: dirA}
	cb := &Component{Name: "c", SourceDir: dirB}

	ha, err := ca.SourceHash()
	if err != nil {
		t.Fatal(err)
	}
	hb, err := cb.SourceHash()
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected identical digests, got %s vs %s", ha, hb)
	}
}

func TestSourceHashRespectsGitignore(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "keep.txt"), "keep")
	mustWrite(t, filepath.Join(dir, "ignored.log"), "noise")
	mustWrite(t, filepath.Join(dir, ".gitignore"), "*.log\n")

	c := &Component{Name: "c", SourceDir: dir}
	h1, err := c.SourceHash()
	if err != nil {
		t.Fatal(err)
	}

	mustWrite(t, filepath.Join(dir, "ignored.log"), "different noise entirely")
	h2, err := c.SourceHash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("expected ignored file changes not to affect the source hash")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
