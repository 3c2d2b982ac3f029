package buildorch

import (
	"path/filepath"
	"testing"
)

func TestArtifactKeyFilename(t *testing.T) {
	k := ArtifactKey{Dir: "/tmp/x", Basename: "linux-kernel", Stage: "build"}
	want := filepath.Join("/tmp/x", "linux-kernel.build.yml")
	if k.Path() != want {
		t.Fatalf("got %q, want %q", k.Path(), want)
	}
}

func TestArtifactInfoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	k := ArtifactKey{Dir: dir, Basename: "linux-kernel", Stage: "build"}

	info := &ArtifactInfo{
		Stage:      "build",
		Component:  "linux-kernel",
		SourceHash: "sha512:deadbeef",
		Packages:   []string{"linux-kernel-6.9-1.fc38.x86_64.rpm"},
	}
	if err := k.Save(info); err != nil {
		t.Fatal(err)
	}

	loaded, err := k.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded record")
	}
	if loaded.Component != info.Component || loaded.SourceHash != info.SourceHash {
		t.Fatalf("got %+v, want %+v", loaded, info)
	}
	if len(loaded.Packages) != 1 || loaded.Packages[0] != info.Packages[0] {
		t.Fatalf("packages mismatch: %+v", loaded.Packages)
	}
}

func TestArtifactKeyLoadMissingIsNilNil(t *testing.T) {
	k := ArtifactKey{Dir: t.TempDir(), Basename: "nothing", Stage: "build"}
	info, err := k.Load()
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Fatalf("expected nil record for missing file, got %+v", info)
	}
}

func TestArtifactKeyDeleteIsIdempotent(t *testing.T) {
	k := ArtifactKey{Dir: t.TempDir(), Basename: "x", Stage: "fetch"}
	if err := k.Delete(); err != nil {
		t.Fatalf("deleting a nonexistent record should not error: %v", err)
	}
	if err := k.Save(&ArtifactInfo{Stage: "fetch"}); err != nil {
		t.Fatal(err)
	}
	if err := k.Delete(); err != nil {
		t.Fatal(err)
	}
	if err := k.Delete(); err != nil {
		t.Fatalf("second delete should still be a no-op: %v", err)
	}
}

func TestContentDigestDeterministic(t *testing.T) {
	info := &ArtifactInfo{Stage: "build", Component: "foo", SourceHash: "sha512:abc"}
	d1, err := ContentDigest(info)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := ContentDigest(info)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("expected identical digests for identical input, got %s vs %s", d1, d2)
	}
}
