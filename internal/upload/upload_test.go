package upload

import (
	"testing"

	"github.com/buildorch/buildorch/internal/pluginmgr"
)

func TestTargetStringWithAndWithoutUser(t *testing.T) {
	anon := Target{Host: "mirror.example.org", Path: "/srv/repo"}
	if got, want := anon.String(), "mirror.example.org:/srv/repo"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	named := Target{Host: "mirror.example.org", Path: "/srv/repo", User: "builder"}
	if got, want := named.String(), "builder@mirror.example.org:/srv/repo"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUploadDirsDefaultsToRepositoryRoot(t *testing.T) {
	dirs := uploadDirs(pluginmgr.RunArgs{Distribution: "fedora-38"})
	if len(dirs) != 1 || dirs[0] != "@REPOSITORY_DIR@/fedora-38" {
		t.Fatalf("unexpected default dirs: %+v", dirs)
	}
}

func TestUploadDirsHonorsConfiguredList(t *testing.T) {
	dirs := uploadDirs(pluginmgr.RunArgs{
		Distribution: "debian-12",
		Options:      map[string]any{"upload-dirs": []any{"vm-bookworm/pool", "vm-bookworm/dists/bookworm"}},
	})
	if len(dirs) != 2 || dirs[1] != "vm-bookworm/dists/bookworm" {
		t.Fatalf("unexpected configured dirs: %+v", dirs)
	}
}

func TestFactoryRegistersStageUpload(t *testing.T) {
	f := &factory{}
	instances, err := f.Instances(pluginmgr.RunArgs{})
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0].Stages()[0] != "upload" {
		t.Fatalf("unexpected instances: %+v", instances)
	}
}
