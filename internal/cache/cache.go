// Package cache implements the init-cache stage: seeding a
// distribution's chroot build root once, so later build-stage runs
// mount and reuse it instead of re-bootstrapping mock/pbuilder's root
// tarball on every invocation. This stage is named in the distilled
// spec but its contract isn't described there; it's supplemented here
// from the original implementation's chroot plugin family.
package cache

import (
	"context"
	"fmt"
	"os"

	"github.com/containerd/containerd"
	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/pluginmgr"
)

func init() {
	pluginmgr.Register(&factory{})
}

type factory struct{}

func (f *factory) Name() string { return "init-cache" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	return []pluginmgr.Plugin{&seedPlugin{}}, nil
}

// seedPlugin runs inside the stage pipeline like any other plugin,
// invoking the distro-appropriate bootstrap command through the job's
// Executor; Seeder (below) is the containerd-backed alternative used
// when a prebuilt OCI chroot-seed image is configured instead of a
// from-scratch bootstrap command.
type seedPlugin struct{}

func (p *seedPlugin) Name() string           { return "init-cache" }
func (p *seedPlugin) Stages() []string       { return []string{"init-cache"} }
func (p *seedPlugin) Priority() int          { return 0 }
func (p *seedPlugin) Dependencies() []pluginmgr.Dependency { return nil }

func (p *seedPlugin) Run(ctx context.Context, ex executor.Executor, stage string, args pluginmgr.RunArgs) error {
	bootstrap, _ := args.Options["bootstrap-command"].(string)
	if bootstrap == "" {
		return nil
	}
	_, err := ex.Run(ctx, executor.RunOptions{
		CmdLines: []string{bootstrap},
		CopyOut: []executor.FileCopy{
			{Src: "@CACHE_DIR@/chroot/" + args.Distribution, Dest: "cache/chroot/" + args.Distribution},
		},
	})
	if err != nil {
		return buildorch.NewChrootError(args.Distribution, err)
	}
	return nil
}

// Seeder pulls a chroot-seed image with containerd and unpacks it
// into containerd's snapshotter, marking each seeded image by an
// empty directory cacheDir/chroot/<distribution>/<digest> keyed by
// content digest.
type Seeder struct {
	Client   *containerd.Client
	CacheDir string
}

func NewSeeder(client *containerd.Client, cacheDir string) *Seeder {
	return &Seeder{Client: client, CacheDir: cacheDir}
}

// SeedKey identifies one cached chroot by distribution and the
// content digest of the seed image that produced it.
type SeedKey struct {
	Distribution string
	Digest       digest.Digest
}

func (k SeedKey) Dir(root string) string {
	return fmt.Sprintf("%s/chroot/%s/%s", root, k.Distribution, k.Digest.Encoded())
}

// EnsureSeeded pulls and unpacks ref through containerd on every
// call and returns the resulting SeedKey. The root filesystem is
// unpacked into containerd's snapshotter, not into the cache
// directory: cacheDir/chroot/<distribution>/<digest> is only created,
// empty, and when it already exists the explicit Unpack step is
// skipped.
func (s *Seeder) EnsureSeeded(ctx context.Context, distribution, ref string) (SeedKey, error) {
	img, err := s.Client.Pull(ctx, ref, containerd.WithPullUnpack)
	if err != nil {
		return SeedKey{}, &buildorch.DistributionError{Distribution: distribution, Err: fmt.Errorf("pull chroot seed %s: %w", ref, err)}
	}

	target := img.Target()
	if target.MediaType != ocispec.MediaTypeImageManifest && target.MediaType != ocispec.MediaTypeImageIndex {
		return SeedKey{}, &buildorch.DistributionError{Distribution: distribution, Err: fmt.Errorf("chroot seed %s has unexpected media type %s", ref, target.MediaType)}
	}
	key := SeedKey{Distribution: distribution, Digest: target.Digest}

	dir := key.Dir(s.CacheDir)
	if _, err := os.Stat(dir); err == nil {
		return key, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SeedKey{}, fmt.Errorf("cache: create %s: %w", dir, err)
	}
	if err := img.Unpack(ctx, ""); err != nil {
		return SeedKey{}, fmt.Errorf("cache: unpack chroot seed for %s: %w", distribution, err)
	}
	return key, nil
}
