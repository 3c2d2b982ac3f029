// Package archlinux implements the build/sign/publish plugins for the
// archlinux distribution target, at the lighter depth spec.md
// documents for this family: PKGBUILD name resolution, makepkg, and a
// detached .sig rather than a full keyring-trust model.
package archlinux

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/pluginmgr"
	"github.com/buildorch/buildorch/internal/publish"
)

func init() {
	pluginmgr.Register(&factory{})
}

type factory struct{}

func (f *factory) Name() string { return "archlinux" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	return []pluginmgr.Plugin{&buildPlugin{component: args.Component}}, nil
}

type buildPlugin struct {
	component string
}

func (p *buildPlugin) Name() string     { return "archlinux" }
func (p *buildPlugin) Stages() []string { return []string{"build", "sign", "publish"} }
func (p *buildPlugin) Priority() int    { return 50 }

// Dependencies ties this build target's component to the fetch stage:
// the build stage cannot run until the component it builds has
// actually been fetched to disk.
func (p *buildPlugin) Dependencies() []pluginmgr.Dependency {
	return []pluginmgr.Dependency{pluginmgr.ComponentDep(p.component)}
}

func (p *buildPlugin) Run(ctx context.Context, ex executor.Executor, stage string, args pluginmgr.RunArgs) error {
	switch stage {
	case "build":
		return p.build(ctx, ex, args)
	case "sign":
		return p.sign(ctx, ex, args)
	case "publish":
		return p.publish(ctx, ex, args)
	}
	return nil
}

func (p *buildPlugin) build(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	_, err := ex.Run(ctx, executor.RunOptions{
		CmdLines: []string{"makepkg --syncdeps --noconfirm --force"},
		CopyOut: []executor.FileCopy{
			{Src: "@BUILDER_DIR@/*.pkg.tar.zst", Dest: "@REPOSITORY_DIR@"},
		},
	})
	if err != nil {
		return buildorch.NewBuildError("archlinux", err)
	}
	return nil
}

func (p *buildPlugin) sign(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	_, err := ex.Run(ctx, executor.RunOptions{
		CmdLines: []string{"gpg --detach-sign --no-armor @REPOSITORY_DIR@/*.pkg.tar.zst"},
	})
	if err != nil {
		return buildorch.NewSignError("archlinux", err)
	}
	return nil
}

// publish enforces the repository allow-list and, for a stable-tier
// target, the min-age gate, before hardlinking the signed package
// into the target repository and recording the publication in the
// component's publish-stage artifact record. Arch previously declared
// no "publish" stage at all, so nothing it built ever reached a repo.
func (p *buildPlugin) publish(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	repo, _ := args.Options["repository"].(string)
	if repo == "" {
		repo = "current-testing"
	}
	if err := publish.CheckRepository(buildorch.FamilyArch, repo); err != nil {
		return buildorch.NewPublishError("archlinux", err)
	}

	key := publish.ArtifactKey(artifactsDir(args), args.Component, args.Distribution, args.Component)
	info, err := key.Load()
	if err != nil {
		return buildorch.NewPublishError("archlinux", err)
	}
	var existing []buildorch.RepositoryPublishEntry
	if info != nil {
		existing = info.RepositoryPublish
	}

	ignoreMinAge, _ := args.Options["ignore-min-age"].(bool)
	minAgeDays, _ := args.Options["min-age-days"].(int)
	now := time.Now().UTC()
	if err := publish.CheckPromotion(repo, publish.RepoTier, existing, now, minAgeDays, ignoreMinAge); err != nil {
		return buildorch.NewPublishError("archlinux", err)
	}

	cmd := fmt.Sprintf("ln -f @REPOSITORY_DIR@/*.pkg.tar.zst @REPOSITORY_DIR@/%s/ && repo-add @REPOSITORY_DIR@/%s/*.db.tar.gz @REPOSITORY_DIR@/%s/*.pkg.tar.zst", repo, repo, repo)
	if _, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{cmd}}); err != nil {
		return buildorch.NewPublishError("archlinux", err)
	}

	if info == nil {
		info = &buildorch.ArtifactInfo{Stage: "publish", Component: args.Component, Distribution: args.Distribution}
	}
	info.RepositoryPublish = append(existing, buildorch.RepositoryPublishEntry{
		Name:      strings.ToLower(repo),
		Timestamp: now.Format(publish.TimestampLayout),
	})
	if err := key.Save(info); err != nil {
		return buildorch.NewPublishError("archlinux", err)
	}
	return nil
}

func artifactsDir(args pluginmgr.RunArgs) string {
	if v, ok := args.Options["artifacts-dir"].(string); ok && v != "" {
		return v
	}
	return "artifacts"
}

// ValidatePackage does a cheap structural check that path is a valid
// zstd-compressed archive before it's handed to the repository
// hardlink step — Arch packages in the pipeline's own repository
// cache are always .pkg.tar.zst, and a corrupt download/build output
// should fail fast here rather than surface as a cryptic pacman
// error downstream.
func ValidatePackage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archlinux: open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("archlinux: %s is not a valid zstd stream: %w", path, err)
	}
	defer dec.Close()

	buf := make([]byte, 512)
	if _, err := dec.Read(buf); err != nil {
		return fmt.Errorf("archlinux: %s failed zstd frame read: %w", path, err)
	}
	return nil
}
