// Package deb implements the build/sign/publish plugins for Debian-
// family distributions (Debian, Ubuntu): dpkg-source, pbuilder chroot
// builds, debsign, and reprepro metadata regen.
package deb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/pluginmgr"
	"github.com/buildorch/buildorch/internal/publish"
)

func init() {
	pluginmgr.Register(&factory{})
}

type factory struct{}

func (f *factory) Name() string { return "deb" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	builds, _ := args.Options["build"].([]string)
	if len(builds) == 0 {
		builds = []string{"debian"}
	}
	instances := make([]pluginmgr.Plugin, 0, len(builds))
	for _, b := range builds {
		instances = append(instances, &buildPlugin{buildDir: b, component: args.Component})
	}
	return instances, nil
}

type buildPlugin struct {
	buildDir  string
	component string
}

func (p *buildPlugin) Name() string     { return "deb" }
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
	sourceCmd := fmt.Sprintf("dpkg-source -b @SOURCES_DIR@/%s", p.buildDir)
	pbuilderCmd := fmt.Sprintf(
		"pbuilder build --basetgz @CACHE_DIR@/pbuilder/%s.tgz --buildresult @REPOSITORY_DIR@ @BUILDER_DIR@/build/*.dsc",
		args.Distribution)

	_, err := ex.Run(ctx, executor.RunOptions{
		CmdLines: []string{sourceCmd, pbuilderCmd},
		CopyOut: []executor.FileCopy{
			{Src: "@REPOSITORY_DIR@", Dest: "repository/" + args.Distribution},
		},
		NoFailCopyOutAllowedPatterns: []string{"*.log"},
	})
	if err != nil {
		return buildorch.NewBuildError("deb:"+p.buildDir, err)
	}
	return nil
}

// sign re-signs the built .changes file. --no-re-sign tells debsign
// to leave an existing valid signature by the same key alone instead
// of refusing outright, the idempotent-re-sign behavior a repeated
// "sign" stage run needs.
func (p *buildPlugin) sign(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	keyID, _ := args.Options["sign-key"].(string)
	if keyID == "" {
		return buildorch.NewSignError("deb:"+p.buildDir, fmt.Errorf("no sign-key configured"))
	}
	cmd := fmt.Sprintf("debsign --no-re-sign -k%s @REPOSITORY_DIR@/*.changes", keyID)
	if _, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{cmd}}); err != nil {
		return buildorch.NewSignError("deb:"+p.buildDir, err)
	}
	return nil
}

// publish enforces the repository allow-list and, for a stable-tier
// target, the min-age gate, before regenerating repo metadata and
// recording the publication in the target's publish-stage artifact
// record.
func (p *buildPlugin) publish(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	repo, _ := args.Options["repository"].(string)
	if repo == "" {
		repo = "current-testing"
	}
	if err := publish.CheckRepository(buildorch.FamilyDeb, repo); err != nil {
		return buildorch.NewPublishError("deb:"+p.buildDir, err)
	}

	key := publish.ArtifactKey(artifactsDir(args), args.Component, args.Distribution, basename(args.Component, p.buildDir))
	info, err := key.Load()
	if err != nil {
		return buildorch.NewPublishError("deb:"+p.buildDir, err)
	}
	var existing []buildorch.RepositoryPublishEntry
	if info != nil {
		existing = info.RepositoryPublish
	}

	ignoreMinAge, _ := args.Options["ignore-min-age"].(bool)
	minAgeDays, _ := args.Options["min-age-days"].(int)
	now := time.Now().UTC()
	if err := publish.CheckPromotion(repo, publish.RepoTier, existing, now, minAgeDays, ignoreMinAge); err != nil {
		return buildorch.NewPublishError("deb:"+p.buildDir, err)
	}

	cmd := fmt.Sprintf("reprepro --basedir @REPOSITORY_DIR@ includedeb %s @BUILDER_DIR@/build/*.changes", repo)
	if _, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{cmd}}); err != nil {
		return buildorch.NewPublishError("deb:"+p.buildDir, err)
	}

	if info == nil {
		info = &buildorch.ArtifactInfo{Stage: "publish", Component: args.Component, Distribution: args.Distribution}
	}
	info.RepositoryPublish = append(existing, buildorch.RepositoryPublishEntry{
		Name:      strings.ToLower(repo),
		Timestamp: now.Format(publish.TimestampLayout),
	})
	if err := key.Save(info); err != nil {
		return buildorch.NewPublishError("deb:"+p.buildDir, err)
	}
	return nil
}

func artifactsDir(args pluginmgr.RunArgs) string {
	if v, ok := args.Options["artifacts-dir"].(string); ok && v != "" {
		return v
	}
	return "artifacts"
}

func basename(component, path string) string {
	return component + "_" + strings.ReplaceAll(path, "/", "_")
}
