// Package rpm implements the build/sign/publish plugins for RPM-family
// distributions (Fedora, CentOS Stream): spec resolution, mock
// chroot builds, rpm --addsign, and createrepo_c metadata regen.
package rpm

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

func (f *factory) Name() string { return "rpm" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	specs, _ := args.Options["spec"].([]string)
	if len(specs) == 0 {
		specs = []string{fmt.Sprintf("rpm_spec/%s.spec", args.Component)}
	}
	instances := make([]pluginmgr.Plugin, 0, len(specs))
	for _, spec := range specs {
		instances = append(instances, &buildPlugin{spec: spec, component: args.Component})
	}
	return instances, nil
}

// buildPlugin drives one spec file through mock, mirroring the
// upstream plugin's one-build-target-per-spec-file model.
type buildPlugin struct {
	spec      string
	component string
}

func (p *buildPlugin) Name() string     { return "rpm" }
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
	srpmCmd := fmt.Sprintf(
		"rpmbuild --define '_topdir @BUILDER_DIR@/rpmbuild' -bs @SOURCES_DIR@/%s", p.spec)
	mockCmd := fmt.Sprintf(
		"mock --root @PLUGINS_DIR@/rpm/mock/%s.cfg --resultdir @REPOSITORY_DIR@ --rebuild @BUILDER_DIR@/rpmbuild/SRPMS/*.src.rpm",
		args.Distribution)

	_, err := ex.Run(ctx, executor.RunOptions{
		CmdLines: []string{srpmCmd, mockCmd},
		CopyOut: []executor.FileCopy{
			{Src: "@REPOSITORY_DIR@", Dest: "repository/" + args.Distribution},
		},
		NoFailCopyOutAllowedPatterns: []string{"*.log"},
	})
	if err != nil {
		return newBuildError(p.spec, err)
	}
	return nil
}

// sign re-signs every built RPM, idempotently: a throwaway RPM DB is
// created first so --addsign operates against a scratch database
// rather than the system one, which otherwise refuses to re-sign a
// package that already carries a (possibly stale) signature.
func (p *buildPlugin) sign(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	keyID, _ := args.Options["sign-key"].(string)
	if keyID == "" {
		return newSignError(p.spec, fmt.Errorf("no sign-key configured"))
	}
	initDBCmd := "rm -rf @BUILDER_DIR@/rpmdb && rpm --dbpath @BUILDER_DIR@/rpmdb --initdb"
	signCmd := fmt.Sprintf(
		"rpm --dbpath @BUILDER_DIR@/rpmdb --define '_gpg_name %s' --addsign @REPOSITORY_DIR@/*.rpm", keyID)
	_, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{initDBCmd, signCmd}})
	if err != nil {
		return newSignError(p.spec, err)
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
	if err := publish.CheckRepository(buildorch.FamilyRPM, repo); err != nil {
		return newPublishError(p.spec, err)
	}

	key := publish.ArtifactKey(artifactsDir(args), args.Component, args.Distribution, basename(args.Component, p.spec))
	info, err := key.Load()
	if err != nil {
		return newPublishError(p.spec, err)
	}
	var existing []buildorch.RepositoryPublishEntry
	if info != nil {
		existing = info.RepositoryPublish
	}

	ignoreMinAge, _ := args.Options["ignore-min-age"].(bool)
	minAgeDays, _ := args.Options["min-age-days"].(int)
	now := time.Now().UTC()
	if err := publish.CheckPromotion(repo, publish.RepoTier, existing, now, minAgeDays, ignoreMinAge); err != nil {
		return newPublishError(p.spec, err)
	}

	cmd := fmt.Sprintf("createrepo_c --update @REPOSITORY_DIR@/%s", repo)
	if _, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{cmd}}); err != nil {
		return newPublishError(p.spec, err)
	}

	if info == nil {
		info = &buildorch.ArtifactInfo{Stage: "publish", Component: args.Component, Distribution: args.Distribution}
	}
	info.RepositoryPublish = append(existing, buildorch.RepositoryPublishEntry{
		Name:      strings.ToLower(repo),
		Timestamp: now.Format(publish.TimestampLayout),
	})
	if err := key.Save(info); err != nil {
		return newPublishError(p.spec, err)
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
