// Package template implements the TemplateVM build plugin: turning a
// Distribution + flavor into a bootable qube image via the
// distro-appropriate chroot (seeded by internal/cache's init-cache
// stage) and a postinstall script. Stamp assigns a Template's
// YYYYMMDDHHMM build timestamp; the plugin's build, sign and publish
// methods do not call it and record no build timestamp.
package template

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

func (f *factory) Name() string { return "template" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	return []pluginmgr.Plugin{&buildPlugin{}}, nil
}

type buildPlugin struct{}

func (p *buildPlugin) Name() string           { return "template" }
func (p *buildPlugin) Stages() []string       { return []string{"build", "sign", "publish"} }
func (p *buildPlugin) Priority() int          { return 50 }
func (p *buildPlugin) Dependencies() []pluginmgr.Dependency {
	return []pluginmgr.Dependency{pluginmgr.PluginDep("init-cache")}
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

// Stamp assigns tmpl's build timestamp from now if it hasn't been
// assigned yet, the one point in the stage sequence where a fresh
// timestamp may be minted.
func Stamp(tmpl *buildorch.Template, now time.Time) error {
	return tmpl.AssignTimestamp(now.UTC().Format("200601021504"))
}

func (p *buildPlugin) build(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	flavor, _ := args.Options["flavor"].(string)
	cmd := fmt.Sprintf(
		"qubes-template-builder --dist %s --flavor %s --chroot @CACHE_DIR@/chroot/%s --out @BUILDER_DIR@/template.tar.gz",
		args.Distribution, flavor, args.Distribution)
	_, err := ex.Run(ctx, executor.RunOptions{
		CmdLines: []string{cmd},
		CopyOut: []executor.FileCopy{
			{Src: "@BUILDER_DIR@/template.tar.gz", Dest: "@REPOSITORY_DIR@/template.tar.gz"},
		},
	})
	if err != nil {
		return buildorch.NewBuildError("template:"+args.Template, err)
	}
	return nil
}

func (p *buildPlugin) sign(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	keyID, _ := args.Options["sign-key"].(string)
	if keyID == "" {
		return buildorch.NewSignError("template:"+args.Template, fmt.Errorf("no sign-key configured"))
	}
	cmd := fmt.Sprintf("gpg --batch --yes --local-user %s --detach-sign --armor @REPOSITORY_DIR@/template.tar.gz", keyID)
	if _, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{cmd}}); err != nil {
		return buildorch.NewSignError("template:"+args.Template, err)
	}
	return nil
}

// publish enforces the template allow-list and, for a stable-tier
// target, the min-age gate, before regenerating the template repo
// and recording the publication in the template's publish-stage
// artifact record. Mirrors the gating distro/rpm, distro/deb and
// distro/archlinux's publish methods apply to package repositories.
func (p *buildPlugin) publish(ctx context.Context, ex executor.Executor, args pluginmgr.RunArgs) error {
	repo, _ := args.Options["repository"].(string)
	if repo == "" {
		repo = "templates-itl-testing"
	}
	if err := publish.CheckTemplateRepository(repo); err != nil {
		return buildorch.NewPublishError("template:"+args.Template, err)
	}

	key := publish.ArtifactKey(artifactsDir(args), args.Template, args.Distribution, args.Template)
	info, err := key.Load()
	if err != nil {
		return buildorch.NewPublishError("template:"+args.Template, err)
	}
	var existing []buildorch.RepositoryPublishEntry
	if info != nil {
		existing = info.RepositoryPublish
	}

	ignoreMinAge, _ := args.Options["ignore-min-age"].(bool)
	minAgeDays, _ := args.Options["min-age-days"].(int)
	now := time.Now().UTC()
	if err := publish.CheckPromotion(repo, publish.TemplateRepoTier, existing, now, minAgeDays, ignoreMinAge); err != nil {
		return buildorch.NewPublishError("template:"+args.Template, err)
	}

	cmd := fmt.Sprintf("qubes-template-repo-update --repo %s @REPOSITORY_DIR@/template.tar.gz", repo)
	if _, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{cmd}}); err != nil {
		return buildorch.NewPublishError("template:"+args.Template, err)
	}

	if info == nil {
		info = &buildorch.ArtifactInfo{Stage: "publish", Template: args.Template, Distribution: args.Distribution}
	}
	info.RepositoryPublish = append(existing, buildorch.RepositoryPublishEntry{
		Name:      strings.ToLower(repo),
		Timestamp: now.Format(publish.TimestampLayout),
	})
	if err := key.Save(info); err != nil {
		return buildorch.NewPublishError("template:"+args.Template, err)
	}
	return nil
}

func artifactsDir(args pluginmgr.RunArgs) string {
	if v, ok := args.Options["artifacts-dir"].(string); ok && v != "" {
		return v
	}
	return "artifacts"
}
