// Package source implements the fetch-stage plugin: cloning or
// updating a component's Git checkout, authenticating the tip of its
// history against a maintainer keyring, downloading and verifying any
// declared distfiles, and archiving any declared submodules — the
// stage every other stage's inputs depend on.
//
// Grounded on the original implementation's fetch plugin
// (qubesbuilder/plugins/fetch), reshaped into the house style used
// throughout internal/distro: a plugin builds shell command lines and
// runs them through an Executor rather than reimplementing git/curl/
// gpg logic natively in Go. The one departure is signature-threshold
// checking, which needs to parse command output, so that piece runs
// directly against the host-side checkout after CopyOut, the same way
// component.go's HeadCommit/VersionTagsAtHead already do.
package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/artifactstore"
	"github.com/buildorch/buildorch/internal/config"
	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/logging"
	"github.com/buildorch/buildorch/internal/pluginmgr"
)

func init() {
	pluginmgr.Register(&factory{})
}

type factory struct{}

func (f *factory) Name() string { return "source" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	return []pluginmgr.Plugin{&fetchPlugin{}}, nil
}

// fetchPlugin runs once per component, independent of distribution
// (it populates the "nodist" artifact key every later stage reads
// the recorded source-hash from).
type fetchPlugin struct{}

func (p *fetchPlugin) Name() string           { return "source" }
func (p *fetchPlugin) Stages() []string       { return []string{"fetch"} }
func (p *fetchPlugin) Priority() int          { return 0 }
func (p *fetchPlugin) Dependencies() []pluginmgr.Dependency { return nil }

func (p *fetchPlugin) Run(ctx context.Context, ex executor.Executor, stage string, args pluginmgr.RunArgs) error {
	if stage != "fetch" {
		return nil
	}

	cfg, err := optionsToConfig(args)
	if err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}
	log := logging.Scope(nil).WithField("component", args.Component)

	if err := p.cloneOrUpdate(ctx, ex, cfg); err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}

	hostDir := filepath.Join(cfg.sourcesHostDir, args.Component)
	if err := ex.CopyOut(ctx, []executor.FileCopy{
		{Src: "@SOURCES_DIR@/" + args.Component, Dest: hostDir},
	}, nil); err != nil {
		return buildorch.NewSourceError(args.Component, fmt.Errorf("copy out checkout: %w", err))
	}

	component := &buildorch.Component{
		Name:                   args.Component,
		SourceDir:              hostDir,
		URL:                    cfg.url,
		Branch:                 cfg.branch,
		Maintainers:            cfg.maintainers,
		Verification:           cfg.verification,
		FetchOnlyVersionTags:   cfg.fetchOnlyVersionTags,
		MinDistinctMaintainers: cfg.minDistinctMaintainers,
	}

	if err := verifyCheckout(component, cfg.keyringDir); err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}

	if err := component.ResolveVersion(); err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}

	if qbRaw, err := os.ReadFile(filepath.Join(hostDir, ".qubesbuilder")); err == nil {
		manifest, err := config.ParseManifest(qbRaw, component.Version, component.Release)
		if err != nil {
			return buildorch.NewSourceError(args.Component, err)
		}
		cfg.files = manifest.Source.Files
		cfg.modules = manifest.Source.Modules
	}

	headCommit, err := component.HeadCommit()
	if err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}
	versionTags, err := component.VersionTagsAtHead()
	if err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}

	sourceHash, err := component.SourceHash()
	if err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}

	info := &buildorch.ArtifactInfo{
		Stage:          "fetch",
		Component:      args.Component,
		SourceHash:     sourceHash,
		GitCommitHash:  headCommit,
		GitVersionTags: versionTags,
	}

	if len(cfg.files) > 0 {
		if err := p.fetchFiles(ctx, ex, cfg); err != nil {
			return buildorch.NewSourceError(args.Component, err)
		}
	}

	if len(cfg.modules) > 0 {
		records, err := p.archiveModules(ctx, ex, cfg)
		if err != nil {
			return buildorch.NewSourceError(args.Component, err)
		}
		info.Modules = records
	}

	store := artifactstore.New(cfg.artifactsDir)
	key := store.ComponentKey(component, nil, nil, "fetch")
	skip, err := store.ShouldSkip(key, sourceHash.String())
	if err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}
	if skip {
		log.Info(artifactstore.SkipMessage("fetch", args.Component))
		return nil
	}
	if err := key.Save(info); err != nil {
		return buildorch.NewSourceError(args.Component, err)
	}
	log.WithField("version", component.VerRel()).Info("fetch complete")
	return nil
}

// cloneOrUpdate builds and runs the clone/update command line inside
// the sandbox. A plain "git clone" is used the first time; a fetch +
// hard-reset brings an existing checkout up to date without ever
// merging local sandbox state into the recorded history.
func (p *fetchPlugin) cloneOrUpdate(ctx context.Context, ex executor.Executor, cfg *fetchConfig) error {
	name := cfg.component
	cloneCmd := fmt.Sprintf(
		"test -d @SOURCES_DIR@/%s/.git || git clone --branch %s %s @SOURCES_DIR@/%s",
		name, shellQuote(cfg.branch), shellQuote(cfg.url), name)
	updateCmd := fmt.Sprintf(
		"! test -d @SOURCES_DIR@/%s/.git || (git -C @SOURCES_DIR@/%s fetch origin %s && git -C @SOURCES_DIR@/%s checkout -f FETCH_HEAD)",
		name, name, shellQuote(cfg.branch), name)

	_, err := ex.Run(ctx, executor.RunOptions{
		CmdLines: []string{cloneCmd, updateCmd},
	})
	return err
}

// fetchFiles downloads, checksums, and optionally signature-verifies
// and uncompresses each declared distfile, entirely inside the
// sandbox so network access stays subject to whatever policy the
// sandbox variant enforces.
func (p *fetchPlugin) fetchFiles(ctx context.Context, ex executor.Executor, cfg *fetchConfig) error {
	var cmdLines []string
	for _, f := range cfg.files {
		cmdLines = append(cmdLines, fileCommands(f)...)
	}
	_, err := ex.Run(ctx, executor.RunOptions{CmdLines: cmdLines})
	if err != nil {
		return fmt.Errorf("fetch distfiles: %w", err)
	}
	return ex.CopyOut(ctx, []executor.FileCopy{
		{Src: "@DISTFILES_DIR@", Dest: filepath.Join(cfg.distfilesHostDir, cfg.component)},
	}, nil)
}

// archiveModules resolves each declared submodule's short commit hash
// and packages it into a deterministically-named archive, recording
// the (name, hash, archive) triple the build stage later unpacks
// from.
func (p *fetchPlugin) archiveModules(ctx context.Context, ex executor.Executor, cfg *fetchConfig) ([]buildorch.ModuleRecord, error) {
	records := make([]buildorch.ModuleRecord, 0, len(cfg.modules))
	for _, mod := range cfg.modules {
		var out bytes.Buffer
		_, err := ex.Run(ctx, executor.RunOptions{
			CmdLines: []string{fmt.Sprintf("git -C @SOURCES_DIR@/%s rev-parse --short HEAD", mod)},
			Stdout:   &out,
		})
		if err != nil {
			return nil, fmt.Errorf("module %s: resolve commit: %w", mod, err)
		}
		hash := strings.TrimSpace(out.String())
		if !shortHashRE.MatchString(hash) {
			return nil, fmt.Errorf("module %s: unexpected commit hash %q", mod, hash)
		}

		archive := fmt.Sprintf("%s-%s.tar.gz", mod, hash)
		tarCmd := fmt.Sprintf("tar czf @DISTFILES_DIR@/%s -C @SOURCES_DIR@ %s", archive, mod)
		if _, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{tarCmd}}); err != nil {
			return nil, fmt.Errorf("module %s: create archive: %w", mod, err)
		}

		records = append(records, buildorch.ModuleRecord{Name: mod, Hash: hash, Archive: archive})
	}
	return records, nil
}

// shellQuote wraps s in single quotes for inclusion in a generated
// shell command line, escaping any embedded single quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// optionsToConfig decodes the loosely-typed RunArgs.Options map into
// a fetchConfig, following the same permissive-option convention
// every other distro plugin in this tree already uses.
func optionsToConfig(args pluginmgr.RunArgs) (*fetchConfig, error) {
	cfg := &fetchConfig{
		component:        args.Component,
		verification:     buildorch.VerificationInsecure,
		artifactsDir:     "artifacts",
		sourcesHostDir:   "sources",
		distfilesHostDir: "distfiles",
	}

	cfg.url, _ = args.Options["url"].(string)
	if cfg.url == "" {
		return nil, fmt.Errorf("no url configured")
	}
	cfg.branch, _ = args.Options["branch"].(string)
	if cfg.branch == "" {
		cfg.branch = "main"
	}
	if v, ok := args.Options["artifacts-dir"].(string); ok && v != "" {
		cfg.artifactsDir = v
	}
	if v, ok := args.Options["sources-dir"].(string); ok && v != "" {
		cfg.sourcesHostDir = v
	}
	if v, ok := args.Options["distfiles-dir"].(string); ok && v != "" {
		cfg.distfilesHostDir = v
	}
	if v, ok := args.Options["keyring-dir"].(string); ok {
		cfg.keyringDir = v
	}
	if v, ok := args.Options["verification"].(string); ok && v != "" {
		cfg.verification = buildorch.VerificationMode(v)
	}
	if maintainers, ok := args.Options["maintainers"].([]string); ok {
		cfg.maintainers = maintainers
	} else if maintainers, ok := args.Options["maintainers"].([]any); ok {
		for _, m := range maintainers {
			if s, ok := m.(string); ok {
				cfg.maintainers = append(cfg.maintainers, s)
			}
		}
	}
	if v, ok := args.Options["min-distinct-maintainers"].(int); ok {
		cfg.minDistinctMaintainers = v
	} else if v, ok := args.Options["min-distinct-maintainers"].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.minDistinctMaintainers = n
		}
	}
	if v, ok := args.Options["fetch-versions-only"].(bool); ok {
		cfg.fetchOnlyVersionTags = v
	}

	return cfg, nil
}

type fetchConfig struct {
	component string
	url       string
	branch    string

	verification           buildorch.VerificationMode
	maintainers            []string
	minDistinctMaintainers int
	fetchOnlyVersionTags   bool
	keyringDir             string

	artifactsDir     string
	sourcesHostDir   string
	distfilesHostDir string

	files   []config.FileEntry
	modules []string
}
