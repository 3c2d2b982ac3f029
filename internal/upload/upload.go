// Package upload implements the final stage that pushes a published
// repository tree to a remote mirror via rsync, run through an
// Executor so it benefits from the same sandboxing as every other
// stage.
package upload

import (
	"context"
	"fmt"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/pluginmgr"
)

func init() {
	pluginmgr.Register(&factory{})
}

type factory struct{}

func (f *factory) Name() string { return "upload" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	return []pluginmgr.Plugin{&plugin{}}, nil
}

// plugin drives the upload stage through the Run helper below, using
// args.Options for the target and the repository directories to push
// (spec §4.8: per-family layout, DEB's pool/dists split vs RPM/Arch's
// flat per-repo directory).
type plugin struct{}

func (p *plugin) Name() string           { return "upload" }
func (p *plugin) Stages() []string       { return []string{"upload"} }
func (p *plugin) Priority() int          { return 0 }
func (p *plugin) Dependencies() []pluginmgr.Dependency { return nil }

func (p *plugin) Run(ctx context.Context, ex executor.Executor, stage string, args pluginmgr.RunArgs) error {
	if stage != "upload" {
		return nil
	}
	host, _ := args.Options["upload-host"].(string)
	if host == "" {
		return nil
	}
	target := Target{Host: host}
	target.Path, _ = args.Options["upload-path"].(string)
	target.User, _ = args.Options["upload-user"].(string)
	if target.Path == "" {
		target.Path = "."
	}

	dirs := uploadDirs(args)
	for _, dir := range dirs {
		if err := Run(ctx, ex, dir, target); err != nil {
			return err
		}
	}
	return nil
}

// uploadDirs returns the in-sandbox repository directories to push
// for this job, falling back to the well-known repository root when
// the distribution-family split (DEB's pool/dists, RPM/Arch's flat
// per-repo tree) isn't configured.
func uploadDirs(args pluginmgr.RunArgs) []string {
	if dirs, ok := args.Options["upload-dirs"].([]string); ok && len(dirs) > 0 {
		return dirs
	}
	if dirs, ok := args.Options["upload-dirs"].([]any); ok && len(dirs) > 0 {
		out := make([]string, 0, len(dirs))
		for _, d := range dirs {
			if s, ok := d.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{"@REPOSITORY_DIR@/" + args.Distribution}
}

// Target names one upload destination.
type Target struct {
	Host string
	Path string
	User string
}

func (t Target) String() string {
	if t.User == "" {
		return fmt.Sprintf("%s:%s", t.Host, t.Path)
	}
	return fmt.Sprintf("%s@%s:%s", t.User, t.Host, t.Path)
}

// Run rsyncs localDir to target per spec §4.8: partial-transfer
// resumable, hardlinks preserved (the repository tree's package files
// are hardlinked across testing/stable repos rather than duplicated),
// creating any missing destination path components.
func Run(ctx context.Context, ex executor.Executor, localDir string, target Target) error {
	cmd := fmt.Sprintf("rsync --partial --progress --hard-links -air --mkpath %s/ %s", localDir, target.String())
	_, err := ex.Run(ctx, executor.RunOptions{CmdLines: []string{cmd}})
	if err != nil {
		return buildorch.NewUploadError(target.String(), err)
	}
	return nil
}
