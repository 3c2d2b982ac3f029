// Package windows implements the pass-through source/build plugin for
// the windows template target, at the documented-but-lighter depth
// spec.md gives this family: a component's bin/inc/lib resource lists
// from its .qubesbuilder manifest are copied into the template build
// tree as-is, with no compiler invoked in-process (per the
// no-in-process-compiler Non-goal).
package windows

import (
	"context"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/pluginmgr"
)

func init() {
	pluginmgr.Register(&factory{})
}

type factory struct{}

func (f *factory) Name() string { return "windows" }

func (f *factory) Instances(args pluginmgr.RunArgs) ([]pluginmgr.Plugin, error) {
	return []pluginmgr.Plugin{&passthroughPlugin{}}, nil
}

// passthroughPlugin copies a component's declared bin/inc/lib
// resource lists into the template's build tree verbatim; it never
// invokes a Windows toolchain itself, since that runs inside the
// Windows disposable VM the executor targets, not this process.
type passthroughPlugin struct{}

func (p *passthroughPlugin) Name() string           { return "windows" }
func (p *passthroughPlugin) Stages() []string       { return []string{"build"} }
func (p *passthroughPlugin) Priority() int          { return 50 }
func (p *passthroughPlugin) Dependencies() []pluginmgr.Dependency { return nil }

func (p *passthroughPlugin) Run(ctx context.Context, ex executor.Executor, stage string, args pluginmgr.RunArgs) error {
	bin, _ := args.Options["bin"].([]string)
	inc, _ := args.Options["inc"].([]string)
	lib, _ := args.Options["lib"].([]string)

	var copies []executor.FileCopy
	for _, dir := range [][]string{bin, inc, lib} {
		for _, entry := range dir {
			copies = append(copies, executor.FileCopy{
				Src:  "@SOURCES_DIR@/" + entry,
				Dest: "@BUILDER_DIR@/" + entry,
			})
		}
	}
	if len(copies) == 0 {
		return nil
	}
	if err := ex.CopyIn(ctx, copies); err != nil {
		return buildorch.NewBuildError("windows", err)
	}
	return nil
}
