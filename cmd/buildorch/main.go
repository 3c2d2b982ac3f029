// Command buildorch is the CLI entry point: a thin dispatcher over
// the stage pipeline, config resolver, and executor selection. Per
// spec §6 the CLI surface itself is out of core scope; this binary
// exists only as the external boundary that wires the pieces
// together.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/config"
	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/logging"
	"github.com/buildorch/buildorch/internal/pipeline"
	"github.com/buildorch/buildorch/internal/pluginmgr"

	_ "github.com/buildorch/buildorch/internal/cache"
	_ "github.com/buildorch/buildorch/internal/distro/archlinux"
	_ "github.com/buildorch/buildorch/internal/distro/deb"
	_ "github.com/buildorch/buildorch/internal/distro/rpm"
	_ "github.com/buildorch/buildorch/internal/distro/windows"
	_ "github.com/buildorch/buildorch/internal/source"
	_ "github.com/buildorch/buildorch/internal/template"
	_ "github.com/buildorch/buildorch/internal/upload"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var cliErr *buildorch.CliError
		if errors.As(err, &cliErr) {
			fmt.Fprintln(os.Stderr, cliErr.Error())
			os.Exit(cliErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fs, opts := parseArgs(args)
	if fs.configPath == "" {
		return &buildorch.CliError{ExitCode: 2, Err: errors.New("buildorch: -c/--config is required")}
	}

	doc, err := config.Load(fs.configPath)
	if err != nil {
		return &buildorch.CliError{ExitCode: 1, Err: err}
	}
	for _, o := range opts {
		if err := config.ApplyOverride(doc, o); err != nil {
			return &buildorch.CliError{ExitCode: 2, Err: err}
		}
	}

	cfg, err := config.FromRaw(doc)
	if err != nil {
		return &buildorch.CliError{ExitCode: 1, Err: err}
	}

	log := logging.Scope(nil)
	log.Infof("loaded %d component(s), %d distribution(s)", len(cfg.Components), len(cfg.Distributions))

	stageName := fs.stage
	if stageName == "" {
		stageName = "all"
	}

	p := buildPipeline(cfg)

	if stageName == "all" {
		err = p.RunAll(ctx)
	} else {
		var stage pipeline.Stage
		stage, err = pipeline.ParseStage(stageName)
		if err == nil {
			err = p.RunStage(ctx, stage)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return &buildorch.Interrupted{Err: err}
		}
		return &buildorch.CliError{ExitCode: 1, Err: err}
	}
	return nil
}

type cliFlags struct {
	configPath string
	stage      string
}

// parseArgs is a hand-rolled minimal parser (per spec §6, the CLI
// surface is explicitly out of core scope, so it gets just enough
// argument handling to drive the pipeline, not a full flag library).
func parseArgs(args []string) (cliFlags, []string) {
	var f cliFlags
	var overrides []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "--config":
			if i+1 < len(args) {
				i++
				f.configPath = args[i]
			}
		case "-o", "--option":
			if i+1 < len(args) {
				i++
				overrides = append(overrides, args[i])
			}
		case "--stage":
			if i+1 < len(args) {
				i++
				f.stage = args[i]
			}
		}
	}
	return f, overrides
}

func buildPipeline(cfg *config.Config) *pipeline.Pipeline {
	jobs := make([]pipeline.Job, 0, len(cfg.Components)*len(cfg.Distributions))
	runArgs := make(map[string]pluginmgr.RunArgs, cap(jobs))
	for _, c := range cfg.Components {
		for _, d := range cfg.Distributions {
			id := c.Name + "@" + d
			jobs = append(jobs, pipeline.Job{ID: id})
			runArgs[id] = pluginmgr.RunArgs{
				Component:    c.Name,
				Distribution: d,
				Options:      c.Options,
			}
		}
	}

	return &pipeline.Pipeline{
		Jobs:        jobs,
		RunArgsByID: runArgs,
		NewExecutor: func(ctx context.Context, jobID string) (executor.Executor, error) {
			root := "/tmp/buildorch/" + jobID
			return &executor.Traced{Executor: executor.NewLocal(root), Kind: "local", Name: jobID}, nil
		},
	}
}
