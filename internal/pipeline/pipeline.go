package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/buildorch/buildorch/internal/executor"
	"github.com/buildorch/buildorch/internal/logging"
	"github.com/buildorch/buildorch/internal/pluginmgr"
)

var tracer = otel.Tracer("buildorch/pipeline")

// ExecutorFactory builds (or reuses) an Executor for one job.
type ExecutorFactory func(ctx context.Context, jobID string) (executor.Executor, error)

// Pipeline runs stages across a fixed matrix of jobs.
type Pipeline struct {
	Jobs        []Job
	RunArgsByID map[string]pluginmgr.RunArgs
	NewExecutor ExecutorFactory
}

// RunStage instantiates and runs every plugin registered for stage,
// for every job in dependency order, closing each job's executor when
// that job's plugins have all run.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage) error {
	ordered, err := TopoSort(p.Jobs)
	if err != nil {
		return err
	}

	log := logging.Scope(logrus.Fields{"stage": string(stage)})
	for _, job := range ordered {
		if err := p.runJob(ctx, job, stage, log); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runJob(ctx context.Context, job Job, stage Stage, log *logrus.Entry) error {
	ctx, span := tracer.Start(ctx, "pipeline.runJob", trace.WithAttributes(
		attribute.String("pipeline.job_id", job.ID),
		attribute.String("pipeline.stage", string(stage)),
	))
	defer span.End()

	args, ok := p.RunArgsByID[job.ID]
	if !ok {
		return fmt.Errorf("pipeline: no run args registered for job %q", job.ID)
	}

	plugins, err := pluginmgr.ResolveStage(string(stage), args, componentFetched(args))
	if err != nil {
		return fmt.Errorf("pipeline: resolve plugins for job %q stage %q: %w", job.ID, stage, err)
	}
	if len(plugins) == 0 {
		return nil
	}
	log.WithField("job", job.ID).Debugf("running %d plugin(s)", len(plugins))

	ex, err := p.NewExecutor(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("pipeline: create executor for job %q: %w", job.ID, err)
	}
	defer ex.Close(ctx)

	for _, plugin := range plugins {
		if err := plugin.Run(ctx, ex, string(stage), args); err != nil {
			return fmt.Errorf("pipeline: job %q stage %q plugin %q: %w", job.ID, stage, plugin.Name(), err)
		}
	}
	return nil
}

// componentFetched builds the predicate pluginmgr.ResolveStage uses to
// enforce a component dependency: a fetch-stage artifact record must
// already exist on disk for the named component. The record's
// directory embeds the component's resolved version-release, which
// this predicate doesn't know ahead of time, so it globs for any
// matching fetch record rather than constructing the exact
// artifactstore.Store key a fully-resolved buildorch.Component would.
func componentFetched(args pluginmgr.RunArgs) func(name string) bool {
	artifactsDir := "artifacts"
	if v, ok := args.Options["artifacts-dir"].(string); ok && v != "" {
		artifactsDir = v
	}
	return func(name string) bool {
		pattern := filepath.Join(artifactsDir, name, "*", "nodist", name+".fetch.yml")
		matches, err := filepath.Glob(pattern)
		return err == nil && len(matches) > 0
	}
}

// RunAll runs the "all" stage group: fetch alone first (every other
// stage depends on source being present), then the rest of Sequence
// in order.
func (p *Pipeline) RunAll(ctx context.Context) error {
	if err := p.RunStage(ctx, StageFetch); err != nil {
		return err
	}
	for _, stage := range Sequence[1:] {
		if err := p.RunStage(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}
