package executor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/buildorch/buildorch/internal/qrexec"
)

// Qubes runs build stages inside a disposable VM, the strongest
// isolation variant: every run gets a fresh qube cloned from a
// template, used exactly once, and destroyed on every exit path
// (success, failure, or cancellation) so a compromised build never
// has a chance to persist.
type Qubes struct {
	Client   *qrexec.Client
	Template string

	name    string
	created bool
}

func NewQubes(client *qrexec.Client, template string) *Qubes {
	return &Qubes{Client: client, Template: template}
}

func (q *Qubes) ensureCreated(ctx context.Context) error {
	if q.created {
		return nil
	}
	op := func() error {
		name, err := q.Client.CreateDisposable(ctx, q.Template)
		if err != nil {
			return err
		}
		q.name = name
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return &ExecutorError{Err: fmt.Errorf("create disposable vm: %w", err)}
	}
	if err := q.Client.Start(ctx, q.name); err != nil {
		return &ExecutorError{SandboxName: q.name, Err: fmt.Errorf("start disposable vm: %w", err)}
	}
	q.created = true
	return nil
}

func (q *Qubes) CopyIn(ctx context.Context, files []FileCopy) error {
	if err := q.ensureCreated(ctx); err != nil {
		return err
	}
	for _, f := range files {
		dest := ExpandPlaceholders(f.Dest)
		data, err := readAllPath(f.Src)
		if err != nil {
			return &ExecutorError{SandboxName: q.name, Err: err}
		}
		if err := q.Client.FileCopyIn(ctx, q.name, dest, bytes.NewReader(data)); err != nil {
			return &ExecutorError{SandboxName: q.name, Err: fmt.Errorf("copy_in %s -> %s: %w", f.Src, dest, err)}
		}
	}
	return nil
}

func (q *Qubes) CopyOut(ctx context.Context, files []FileCopy, noFailPatterns []string) error {
	if !q.created {
		return nil
	}
	for _, f := range files {
		src := ExpandPlaceholders(f.Src)
		data, err := q.Client.FileCopyOut(ctx, q.name, src)
		if err != nil {
			if matchesAny(noFailPatterns, f.Src) {
				continue
			}
			return &ExecutorError{SandboxName: q.name, Err: fmt.Errorf("copy_out %s: %w", src, err)}
		}
		if err := writeAllPath(f.Dest, data); err != nil {
			return &ExecutorError{SandboxName: q.name, Err: err}
		}
	}
	return nil
}

func (q *Qubes) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if err := q.ensureCreated(ctx); err != nil {
		return RunResult{}, err
	}
	if err := q.CopyIn(ctx, opts.CopyIn); err != nil {
		return RunResult{}, err
	}

	script := ExpandPlaceholders(strings.Join(opts.CmdLines, " && "))
	if len(opts.Env) > 0 {
		var prefix strings.Builder
		for k, v := range opts.Env {
			fmt.Fprintf(&prefix, "export %s=%q\n", k, v)
		}
		script = prefix.String() + script
	}

	stdout := &LineSanitizer{Sink: writerOrDiscard(opts.Stdout)}
	stderr := &LineSanitizer{Sink: writerOrDiscard(opts.Stderr)}
	code, err := q.Client.VMShell(ctx, q.name, script, stdout, stderr)
	stdout.Flush()
	stderr.Flush()
	if err != nil {
		return RunResult{}, &ExecutorError{SandboxName: q.name, Err: fmt.Errorf("vmshell: %w", err)}
	}

	// CopyOut only runs on a zero exit code: a failed command raises
	// without attempting to collect outputs from a build that never
	// finished.
	if code != 0 {
		return RunResult{ExitCode: code}, &ExecutorError{SandboxName: q.name, Err: fmt.Errorf("command exited %d", code)}
	}
	if copyErr := q.CopyOut(ctx, opts.CopyOut, opts.NoFailCopyOutAllowedPatterns); copyErr != nil {
		return RunResult{ExitCode: code}, copyErr
	}
	return RunResult{ExitCode: code}, nil
}

// Close guarantees the disposable VM is killed and removed on every
// exit path. A Kill failure (e.g. on an already-halted qube) is
// ignored; a Remove failure is returned as an ExecutorError marked
// non-fatal.
func (q *Qubes) Close(ctx context.Context) error {
	if !q.created {
		return nil
	}
	killCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = q.Client.Kill(killCtx, q.name)
	err := q.Client.Remove(killCtx, q.name)
	q.created = false
	if err != nil {
		return &ExecutorError{SandboxName: q.name, Err: fmt.Errorf("remove disposable vm (non-fatal): %w", err)}
	}
	return nil
}
