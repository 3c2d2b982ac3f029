package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	fscopy "github.com/tonistiigi/fsutil/copy"
	"golang.org/x/sys/unix"
)

// Local runs build stages directly on the host under a dedicated
// /builder root, the "no isolation" variant used for throwaway
// development builds where container or disposable-VM sandboxing
// isn't available. It is the least safe variant: a malicious or
// buggy plugin runs with the invoking user's full privileges.
type Local struct {
	Root string // host path backing the sandbox's /builder root

	// GracePeriod bounds how long Run waits after sending SIGTERM to
	// the command's process group before escalating to SIGKILL.
	GracePeriod time.Duration
}

func NewLocal(root string) *Local {
	return &Local{Root: root, GracePeriod: 10 * time.Second}
}

func (l *Local) hostPath(sandboxPath string) string {
	sandboxPath = ExpandPlaceholders(sandboxPath)
	rel := strings.TrimPrefix(sandboxPath, "/builder/")
	return filepath.Join(l.Root, rel)
}

func (l *Local) CopyIn(ctx context.Context, files []FileCopy) error {
	for _, f := range files {
		dest := l.hostPath(f.Dest)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return &wrapErr{"local copy_in", err}
		}
		if err := fscopy.Copy(ctx, filepath.Dir(f.Src), filepath.Base(f.Src), filepath.Dir(dest), filepath.Base(dest)); err != nil {
			if cerr := copyFileFallback(f.Src, dest); cerr != nil {
				return &wrapErr{fmt.Sprintf("local copy_in %s -> %s", f.Src, dest), err}
			}
		}
	}
	return nil
}

func (l *Local) CopyOut(ctx context.Context, files []FileCopy, noFailPatterns []string) error {
	for _, f := range files {
		src := l.hostPath(f.Src)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) && matchesAny(noFailPatterns, f.Src) {
				continue
			}
			return &wrapErr{fmt.Sprintf("local copy_out %s", src), err}
		}
		if err := os.MkdirAll(filepath.Dir(f.Dest), 0o755); err != nil {
			return &wrapErr{"local copy_out", err}
		}
		if err := fscopy.Copy(ctx, filepath.Dir(src), filepath.Base(src), filepath.Dir(f.Dest), filepath.Base(f.Dest)); err != nil {
			if cerr := copyFileFallback(src, f.Dest); cerr != nil {
				return &wrapErr{fmt.Sprintf("local copy_out %s -> %s", src, f.Dest), err}
			}
		}
	}
	return nil
}

func (l *Local) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return RunResult{}, &wrapErr{"local run", err}
	}
	if err := l.CopyIn(ctx, opts.CopyIn); err != nil {
		return RunResult{}, err
	}
	if err := expandFilePlaceholders(l, opts.FilesWithPlaceholders); err != nil {
		return RunResult{}, err
	}

	script := ExpandPlaceholders(strings.Join(opts.CmdLines, " && "))
	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", script)
	cmd.Dir = l.hostPath(Dir(PathBuild))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout := &LineSanitizer{Sink: io.Discard}
	stderr := &LineSanitizer{Sink: io.Discard}
	if opts.Stdout != nil {
		stdout.Sink = opts.Stdout
	}
	if opts.Stderr != nil {
		stderr.Sink = opts.Stderr
	}
	cmd.Stdout, cmd.Stderr = stdout, stderr

	runErr := cmd.Start()
	if runErr == nil {
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case runErr = <-done:
			_ = stdout.Flush()
			_ = stderr.Flush()
		case <-ctx.Done():
			l.terminate(cmd)
			select {
			case runErr = <-done:
			case <-time.After(l.GracePeriod):
			}
			runErr = ctx.Err()
		}
	}

	exitCode := 0
	if runErr != nil {
		exitCode = 1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	// CopyOut only runs on a zero exit code: a failed command raises
	// without attempting to collect outputs from a build that never
	// finished.
	if runErr != nil {
		return RunResult{ExitCode: exitCode}, &wrapErr{"local run", runErr}
	}
	if copyErr := l.CopyOut(ctx, opts.CopyOut, opts.NoFailCopyOutAllowedPatterns); copyErr != nil {
		return RunResult{ExitCode: exitCode}, copyErr
	}
	return RunResult{ExitCode: exitCode}, nil
}

// terminate sends SIGTERM to the command's whole process group so
// children spawned by the build script are reaped too, and escalates
// to SIGKILL on the same group once GracePeriod has elapsed.
func (l *Local) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		return
	}
	_ = unix.Kill(-pgid, unix.SIGTERM)
	go func() {
		time.Sleep(l.GracePeriod)
		_ = unix.Kill(-pgid, unix.SIGKILL)
	}()
}

func (l *Local) Close(ctx context.Context) error {
	return nil
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, filepath.Base(name)); ok {
			return true
		}
	}
	return false
}

func copyFileFallback(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.Errorf("cannot fall back to file copy for directory %s", src)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func expandFilePlaceholders(l *Local, files []string) error {
	for _, f := range files {
		path := l.hostPath(f)
		b, err := os.ReadFile(path)
		if err != nil {
			return &wrapErr{"expand placeholders", err}
		}
		expanded := ExpandPlaceholders(string(b))
		if expanded != string(b) {
			if err := os.WriteFile(path, []byte(expanded), 0o644); err != nil {
				return &wrapErr{"expand placeholders", err}
			}
		}
	}
	return nil
}

type wrapErr struct {
	op  string
	err error
}

func (w *wrapErr) Error() string { return fmt.Sprintf("%s: %s", w.op, w.err) }
func (w *wrapErr) Unwrap() error { return w.err }
