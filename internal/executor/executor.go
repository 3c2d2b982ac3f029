// Package executor implements the sandboxed command-execution
// contract every build stage runs through: local subprocess,
// container, or Qubes disposable VM. All three share one interface so
// the stage pipeline never branches on executor kind.
package executor

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Well-known paths inside every sandbox, rooted at /builder. Callers
// address these symbolically (WellKnownPath) rather than hardcoding
// strings so a future executor variant can remap the root without
// touching plugin code.
type WellKnownPath int

const (
	PathBuild WellKnownPath = iota
	PathPlugins
	PathSources
	PathDistfiles
	PathRepository
	PathCache
	PathDependencies
)

var wellKnownDirs = map[WellKnownPath]string{
	PathBuild:        "/builder/build",
	PathPlugins:      "/builder/plugins",
	PathSources:      "/builder/sources",
	PathDistfiles:    "/builder/distfiles",
	PathRepository:   "/builder/repository",
	PathCache:        "/builder/cache",
	PathDependencies: "/builder/dependencies",
}

// Dir returns the canonical in-sandbox path for a well-known
// directory.
func Dir(p WellKnownPath) string { return wellKnownDirs[p] }

// placeholders maps an @BUILDER_DIR@-style token to the well-known
// path it stands for. Plugins write commands and file lists against
// these tokens so the same plugin works across every executor
// variant, which may mount /builder at a different host path.
var placeholders = map[string]WellKnownPath{
	"@BUILDER_DIR@":       PathBuild,
	"@PLUGINS_DIR@":       PathPlugins,
	"@SOURCES_DIR@":       PathSources,
	"@DISTFILES_DIR@":     PathDistfiles,
	"@REPOSITORY_DIR@":    PathRepository,
	"@CACHE_DIR@":         PathCache,
	"@DEPENDENCIES_DIR@":  PathDependencies,
}

// ExpandPlaceholders replaces every @TOKEN@ placeholder in s with its
// well-known sandbox path.
func ExpandPlaceholders(s string) string {
	out := s
	for token, p := range placeholders {
		out = strings.ReplaceAll(out, token, Dir(p))
	}
	return out
}

// FileCopy names one source/destination pair for CopyIn/CopyOut.
// Placeholders in Dest (CopyIn) or Src (CopyOut) are expanded before
// the copy runs.
type FileCopy struct {
	Src  string
	Dest string
}

// RunOptions configures one Run invocation.
type RunOptions struct {
	// CmdLines are shell command lines executed in sequence inside the
	// sandbox, "&&"-joined by the executor so any failure aborts the
	// rest.
	CmdLines []string

	CopyIn  []FileCopy
	CopyOut []FileCopy

	// Env is merged over the sandbox's base environment.
	Env map[string]string

	// FilesWithPlaceholders lists in-sandbox files whose content
	// should have @TOKEN@ placeholders expanded before the command
	// runs (e.g. a generated spec file referencing @SOURCES_DIR@).
	// Only the Local executor applies it; Container and Qubes ignore
	// this field.
	FilesWithPlaceholders []string

	// NoFailCopyOutAllowedPatterns lists glob patterns for CopyOut
	// entries that are allowed to be missing without failing the run
	// (e.g. optional build logs).
	NoFailCopyOutAllowedPatterns []string

	// DigHoles names a request to preserve sparse-file holes when
	// copying out large artifacts (disk images). None of the executor
	// variants act on it: copied-out files are written densely, with
	// zero runs materialized.
	DigHoles bool

	// Stdout/Stderr, when non-nil, receive the sanitized, line-capped
	// stream described in stream.go. When nil, output is discarded.
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult reports the outcome of a Run.
type RunResult struct {
	ExitCode int
}

// Executor is the sandbox contract every build stage plugin runs
// through.
type Executor interface {
	// CopyIn copies host files into the sandbox before command
	// execution, expanding placeholders in each Dest.
	CopyIn(ctx context.Context, files []FileCopy) error

	// CopyOut copies sandbox files back to the host after command
	// execution, expanding placeholders in each Src. Entries matching
	// NoFailCopyOutAllowedPatterns may be silently skipped if absent.
	CopyOut(ctx context.Context, files []FileCopy, noFailPatterns []string) error

	// Run executes opts.CmdLines inside the sandbox, performing
	// CopyIn before and, only after a zero exit status, CopyOut
	// after. On a non-zero exit Run returns an error without copying
	// anything out.
	Run(ctx context.Context, opts RunOptions) (RunResult, error)

	// Close tears down the sandbox (container removal, disposable VM
	// kill+remove; a no-op for Local, whose process group Run itself
	// signals on cancellation). Idempotent.
	Close(ctx context.Context) error
}

// Kind identifies which Executor variant a sandbox config selects.
type Kind string

const (
	KindLocal  Kind = "local"
	KindDocker Kind = "docker"
	KindQubes  Kind = "qubes"
)

// ErrUnknownKind is returned by executor construction when Kind
// doesn't match a registered variant.
func ErrUnknownKind(k Kind) error {
	return fmt.Errorf("executor: unknown kind %q", k)
}
