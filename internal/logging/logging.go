// Package logging wraps logrus with the field scoping and
// per-invocation file handler convention the pipeline uses throughout:
// every package asks for a child entry scoped to component/
// distribution/stage/plugin rather than logging through the bare
// package-level logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if lvl := os.Getenv("BUILDORCH_LOG_LEVEL"); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			base.SetLevel(parsed)
		}
	}
}

// Base returns the root logger, for packages that don't yet have a
// scoped entry (init-time diagnostics, CLI bootstrap).
func Base() *logrus.Logger { return base }

// Scope returns an entry carrying the given fields, the equivalent of
// the original implementation's getChild(name) logger hierarchy.
func Scope(fields logrus.Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// InvocationLog opens a per-run log file under dir named
// "<timestamp>-<label>.log" and attaches it as an additional output
// alongside the console, returning a closer the caller must invoke
// once the run completes.
func InvocationLog(dir, label string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create %s: %w", dir, err)
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.log", ts, label))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	base.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// TailOnFailure re-logs the last n lines of path at Error level, used
// when a stage fails so the operator sees the tail of a long build
// log without having to go find the file themselves.
func TailOnFailure(entry *logrus.Entry, path string, n int) {
	b, err := os.ReadFile(path)
	if err != nil {
		entry.WithError(err).Warn("could not read log for failure tail")
		return
	}
	lines := splitLines(string(b))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	entry.Error("--- tail of failing log ---")
	for _, line := range lines {
		entry.Error(line)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
