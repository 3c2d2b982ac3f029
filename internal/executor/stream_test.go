package executor

import (
	"bytes"
	"strings"
	"testing"
)

func TestLineSanitizerCapsLongLines(t *testing.T) {
	var out bytes.Buffer
	s := &LineSanitizer{Sink: &out}

	long := strings.Repeat("x", maxLineBytes+500) + "\n"
	if _, err := s.Write([]byte(long)); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	if !strings.Contains(got, "<truncated>") {
		t.Fatalf("expected truncation marker, got %d bytes", len(got))
	}
	firstLine := got[:strings.IndexByte(got, '\n')]
	if len(firstLine) > maxLineBytes+len("...<truncated>") {
		t.Fatalf("line exceeds cap plus marker: %d bytes", len(firstLine))
	}
}

func TestLineSanitizerReplacesNonPrintable(t *testing.T) {
	var out bytes.Buffer
	s := &LineSanitizer{Sink: &out}

	input := []byte{'o', 'k', 0x01, 0x7F, 0xFF, ' ', 'd', 'o', 'n', 'e', '\n'}
	if _, err := s.Write(input); err != nil {
		t.Fatal(err)
	}

	want := "ok... done\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestLineSanitizerForceSplitsUnterminatedLineAtCap(t *testing.T) {
	var out bytes.Buffer
	s := &LineSanitizer{Sink: &out}

	long := strings.Repeat("x", 2*maxLineBytes)
	if _, err := s.Write([]byte(long)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "<truncated>") {
		t.Fatalf("expected a forced split before Flush, got %d bytes", out.Len())
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one chunk emitted before Flush, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], "<truncated>") {
		t.Fatalf("expected first chunk to end with the truncation marker, got %q", lines[0])
	}

	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	lines = strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two total chunks after Flush, got %d: %v", len(lines), lines)
	}
	if strings.HasSuffix(lines[1], "<truncated>") {
		t.Fatalf("expected the second chunk not to carry a truncation marker, got %q", lines[1])
	}
}

func TestLineSanitizerFlushesTrailingPartialLine(t *testing.T) {
	var out bytes.Buffer
	s := &LineSanitizer{Sink: &out}

	if _, err := s.Write([]byte("no newline yet")); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected nothing forwarded before Flush, got %q", out.String())
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "no newline yet\n" {
		t.Fatalf("got %q", out.String())
	}
}
