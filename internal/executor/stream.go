package executor

import (
	"bytes"
	"io"
)

const (
	readChunkSize = 4096
	maxLineBytes  = 10000
)

// LineSanitizer receives chunks of one of an executor's output
// streams (stdout or stderr) as they are written, splits on '\n', caps each line at maxLineBytes (appending an
// ellipsis marker when truncated), replaces any byte outside the
// printable ASCII range [0x20, 0x7E] with '.', and forwards complete
// lines to Sink. It exists because sandboxed build tooling routinely
// emits binary progress bars and control sequences that would
// otherwise corrupt a log file or terminal.
type LineSanitizer struct {
	Sink io.Writer

	buf bytes.Buffer
}

// Write implements io.Writer so a LineSanitizer can be handed directly
// to an executor as the destination for a sandbox's output stream.
func (s *LineSanitizer) Write(p []byte) (int, error) {
	n := len(p)
	s.buf.Write(p)
	for {
		chunk, ok := s.nextChunk()
		if !ok {
			break
		}
		if _, err := s.Sink.Write(chunk); err != nil {
			return n, err
		}
	}
	return n, nil
}

// nextChunk drains one complete line, or — for a line that has
// already grown past maxLineBytes without a newline in sight — one
// forced split of exactly maxLineBytes, so a pathological unbroken
// line is capped as it streams in rather than buffered without bound
// until Flush.
func (s *LineSanitizer) nextChunk() ([]byte, bool) {
	b := s.buf.Bytes()
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		raw := make([]byte, idx)
		copy(raw, b[:idx])
		s.buf.Next(idx + 1)
		return append(sanitizeAndCap(raw), '\n'), true
	}
	if len(b) > maxLineBytes {
		raw := make([]byte, maxLineBytes)
		copy(raw, b[:maxLineBytes])
		s.buf.Next(maxLineBytes)
		return append(sanitizeForceSplit(raw), '\n'), true
	}
	return nil, false
}

// Flush forwards any buffered partial line (no trailing '\n' yet seen),
// called once at stream close so the final line isn't dropped.
func (s *LineSanitizer) Flush() error {
	if s.buf.Len() == 0 {
		return nil
	}
	raw := s.buf.Bytes()
	out := append(sanitizeAndCap(raw), '\n')
	s.buf.Reset()
	_, err := s.Sink.Write(out)
	return err
}

func sanitizeAndCap(raw []byte) []byte {
	truncated := false
	if len(raw) > maxLineBytes {
		raw = raw[:maxLineBytes]
		truncated = true
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		if b < 0x20 || b > 0x7E {
			out[i] = '.'
		} else {
			out[i] = b
		}
	}
	if truncated {
		out = append(out, []byte("...<truncated>")...)
	}
	return out
}

// sanitizeForceSplit sanitizes exactly maxLineBytes of still-unterminated
// line content and always appends the truncation marker: the cap was
// reached without a newline in sight, so the line is known to
// continue in a later chunk regardless of raw's own length.
func sanitizeForceSplit(raw []byte) []byte {
	out := make([]byte, len(raw))
	for i, b := range raw {
		if b < 0x20 || b > 0x7E {
			out[i] = '.'
		} else {
			out[i] = b
		}
	}
	return append(out, []byte("...<truncated>")...)
}

// CopyChunked copies from r to w in readChunkSize chunks, a way to
// feed a LineSanitizer from a reader without relying on
// bufio.Scanner's line-length limits (which would choke on exactly
// the long unbroken lines this sanitizer needs to cap). The executors
// in this package do not call it; they hand a LineSanitizer to the
// command as its output writer instead.
func CopyChunked(w io.Writer, r io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
