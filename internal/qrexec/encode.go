// Package qrexec implements the subprocess-based control channel used
// to drive a Qubes disposable VM: admin RPC calls (create/start/kill/
// remove/current-state) and the qubesbuilder file-copy-in/out qrexec
// services, matching the wire conventions of the original qubes-builder
// implementation.
package qrexec

import (
	"fmt"
	"strings"
)

// EncodeForVMExec hex-escapes s so it can be embedded as the
// "+argument" suffix of a qrexec service name
// (qubesbuilder.FileCopyIn+<encoded-dest>). Qrexec service argument
// names are restricted to [A-Za-z0-9_.-]; a literal '-' is doubled
// to "--" (to keep the escape prefix unambiguous), and every other
// byte outside that set is replaced by "-HH" where HH is its
// uppercase hex value.
func EncodeForVMExec(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '-':
			b.WriteString("--")
		case isVMExecSafe(c):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "-%02X", c)
		}
	}
	return b.String()
}

func isVMExecSafe(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '.':
		return true
	default:
		return false
	}
}

// DecodeFromVMExec reverses EncodeForVMExec, used by tests and by any
// log output that needs to show the original path.
func DecodeFromVMExec(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '-' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("qrexec: truncated escape at end of %q", s)
		}
		if s[i+1] == '-' {
			b.WriteByte('-')
			i++
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("qrexec: truncated escape at %d in %q", i, s)
		}
		var v int
		if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &v); err != nil {
			return "", fmt.Errorf("qrexec: invalid escape %q: %w", s[i:i+3], err)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}
