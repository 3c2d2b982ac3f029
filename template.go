package buildorch

import (
	"fmt"
	"regexp"
)

var timestampRE = regexp.MustCompile(`^[0-9]{12}$`)

// Template is a TemplateVM build: a Distribution plus a named flavor
// (e.g. "xfce", "minimal", "whonix-gateway") and the free-form options
// a template's build/prep plugins consume (package lists, postinstall
// hooks).
type Template struct {
	Name         string
	Distribution *Distribution
	Flavor       string
	Options      map[string]any

	BuildTimeoutSeconds int

	// Timestamp is set by AssignTimestamp, which refuses to replace
	// it with a different value once set, so an Artifact Info Record
	// sequence can name one coherent build. The template stage plugin
	// (internal/template) does not assign it.
	Timestamp string
}

// FullName renders "{name}-{flavor}" or plain "{name}" when no flavor
// is set, matching the on-disk template directory naming convention.
func (t *Template) FullName() string {
	if t.Flavor == "" {
		return t.Name
	}
	return fmt.Sprintf("%s-%s", t.Name, t.Flavor)
}

// AssignTimestamp sets Timestamp to ts (format YYYYMMDDHHMM) if it
// has not already been assigned. Returns an error if ts is malformed
// or a timestamp was already assigned with a different value, since a
// template build must produce one coherent timestamp across its
// entire stage sequence.
func (t *Template) AssignTimestamp(ts string) error {
	if !timestampRE.MatchString(ts) {
		return &TemplateError{Template: t.FullName(), Err: fmt.Errorf("malformed timestamp %q", ts)}
	}
	if t.Timestamp != "" && t.Timestamp != ts {
		return &TemplateError{Template: t.FullName(), Err: fmt.Errorf("timestamp already assigned as %q, refusing to overwrite with %q", t.Timestamp, ts)}
	}
	t.Timestamp = ts
	return nil
}
