package config

import (
	"fmt"
	"regexp"
	"strings"
)

var safeTokenRE = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)

// suffixDenylist blocks any user-supplied string from masquerading as
// an artifact store record key, closing off a path-confusion attack
// where a malicious component name could otherwise shadow or
// overwrite another component's stage record.
var suffixDenylist = []string{
	".fetch.yml", ".prep.yml", ".build.yml", ".post.yml", ".verify.yml",
	".sign.yml", ".publish.yml", ".upload.yml", ".init-cache.yml",
}

// CheckSafe rejects strings that could escape their intended
// directory scope (".." path traversal) or collide with the artifact
// store's own "{basename}.{stage}.yml" naming convention. Applied to
// every user-supplied name pulled from configuration before it's used
// to build a filesystem path: component names, distribution names,
// override keys.
func CheckSafe(field, value string) error {
	if strings.Contains(value, "..") {
		return fmt.Errorf("config: %s %q contains '..'", field, value)
	}
	if strings.ContainsAny(value, "/\x00") {
		return fmt.Errorf("config: %s %q contains a path separator or NUL", field, value)
	}
	for _, suffix := range suffixDenylist {
		if strings.HasSuffix(value, suffix) {
			return fmt.Errorf("config: %s %q collides with an artifact record suffix %q", field, value, suffix)
		}
	}
	if !safeTokenRE.MatchString(value) {
		return fmt.Errorf("config: %s %q contains characters outside [A-Za-z0-9._+-]", field, value)
	}
	return nil
}
