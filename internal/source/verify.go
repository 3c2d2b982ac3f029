package source

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/sign"
)

// shortHashRE matches the abbreviated commit hash git prints for
// "rev-parse --short HEAD" (7+ hex digits, the same shape the
// original implementation validates submodule commits against).
var shortHashRE = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// validSigRE extracts the signer fingerprint from a gpg --status-fd
// "VALIDSIG" line: "[GNUPG:] VALIDSIG <fpr> <date> ...".
var validSigRE = regexp.MustCompile(`VALIDSIG ([0-9A-F]{40})`)

// verifyCheckout authenticates the tip of component's checkout
// according to its configured VerificationMode, run directly against
// the host-side copy (after CopyOut) since the signed-tag path needs
// to parse gpg's status output to count distinct signers, not merely
// check a command's exit code.
func verifyCheckout(component *buildorch.Component, keyringDir string) error {
	switch component.Verification {
	case buildorch.VerificationInsecure, "":
		return nil

	case buildorch.VerificationSignedCommit:
		out, err := runGit(component.SourceDir, keyringDir, "verify-commit", "--raw", "HEAD")
		if err != nil {
			return fmt.Errorf("verify signed commit: %w", err)
		}
		if !strings.Contains(out, "VALIDSIG") {
			return fmt.Errorf("verify signed commit: no valid signature on HEAD")
		}
		return nil

	case buildorch.VerificationSignedTag:
		return verifySignedTags(component, keyringDir)

	default:
		return fmt.Errorf("unknown verification mode %q", component.Verification)
	}
}

// verifySignedTags checks every "v*" tag pointing at HEAD and
// requires at least MinDistinctMaintainers of them to carry a valid
// signature from a distinct configured maintainer key before the
// checkout is accepted (at least one when MinDistinctMaintainers is
// unset; raising it keeps a single maintainer key from being enough).
func verifySignedTags(component *buildorch.Component, keyringDir string) error {
	tags, err := component.VersionTagsAtHead()
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		if component.FetchOnlyVersionTags {
			return fmt.Errorf("no version tags at HEAD to verify")
		}
		return fmt.Errorf("signed-tag verification requires at least one version tag at HEAD")
	}

	signers := map[string]bool{}
	for _, tag := range tags {
		out, err := runGit(component.SourceDir, keyringDir, "verify-tag", "--raw", tag)
		if err != nil {
			continue
		}
		for _, m := range validSigRE.FindAllStringSubmatch(out, -1) {
			fpr := m[1]
			if maintainerAllowed(fpr, component.Maintainers) {
				signers[fpr] = true
			}
		}
	}

	if !sign.MaintainerThresholdMet(len(signers), component.MinDistinctMaintainers) {
		return fmt.Errorf("Not enough distinct tag signatures. Found %d, mandatory minimum is %d.",
			len(signers), effectiveMinDistinct(component.MinDistinctMaintainers))
	}
	return nil
}

func effectiveMinDistinct(minDistinct int) int {
	if minDistinct <= 0 {
		return 1
	}
	return minDistinct
}

// maintainerAllowed reports whether fpr matches one of the configured
// maintainer fingerprints. An empty maintainers list means any key
// the scratch keyring already trusts is accepted — the keyring
// membership itself is the access control.
func maintainerAllowed(fpr string, maintainers []string) bool {
	if len(maintainers) == 0 {
		return true
	}
	for _, m := range maintainers {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if fpr == m || strings.HasSuffix(fpr, m) {
			return true
		}
	}
	return false
}

// runGit runs a git subcommand against sourceDir with gpg's machine-
// readable status output enabled, using keyringDir as GNUPGHOME when
// set (a scratch homedir the caller has already populated with
// maintainer public keys). Both stdout and stderr are returned
// combined since git writes gpg's status lines to stderr.
func runGit(sourceDir, keyringDir string, args ...string) (string, error) {
	full := append([]string{"-c", "gpg.program=gpg", "--no-pager", "-C", sourceDir}, args...)
	cmd := exec.Command("git", full...)
	if keyringDir != "" {
		cmd.Env = append(cmd.Environ(), "GNUPGHOME="+keyringDir)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
