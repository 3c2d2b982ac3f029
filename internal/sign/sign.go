// Package sign holds signing helpers: a source-verification command
// builder (commit/tag signature checking), the distinct-maintainer
// threshold check, and a detached-signature command builder. Of
// these, only MaintainerThresholdMet has a caller in this module: the
// distro plugins' sign stages and internal/source's verification
// build their own command lines.
package sign

import (
	"fmt"

	"github.com/buildorch/buildorch"
)

// DetachedSignCommand renders the gpg invocation used to produce a
// detached signature for path, signed by keyID (--batch --yes to
// never block on a TTY prompt inside a sandbox).
func DetachedSignCommand(keyID, path string) string {
	return fmt.Sprintf("gpg --batch --yes --local-user %s --detach-sign --armor %s", keyID, path)
}

// VerifySourceCommand renders the git command that verifies a signed
// commit or tag for the given verification mode, or "" for the
// insecure mode. keyringPath is not used in the rendered command.
func VerifySourceCommand(mode buildorch.VerificationMode, ref, keyringPath string) (string, error) {
	switch mode {
	case buildorch.VerificationInsecure:
		return "", nil
	case buildorch.VerificationSignedCommit:
		return fmt.Sprintf("git -c gpg.program=gpg --no-pager verify-commit --raw %s", ref), nil
	case buildorch.VerificationSignedTag:
		return fmt.Sprintf("git -c gpg.program=gpg --no-pager verify-tag --raw %s", ref), nil
	default:
		return "", fmt.Errorf("sign: unknown verification mode %q", mode)
	}
}

// MaintainerThresholdMet reports whether distinctSigners meets
// minDistinct, the SignedTag verification mode's requirement that a
// release be attested by at least minDistinct distinct maintainers
// before it's trusted. A minDistinct of zero or less counts as 1, so
// by default one maintainer's signature suffices.
func MaintainerThresholdMet(distinctSigners, minDistinct int) bool {
	if minDistinct <= 0 {
		minDistinct = 1
	}
	return distinctSigners >= minDistinct
}
