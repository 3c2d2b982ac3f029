// Package publish implements the gated promotion of a built package
// from a testing repository to a stable one: the min-age gate and
// per-family repository allow-lists, grounded on the original
// implementation's plugins/publish/__init__.py.
package publish

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildorch/buildorch"
)

// DefaultMinAgeDays is how long a package must have sat in a testing
// repository before it's eligible for promotion to stable, absent an
// explicit override.
const DefaultMinAgeDays = 5

// Family-scoped repository allow-lists. Publish refuses to target any
// repository name outside these sets, closing off a misconfigured or
// malicious "-o repository=" override from writing into a repository
// path the family was never meant to have.
var allowedRepos = map[buildorch.Family]map[string]bool{
	buildorch.FamilyRPM: {
		"current": true, "current-testing": true,
		"security-testing": true, "unstable": true,
	},
	buildorch.FamilyDeb: {
		"current": true, "current-testing": true,
		"security-testing": true, "unstable": true,
	},
	buildorch.FamilyArch: {
		"current": true, "current-testing": true, "unstable": true,
	},
}

// templateAllowedRepos is the separate allow-list TemplateVM builds
// publish into, distinct from package-family repos.
var templateAllowedRepos = map[string]bool{
	"templates-itl":            true,
	"templates-itl-testing":    true,
	"templates-community":      true,
	"templates-community-testing": true,
}

// CheckRepository validates that repo is allowed for family.
func CheckRepository(family buildorch.Family, repo string) error {
	repo = strings.ToLower(repo)
	if allowed, ok := allowedRepos[family]; ok && allowed[repo] {
		return nil
	}
	return fmt.Errorf("publish: repository %q is not allowed for family %q", repo, family)
}

// CheckTemplateRepository validates repo against the template allow-list.
func CheckTemplateRepository(repo string) error {
	if templateAllowedRepos[strings.ToLower(repo)] {
		return nil
	}
	return fmt.Errorf("publish: repository %q is not an allowed template repository", repo)
}

// Repository tiers: a "testing" repo is directly publishable, a
// "stable" one requires MinAgeGate residency in a testing repo first.
const (
	TierTesting = "testing"
	TierStable  = "stable"
)

var repoTier = map[string]string{
	"current":          TierStable,
	"current-testing":  TierTesting,
	"security-testing": TierTesting,
	"unstable":         TierTesting,
}

var templateRepoTier = map[string]string{
	"templates-itl":               TierStable,
	"templates-itl-testing":       TierTesting,
	"templates-community":         TierStable,
	"templates-community-testing": TierTesting,
}

// RepoTier reports the tier of a package-family repository name.
func RepoTier(repo string) string { return repoTier[strings.ToLower(repo)] }

// TemplateRepoTier reports the tier of a template repository name.
func TemplateRepoTier(repo string) string { return templateRepoTier[strings.ToLower(repo)] }

// TimestampLayout is the "YYYYMMDDHHMM" format RepositoryPublishEntry
// timestamps are stamped in, matching the template build-timestamp
// convention (template.Stamp) this tree already uses elsewhere.
const TimestampLayout = "200601021504"

// CheckPromotion enforces spec §8's min-age gate before a publish
// targeting a stable-tier repository is allowed to proceed: the
// artifact's existing publish history must already contain an entry
// in a testing-tier repository whose timestamp is at least minAgeDays
// old. Requests targeting a testing-tier repository always pass; a
// stable-tier request with ignoreMinAge set (the CLI's
// --ignore-min-age flag) also always passes. tier resolves a
// repository name to TierTesting/TierStable for either the
// package-family (RepoTier) or template (TemplateRepoTier) allow-list.
func CheckPromotion(repo string, tier func(string) string, existing []buildorch.RepositoryPublishEntry, now time.Time, minAgeDays int, ignoreMinAge bool) error {
	if tier(repo) != TierStable || ignoreMinAge {
		return nil
	}

	var testingAt time.Time
	var found bool
	for _, e := range existing {
		if tier(e.Name) != TierTesting {
			continue
		}
		t, err := time.Parse(TimestampLayout, e.Timestamp)
		if err != nil {
			continue
		}
		if !found || t.After(testingAt) {
			testingAt = t
			found = true
		}
	}
	if !found {
		return fmt.Errorf("publish: refusing to publish to %q: not yet published to a testing repository for at least %d days", repo, effectiveMinAgeDays(minAgeDays))
	}

	eligible, remaining := MinAgeGate(testingAt, now, minAgeDays)
	if !eligible {
		return fmt.Errorf("publish: refusing to publish to %q: packages are not in a testing repository for at least %d days yet (%s remaining)",
			repo, effectiveMinAgeDays(minAgeDays), remaining.Round(time.Hour))
	}
	return nil
}

// ArtifactKey locates the publish-stage artifact record a distro or
// template plugin's publish method reads and appends to: one record
// per (component-or-template, distribution, basename), under the
// dedicated "publish" stage so it never collides with the build
// stage's own record for the same target.
func ArtifactKey(artifactsDir, component, distribution, basename string) buildorch.ArtifactKey {
	dir := filepath.Join(artifactsDir, component, distribution)
	return buildorch.ArtifactKey{Dir: dir, Basename: basename, Stage: "publish"}
}

func effectiveMinAgeDays(minAgeDays int) int {
	if minAgeDays <= 0 {
		return DefaultMinAgeDays
	}
	return minAgeDays
}

// MinAgeGate decides whether a package first published to testing at
// testingPublishedAt is old enough to promote to stable, given
// minAgeDays (DefaultMinAgeDays when zero). now is passed in rather
// than read from the clock so the gate is deterministic and testable.
func MinAgeGate(testingPublishedAt, now time.Time, minAgeDays int) (eligible bool, remaining time.Duration) {
	if minAgeDays <= 0 {
		minAgeDays = DefaultMinAgeDays
	}
	threshold := testingPublishedAt.Add(time.Duration(minAgeDays) * 24 * time.Hour)
	if now.Before(threshold) {
		return false, threshold.Sub(now)
	}
	return true, 0
}

// PackageSet tracks which packages a component has ever published
// into a given repository, modeled as an append/remove-by-name/
// delete-when-empty set: Publish appends a name that isn't already
// present, Unpublish removes it, and the controlling artifact record
// is deleted once the set is empty (there's nothing left to
// remember).
type PackageSet struct {
	names map[string]bool
}

func NewPackageSet() *PackageSet {
	return &PackageSet{names: map[string]bool{}}
}

// Publish adds name if not already present. Returns false if name was
// already published (a no-op republish, not an error).
func (s *PackageSet) Publish(name string) bool {
	if s.names[name] {
		return false
	}
	s.names[name] = true
	return true
}

// Unpublish removes name, returning true if the set is now empty
// (signalling the caller should delete the backing artifact record
// entirely rather than write an empty one).
func (s *PackageSet) Unpublish(name string) (empty bool) {
	delete(s.names, name)
	return len(s.names) == 0
}

func (s *PackageSet) Names() []string {
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	return names
}

func (s *PackageSet) Len() int { return len(s.names) }
