// Package artifactstore implements the key scheme and skip-rule logic
// layered on top of the root package's ArtifactKey/ArtifactInfo
// record type: where on disk a stage's record lives for a given
// component/distribution/template job, and whether a stage can be
// skipped because its inputs haven't changed since it last ran.
package artifactstore

import (
	"path/filepath"

	"github.com/buildorch/buildorch"
)

// Store resolves artifact record locations under one artifacts root.
type Store struct {
	Root string
}

func New(root string) *Store {
	return &Store{Root: root}
}

// nodist is the literal distribution-less directory component used
// for stage records that apply to a component independent of any
// particular distribution (e.g. the fetch stage, which runs once per
// component regardless of how many distributions later build it).
const nodist = "nodist"

// ComponentKey returns the artifact key for a component's
// per-distribution stage record.
func (s *Store) ComponentKey(component *buildorch.Component, distribution *buildorch.Distribution, target *buildorch.BuildTarget, stage string) buildorch.ArtifactKey {
	dist := nodist
	if distribution != nil {
		dist = distribution.Raw
	}
	dir := filepath.Join(s.Root, component.Name, component.VerRel(), dist)
	basename := component.Name
	if target != nil {
		basename = target.Basename()
	}
	return buildorch.ArtifactKey{Dir: dir, Basename: basename, Stage: stage}
}

// TemplateKey returns the artifact key for a template's stage record.
func (s *Store) TemplateKey(template *buildorch.Template, stage string) buildorch.ArtifactKey {
	dir := filepath.Join(s.Root, "templates", template.FullName())
	return buildorch.ArtifactKey{Dir: dir, Basename: template.FullName(), Stage: stage}
}

// ShouldSkip implements the skip-rule: a stage may be skipped when an
// existing record for it already reflects the candidate source hash.
// Returns (skip=true, nil) only when a record exists AND its
// SourceHash matches candidateHash exactly; any other outcome
// (missing record, mismatched hash, unreadable record) means the
// stage must run.
func (s *Store) ShouldSkip(key buildorch.ArtifactKey, candidateHash string) (bool, error) {
	info, err := key.Load()
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, nil
	}
	return info.SourceHash.String() == candidateHash, nil
}

// SkipMessage renders the deterministic, idempotent message logged
// when a stage is skipped, so repeated runs against unchanged inputs
// produce byte-identical log lines (spec's skip-idempotence
// property).
func SkipMessage(stage, basename string) string {
	return basename + ": " + skipPhrase(stage)
}

// skipPhrase returns the stage-specific clause appended after
// "{basename}: " in a skip message. fetch gets its own wording
// ("source already fetched") since nothing has been hashed against a
// recorded source-hash yet at that point; every later stage reports
// the source-hash match against its own already-run record.
func skipPhrase(stage string) string {
	switch stage {
	case "fetch":
		return "source already fetched. Skipping."
	case "prep":
		return "Source hash is the same than already prepared source. Skipping."
	case "build":
		return "Source hash is the same than already built source. Skipping."
	default:
		return "Source hash is the same than already " + stage + " source. Skipping."
	}
}
