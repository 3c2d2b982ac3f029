package buildorch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	digest "github.com/opencontainers/go-digest"
)

// ArtifactInfo is the record a stage plugin writes on successful
// completion: enough to let a later stage, or a re-run of the same
// stage, decide whether its prerequisite already happened and whether
// its inputs have changed since.
//
// Dual yaml/json tags mirror the teacher's artifact record convention
// (dalec's Spec/Source struct tagging) so the same type can be read
// back by both the artifact store and, if needed, surfaced over an
// introspection endpoint without a second type.
type ArtifactInfo struct {
	Stage        string            `yaml:"stage" json:"stage"`
	Component    string            `yaml:"component,omitempty" json:"component,omitempty"`
	Template     string            `yaml:"template,omitempty" json:"template,omitempty"`
	Distribution string            `yaml:"distribution,omitempty" json:"distribution,omitempty"`
	SourceHash   digest.Digest     `yaml:"source-hash,omitempty" json:"source-hash,omitempty"`
	Timestamp    string            `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	Packages     []string          `yaml:"packages,omitempty" json:"packages,omitempty"`
	Repository   string            `yaml:"repository,omitempty" json:"repository,omitempty"`
	Extra        map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`

	// GitCommitHash/GitVersionTags/Modules are populated by the fetch
	// stage (spec §3's Artifact Info Record field list): the head
	// commit of the checkout that was verified, the "v*" tags found
	// pointing at it, and, for components that declare module
	// sub-archives, the per-module commit hash and archive name.
	GitCommitHash  string          `yaml:"git-commit-hash,omitempty" json:"git-commit-hash,omitempty"`
	GitVersionTags []string        `yaml:"git-version-tags,omitempty" json:"git-version-tags,omitempty"`
	Modules        []ModuleRecord  `yaml:"modules,omitempty" json:"modules,omitempty"`

	// Srpm/Dsc/Rpms/Buildinfo hold prep/build outputs of the RPM and
	// DEB families. None of the stage plugins in this module set them.
	Srpm      string   `yaml:"srpm,omitempty" json:"srpm,omitempty"`
	Dsc       string   `yaml:"dsc,omitempty" json:"dsc,omitempty"`
	Rpms      []string `yaml:"rpms,omitempty" json:"rpms,omitempty"`
	Buildinfo string   `yaml:"buildinfo,omitempty" json:"buildinfo,omitempty"`

	// RepositoryPublish is the append-only publish history the
	// publish/unpublish lifecycle maintains (spec §8's
	// publish-monotonicity invariant): one entry per repository this
	// artifact has been published into, in append order.
	RepositoryPublish []RepositoryPublishEntry `yaml:"repository-publish,omitempty" json:"repository-publish,omitempty"`
}

// ModuleRecord names one component submodule's pinned commit and the
// deterministic archive name the fetch stage generated for it
// ("{module}-{shorthash}.tar.gz").
type ModuleRecord struct {
	Name    string `yaml:"name" json:"name"`
	Hash    string `yaml:"hash" json:"hash"`
	Archive string `yaml:"archive,omitempty" json:"archive,omitempty"`
}

// RepositoryPublishEntry records one publication of an artifact into
// a named repository, at the UTC timestamp (YYYYMMDDHHMM) publish
// assigned it — not the build timestamp.
type RepositoryPublishEntry struct {
	Name      string `yaml:"name" json:"name"`
	Timestamp string `yaml:"timestamp" json:"timestamp"`
}

// ArtifactKey names the on-disk file backing an ArtifactInfo:
// "{basename}.{stage}.yml" inside Dir. The key is a plain name, not
// derived from the record's contents; the skip rule reads the record
// back and compares its recorded source-hash.
type ArtifactKey struct {
	Dir      string
	Basename string
	Stage    string
}

func (k ArtifactKey) filename() string {
	return fmt.Sprintf("%s.%s.yml", k.Basename, k.Stage)
}

func (k ArtifactKey) Path() string {
	return filepath.Join(k.Dir, k.filename())
}

// Save serializes info as YAML and writes it atomically (write to a
// temp file, then rename) so a crash mid-write never leaves a
// half-written record that a later run could misread as success.
func (k ArtifactKey) Save(info *ArtifactInfo) error {
	b, err := yaml.Marshal(info)
	if err != nil {
		return &ConfigError{Path: k.Path(), Err: err}
	}
	if err := os.MkdirAll(k.Dir, 0o755); err != nil {
		return &ConfigError{Path: k.Dir, Err: err}
	}
	tmp, err := os.CreateTemp(k.Dir, "."+k.filename()+".tmp-*")
	if err != nil {
		return &ConfigError{Path: k.Dir, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return &ConfigError{Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ConfigError{Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), k.Path()); err != nil {
		return &ConfigError{Path: k.Path(), Err: err}
	}
	return nil
}

// Load reads and parses the record at k, returning (nil, nil) if no
// record exists yet — the normal "this stage hasn't run" state, not
// an error.
func (k ArtifactKey) Load() (*ArtifactInfo, error) {
	b, err := os.ReadFile(k.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ConfigError{Path: k.Path(), Err: err}
	}
	var info ArtifactInfo
	if err := yaml.Unmarshal(b, &info); err != nil {
		return nil, &ConfigError{Path: k.Path(), Err: err}
	}
	return &info, nil
}

// Delete removes the record at k, used by unpublish/uninstall flows.
// Deleting a record that doesn't exist is not an error.
func (k ArtifactKey) Delete() error {
	if err := os.Remove(k.Path()); err != nil && !os.IsNotExist(err) {
		return &ConfigError{Path: k.Path(), Err: err}
	}
	return nil
}

// ContentDigest computes the content-addressed digest of an
// ArtifactInfo's canonical YAML encoding, for comparing two records
// for equality without a byte-for-byte file diff. The skip rule does
// not use it; it compares source-hash fields directly.
func ContentDigest(info *ArtifactInfo) (digest.Digest, error) {
	b, err := yaml.Marshal(info)
	if err != nil {
		return "", err
	}
	return digest.FromBytes(b), nil
}
