package buildorch

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// VerificationMode controls how Fetch authenticates the tip of a
// Component's Git history.
type VerificationMode string

const (
	VerificationInsecure     VerificationMode = "insecure"
	VerificationSignedCommit VerificationMode = "signed-commit"
	VerificationSignedTag    VerificationMode = "signed-tag"
)

var (
	versionRE = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
	releaseRE = regexp.MustCompile(`^[0-9]+(\..*)?$`)
)

// Component is a named upstream source tree built independently of
// every other component.
type Component struct {
	Name       string
	SourceDir  string
	URL        string
	Branch     string
	Maintainers []string
	Verification VerificationMode

	FetchTimeoutSeconds int
	FetchOnlyVersionTags bool
	MinDistinctMaintainers int

	IsPlugin    bool
	HasPackages bool

	// DevelPath, when non-empty, is a file incremented exactly once per
	// pipeline run before any prep step consumes it.
	DevelPath string

	// Lazy, derived fields. Populated by ResolveVersion / ResolveSourceHash.
	Version     string
	Release     string
	Devel       string
	sourceHash  digest.Digest
	headCommit  string
	versionTags []string
}

// VerRel is "version-release[.devel]", the canonical artifact key
// component.
func (c *Component) VerRel() string {
	nvr := fmt.Sprintf("%s-%s", c.Version, c.Release)
	if c.Devel != "" {
		nvr = fmt.Sprintf("%s.%s", nvr, c.Devel)
	}
	return nvr
}

// IncrementDevel bumps the on-disk devel counter by one and records
// the new value on the Component. Must be called at most once per
// pipeline run, before any prep step reads c.Devel.
func (c *Component) IncrementDevel() error {
	if c.DevelPath == "" {
		return &ComponentError{Component: c.Name, Err: errors.New("devel path not configured")}
	}
	devel := 1
	if b, err := os.ReadFile(c.DevelPath); err == nil {
		line := firstLine(string(b))
		n, convErr := strconv.Atoi(line)
		if convErr != nil || n < 0 {
			return &ComponentError{Component: c.Name, Err: fmt.Errorf("invalid devel version %q", line)}
		}
		devel = n + 1
	}
	if err := os.MkdirAll(filepath.Dir(c.DevelPath), 0o755); err != nil {
		return &ComponentError{Component: c.Name, Err: err}
	}
	if err := os.WriteFile(c.DevelPath, []byte(strconv.Itoa(devel)), 0o644); err != nil {
		return &ComponentError{Component: c.Name, Err: err}
	}
	c.Devel = strconv.Itoa(devel)
	return nil
}

// ResolveVersion reads the version/rel files (or falls back to `git
// describe`) and validates the version/release purity invariant
// (spec §8): version matches ^[0-9]+(\.[0-9]+)*$, release matches
// ^[0-9]+(\..*)?$.
func (c *Component) ResolveVersion() error {
	if _, err := os.Stat(c.SourceDir); err != nil {
		return &ComponentError{Component: c.Name, Err: errors.Wrap(err, "source directory missing")}
	}

	version, release := "", ""
	versionFile := filepath.Join(c.SourceDir, "version")
	if b, err := os.ReadFile(versionFile); err == nil {
		version = firstLine(string(b))
	} else {
		out, gitErr := exec.Command("git", "-C", c.SourceDir, "describe", "--match=v*", "--abbrev=0").Output()
		if gitErr == nil && len(out) > 0 {
			described := firstLine(string(out))
			described = strings.TrimPrefix(described, "v")
			if idx := strings.IndexByte(described, '-'); idx >= 0 {
				version, release = described[:idx], described[idx+1:]
			} else {
				version = described
			}
		}
	}
	if version == "" {
		return &ComponentError{Component: c.Name, Err: errors.New("cannot determine version")}
	}
	if !versionRE.MatchString(version) {
		return &ComponentError{Component: c.Name, Err: fmt.Errorf("invalid version %q", version)}
	}

	if release == "" {
		releaseFile := filepath.Join(c.SourceDir, "rel")
		if b, err := os.ReadFile(releaseFile); err == nil {
			release = firstLine(string(b))
		} else {
			release = "1"
		}
	}
	if !releaseRE.MatchString(release) {
		return &ComponentError{Component: c.Name, Err: fmt.Errorf("invalid release %q", release)}
	}

	devel := ""
	if c.DevelPath != "" {
		if b, err := os.ReadFile(c.DevelPath); err == nil {
			devel = firstLine(string(b))
			if !regexp.MustCompile(`^[0-9]+$`).MatchString(devel) {
				return &ComponentError{Component: c.Name, Err: fmt.Errorf("invalid devel version %q", devel)}
			}
		}
	}

	c.Version, c.Release, c.Devel = version, release, devel
	return nil
}

func firstLine(s string) string {
	scanner := bufio.NewScanner(strings.NewReader(s))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// HeadCommit returns the hash of HEAD^{} for the component's checkout.
func (c *Component) HeadCommit() (string, error) {
	if c.headCommit != "" {
		return c.headCommit, nil
	}
	cmd := exec.Command("git", "-C", c.SourceDir, "rev-parse", "HEAD^{}")
	out, err := cmd.Output()
	if err != nil {
		return "", &ComponentError{Component: c.Name, Err: errors.Wrap(err, "rev-parse HEAD")}
	}
	c.headCommit = strings.TrimSpace(string(out))
	return c.headCommit, nil
}

// VersionTagsAtHead lists every "v*" tag pointing at HEAD, used by
// SignedTag verification to find candidate signatures.
func (c *Component) VersionTagsAtHead() ([]string, error) {
	if c.versionTags != nil {
		return c.versionTags, nil
	}
	head, err := c.HeadCommit()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("git", "-C", c.SourceDir, "tag", "--points-at", head)
	out, err := cmd.Output()
	if err != nil {
		return nil, &ComponentError{Component: c.Name, Err: errors.Wrap(err, "tag --points-at")}
	}
	var tags []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "v") {
			tags = append(tags, line)
		}
	}
	c.versionTags = tags
	return tags, nil
}

// SourceHash computes the SHA-512 content digest over the sorted,
// gitignore-filtered source tree (excluding .git), satisfying the
// source-hash stability invariant: two independent computations over
// the same content, regardless of mtime or directory-entry order,
// yield identical digests.
func (c *Component) SourceHash() (digest.Digest, error) {
	h := digest.SHA512.Digester()
	if err := hashDir(c.SourceDir, c.SourceDir, h.Hash()); err != nil {
		return "", &ComponentError{Component: c.Name, Err: err}
	}
	c.sourceHash = h.Digest()
	return c.sourceHash, nil
}

func hashDir(root, dir string, h interface{ Write([]byte) (int, error) }) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read dir %s", dir)
	}

	matcher, err := gitignoreMatcher(root)
	if err != nil {
		return err
	}

	type named struct {
		name string
		path string
		dir  bool
	}
	var names []named
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		full := filepath.Join(dir, e.Name())
		rel, _ := filepath.Rel(root, full)
		if matcher != nil {
			ignored, mErr := matcher.MatchesOrParentMatches(filepath.ToSlash(rel))
			if mErr == nil && ignored {
				continue
			}
		}
		names = append(names, named{name: e.Name(), path: full, dir: e.IsDir()})
	}

	// Sort case-insensitively for cross-filesystem stability: entry
	// order on disk must never affect the resulting digest.
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i].name) < strings.ToLower(names[j].name)
	})

	for _, n := range names {
		if _, err := h.Write([]byte(n.name)); err != nil {
			return err
		}
		if n.dir {
			if err := hashDir(root, n.path, h); err != nil {
				return err
			}
			continue
		}
		f, err := os.Open(n.path)
		if err != nil {
			return err
		}
		buf := make([]byte, 4096)
		for {
			read, readErr := f.Read(buf)
			if read > 0 {
				if _, werr := h.Write(buf[:read]); werr != nil {
					f.Close()
					return werr
				}
			}
			if readErr != nil {
				break
			}
		}
		f.Close()
	}
	return nil
}
