package buildorch

import (
	"fmt"
	"regexp"
	"strings"
)

// Family identifies the packaging family a Distribution builds for.
type Family string

const (
	FamilyRPM  Family = "rpm"
	FamilyDeb  Family = "deb"
	FamilyArch Family = "archlinux"
	FamilyGentoo Family = "gentoo"
)

var (
	fedoraRE       = regexp.MustCompile(`^fc([0-9]+)$`)
	centosStreamRE = regexp.MustCompile(`^centos-stream([0-9]+)$`)
)

// debianReleases and ubuntuReleases mirror the version tables the
// upstream distribution resolver carries for Debian and Ubuntu, since
// those names don't follow a guessable pattern the way "fcNN" does.
var debianReleases = map[string]string{
	"stretch":  "9",
	"buster":   "10",
	"bullseye": "11",
	"bookworm": "12",
	"trixie":   "13",
}

var ubuntuReleases = map[string]string{
	"bionic": "18.04",
	"focal":  "20.04",
	"jammy":  "22.04",
	"noble":  "24.04",
}

var debianArchitectures = map[string]string{
	"x86_64":  "amd64",
	"ppc64le": "ppc64el",
}

// Distribution is a build target identified by
// "{package-set}-{name}[.arch]".
type Distribution struct {
	Raw          string
	PackageSet   string // "host" or "vm"
	Name         string // e.g. "fc38", "bookworm", "jammy", "archlinux"
	Architecture string

	Family       Family
	FullName     string // "fedora", "debian", "ubuntu", "archlinux", "gentoo"
	Version      string
	ReleaseTag   string // "fc38", "deb11u", "jammy"

	// Options is the free-form per-distribution config carried from the
	// resolved configuration (executor overrides, stage lists, etc).
	Options map[string]any
}

// ParseDistribution parses a "{package-set}-{name}[.arch]" identifier
// into a fully resolved Distribution.
func ParseDistribution(raw string, options map[string]any) (*Distribution, error) {
	var packageSet, rest string
	switch {
	case strings.HasPrefix(raw, "host-"):
		packageSet, rest = "host", strings.TrimPrefix(raw, "host-")
	case strings.HasPrefix(raw, "vm-"):
		packageSet, rest = "vm", strings.TrimPrefix(raw, "vm-")
	default:
		return nil, &DistributionError{Distribution: raw, Err: fmt.Errorf("package set must be 'host' or 'vm'")}
	}

	name := rest
	arch := "x86_64"
	if idx := strings.IndexByte(rest, '.'); idx >= 0 {
		name, arch = rest[:idx], rest[idx+1:]
	}

	d := &Distribution{
		Raw:          raw,
		PackageSet:   packageSet,
		Name:         name,
		Architecture: arch,
		Options:      options,
	}

	switch {
	case fedoraRE.MatchString(name):
		d.FullName = "fedora"
		d.Version = fedoraRE.FindStringSubmatch(name)[1]
		d.ReleaseTag = name
		d.Family = FamilyRPM
	case centosStreamRE.MatchString(name):
		d.FullName = "centos-stream"
		d.Version = centosStreamRE.FindStringSubmatch(name)[1]
		d.ReleaseTag = "el" + d.Version
		d.Family = FamilyRPM
	case debianReleases[name] != "":
		d.FullName = "debian"
		d.Version = debianReleases[name]
		d.Architecture = mapArch(debianArchitectures, d.Architecture)
		d.ReleaseTag = "deb" + d.Version + "u"
		d.Family = FamilyDeb
	case ubuntuReleases[name] != "":
		d.FullName = "ubuntu"
		d.Version = ubuntuReleases[name]
		d.Architecture = mapArch(debianArchitectures, d.Architecture)
		d.ReleaseTag = name
		d.Family = FamilyDeb
	case name == "archlinux":
		d.FullName = "archlinux"
		d.Version = "rolling"
		d.ReleaseTag = "archlinux"
		d.Family = FamilyArch
	case name == "gentoo":
		d.FullName = "gentoo"
		d.Version = "rolling"
		d.ReleaseTag = "gentoo"
		d.Family = FamilyGentoo
	default:
		return nil, &DistributionError{Distribution: raw, Err: fmt.Errorf("unsupported distribution %q", raw)}
	}

	return d, nil
}

func mapArch(table map[string]string, arch string) string {
	if v, ok := table[arch]; ok {
		return v
	}
	return arch
}

// String renders the canonical long form, e.g.
// "host-fedora-38.x86_64".
func (d *Distribution) String() string {
	return fmt.Sprintf("%s-%s-%s.%s", d.PackageSet, d.FullName, d.Version, d.Architecture)
}

func (d *Distribution) IsRPM() bool    { return d.Family == FamilyRPM }
func (d *Distribution) IsDeb() bool    { return d.Family == FamilyDeb }
func (d *Distribution) IsArch() bool   { return d.Family == FamilyArch }
func (d *Distribution) IsGentoo() bool { return d.Family == FamilyGentoo }
func (d *Distribution) IsUbuntu() bool { return d.FullName == "ubuntu" }

// Equal compares distributions by their raw identifier, matching the
// identity semantics used throughout the pipeline and config resolver.
func (d *Distribution) Equal(other *Distribution) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Raw == other.Raw
}
