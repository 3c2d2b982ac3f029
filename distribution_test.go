package buildorch

import "testing"

func TestParseDistributionFedora(t *testing.T) {
	d, err := ParseDistribution("host-fc38", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.FullName != "fedora" || d.Version != "38" || d.Family != FamilyRPM || d.PackageSet != "host" {
		t.Fatalf("unexpected parse: %+v", d)
	}
	if d.Architecture != "x86_64" {
		t.Fatalf("expected default architecture, got %q", d.Architecture)
	}
}

func TestParseDistributionDebianMapsArchitecture(t *testing.T) {
	d, err := ParseDistribution("vm-bookworm.ppc64le", nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Family != FamilyDeb || d.Architecture != "ppc64el" {
		t.Fatalf("unexpected parse: %+v", d)
	}
}

func TestParseDistributionRejectsBadPackageSet(t *testing.T) {
	if _, err := ParseDistribution("desktop-fc38", nil); err == nil {
		t.Fatal("expected rejection of unknown package set prefix")
	}
}

func TestParseDistributionRejectsUnknownName(t *testing.T) {
	if _, err := ParseDistribution("host-solaris11", nil); err == nil {
		t.Fatal("expected rejection of unsupported distribution name")
	}
}

func TestDistributionEqual(t *testing.T) {
	a, _ := ParseDistribution("host-fc38", nil)
	b, _ := ParseDistribution("host-fc38", nil)
	c, _ := ParseDistribution("host-fc39", nil)
	if !a.Equal(b) {
		t.Fatal("expected equal distributions parsed from the same raw string")
	}
	if a.Equal(c) {
		t.Fatal("expected distinct distributions to compare unequal")
	}
}
