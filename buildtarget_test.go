package buildorch

import "testing"

func TestMangleReplacesSlashes(t *testing.T) {
	bt := &BuildTarget{Path: "rpm_spec/foo.spec"}
	if bt.Mangle() != "rpm_spec_foo.spec" {
		t.Fatalf("got %q", bt.Mangle())
	}
}

func TestTargetSetRejectsCollision(t *testing.T) {
	comp := &Component{Name: "foo"}
	dist := &Distribution{Raw: "host-fc38"}
	ts := NewTargetSet()

	a := &BuildTarget{Component: comp, Distribution: dist, Path: "rpm_spec/foo.spec"}
	b := &BuildTarget{Component: comp, Distribution: dist, Path: "rpm_spec_foo.spec"}

	if err := ts.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := ts.Add(b); err == nil {
		t.Fatal("expected collision error: both mangle to the same basename")
	}
}

func TestTargetSetAllowsDistinctDistributions(t *testing.T) {
	comp := &Component{Name: "foo"}
	distA := &Distribution{Raw: "host-fc38"}
	distB := &Distribution{Raw: "host-bookworm"}
	ts := NewTargetSet()

	a := &BuildTarget{Component: comp, Distribution: distA, Path: "rpm_spec/foo.spec"}
	b := &BuildTarget{Component: comp, Distribution: distB, Path: "rpm_spec/foo.spec"}

	if err := ts.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := ts.Add(b); err != nil {
		t.Fatalf("distinct distributions should not collide: %v", err)
	}
}
