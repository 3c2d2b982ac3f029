package config

import "testing"

func TestCheckSafeRejectsTraversal(t *testing.T) {
	if err := CheckSafe("component name", "../etc"); err == nil {
		t.Fatal("expected rejection")
	}
}

func TestCheckSafeRejectsArtifactSuffixCollision(t *testing.T) {
	if err := CheckSafe("component name", "foo.publish.yml"); err == nil {
		t.Fatal("expected rejection")
	}
}

func TestCheckSafeAcceptsOrdinaryName(t *testing.T) {
	if err := CheckSafe("component name", "linux-kernel"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}
