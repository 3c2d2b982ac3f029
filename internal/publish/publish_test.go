package publish

import (
	"testing"
	"time"

	"github.com/buildorch/buildorch"
)

func TestMinAgeGateDefault(t *testing.T) {
	published := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	notYet := published.Add(3 * 24 * time.Hour)
	if eligible, _ := MinAgeGate(published, notYet, 0); eligible {
		t.Fatal("expected not yet eligible at 3 days with default 5-day gate")
	}

	ready := published.Add(5 * 24 * time.Hour)
	if eligible, _ := MinAgeGate(published, ready, 0); !eligible {
		t.Fatal("expected eligible at exactly 5 days")
	}
}

func TestMinAgeGateCustomDuration(t *testing.T) {
	published := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	now := published.Add(2 * 24 * time.Hour)
	if eligible, _ := MinAgeGate(published, now, 1); !eligible {
		t.Fatal("expected eligible with a 1-day gate after 2 days")
	}
}

func TestPackageSetMonotonicity(t *testing.T) {
	s := NewPackageSet()
	if !s.Publish("foo-1.0-1.fc38.rpm") {
		t.Fatal("expected first publish to succeed")
	}
	if s.Publish("foo-1.0-1.fc38.rpm") {
		t.Fatal("expected republish of the same name to be a no-op")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}

	empty := s.Unpublish("foo-1.0-1.fc38.rpm")
	if !empty {
		t.Fatal("expected set to report empty after removing its only entry")
	}
	if s.Len() != 0 {
		t.Fatalf("expected 0 entries after unpublish, got %d", s.Len())
	}
}

func TestCheckRepositoryAllowList(t *testing.T) {
	if err := CheckRepository(buildorch.FamilyRPM, "current-testing"); err != nil {
		t.Fatalf("expected current-testing to be allowed: %v", err)
	}
	if err := CheckRepository(buildorch.FamilyRPM, "nonexistent"); err == nil {
		t.Fatal("expected rejection of an unlisted repository")
	}
}
