package buildorch

import "testing"

func TestTemplateFullName(t *testing.T) {
	tmpl := &Template{Name: "fedora-38"}
	if tmpl.FullName() != "fedora-38" {
		t.Fatalf("got %q", tmpl.FullName())
	}
	tmpl.Flavor = "xfce"
	if tmpl.FullName() != "fedora-38-xfce" {
		t.Fatalf("got %q", tmpl.FullName())
	}
}

func TestAssignTimestampOnceThenStable(t *testing.T) {
	tmpl := &Template{Name: "fedora-38"}
	if err := tmpl.AssignTimestamp("202607310000"); err != nil {
		t.Fatal(err)
	}
	if err := tmpl.AssignTimestamp("202607310000"); err != nil {
		t.Fatalf("re-assigning the same timestamp should be a no-op: %v", err)
	}
	if err := tmpl.AssignTimestamp("202607310001"); err == nil {
		t.Fatal("expected rejection of a conflicting timestamp")
	}
}

func TestAssignTimestampRejectsMalformed(t *testing.T) {
	tmpl := &Template{Name: "fedora-38"}
	if err := tmpl.AssignTimestamp("not-a-timestamp"); err == nil {
		t.Fatal("expected rejection of malformed timestamp")
	}
}
