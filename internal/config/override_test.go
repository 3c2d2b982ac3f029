package config

import "testing"

func TestApplyOverrideSetsNestedKey(t *testing.T) {
	doc := Raw{}
	if err := ApplyOverride(doc, "executor:type=docker"); err != nil {
		t.Fatal(err)
	}
	exec, _ := doc["executor"].(Raw)
	if exec["type"] != "docker" {
		t.Fatalf("got %v", exec)
	}
}

func TestApplyOverrideAppendsToList(t *testing.T) {
	doc := Raw{"distributions": []any{"host-fc38"}}
	if err := ApplyOverride(doc, "distributions+host-bookworm"); err != nil {
		t.Fatal(err)
	}
	dists, _ := doc["distributions"].([]any)
	if len(dists) != 2 || dists[1] != "host-bookworm" {
		t.Fatalf("got %v", dists)
	}
}

func TestApplyOverrideCoercesBoolAndInt(t *testing.T) {
	doc := Raw{}
	if err := ApplyOverride(doc, "automatic-upload-on-publish=true"); err != nil {
		t.Fatal(err)
	}
	if doc["automatic-upload-on-publish"] != true {
		t.Fatalf("got %v (%T)", doc["automatic-upload-on-publish"], doc["automatic-upload-on-publish"])
	}

	doc2 := Raw{}
	if err := ApplyOverride(doc2, "min-age-days=5"); err != nil {
		t.Fatal(err)
	}
	if doc2["min-age-days"] != int64(5) {
		t.Fatalf("got %v (%T)", doc2["min-age-days"], doc2["min-age-days"])
	}
}

func TestApplyOverrideRejectsUnsafeKey(t *testing.T) {
	doc := Raw{}
	if err := ApplyOverride(doc, "../escape=value"); err == nil {
		t.Fatal("expected rejection of path-traversal override key")
	}
}
