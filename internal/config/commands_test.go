package config

import "testing"

func TestParseCommandLineSplitsQuotedArgs(t *testing.T) {
	tokens, err := ParseCommandLine(`rpmbuild --define "_topdir /builder/build" -bs foo.spec`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"rpmbuild", "--define", "_topdir /builder/build", "-bs", "foo.spec"}
	if len(tokens) != len(want) {
		t.Fatalf("got %v", tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, tokens[i], want[i])
		}
	}
}

func TestParseCommandLineRejectsEmpty(t *testing.T) {
	if _, err := ParseCommandLine(""); err == nil {
		t.Fatal("expected rejection of empty command")
	}
}
