package source

import (
	"strings"
	"testing"

	"github.com/buildorch/buildorch"
	"github.com/buildorch/buildorch/internal/config"
	"github.com/buildorch/buildorch/internal/pluginmgr"
)

func TestShellQuoteEscapesEmbeddedQuote(t *testing.T) {
	got := shellQuote("it's a branch")
	want := `'it'\''s a branch'`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOptionsToConfigRequiresURL(t *testing.T) {
	_, err := optionsToConfig(pluginmgr.RunArgs{Component: "linux-kernel"})
	if err == nil {
		t.Fatal("expected an error when no url is configured")
	}
}

func TestOptionsToConfigDefaults(t *testing.T) {
	cfg, err := optionsToConfig(pluginmgr.RunArgs{
		Component: "linux-kernel",
		Options:   map[string]any{"url": "https://example.org/repo.git"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.branch != "main" {
		t.Fatalf("expected default branch %q, got %q", "main", cfg.branch)
	}
	if cfg.verification != buildorch.VerificationInsecure {
		t.Fatalf("expected default verification insecure, got %q", cfg.verification)
	}
	if cfg.artifactsDir != "artifacts" || cfg.sourcesHostDir != "sources" || cfg.distfilesHostDir != "distfiles" {
		t.Fatalf("unexpected default dirs: %+v", cfg)
	}
}

func TestOptionsToConfigDecodesMaintainersFromAnySlice(t *testing.T) {
	cfg, err := optionsToConfig(pluginmgr.RunArgs{
		Component: "linux-kernel",
		Options: map[string]any{
			"url":                      "https://example.org/repo.git",
			"verification":             "signed-tag",
			"maintainers":              []any{"AAAA", "BBBB"},
			"min-distinct-maintainers": "2",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.maintainers) != 2 || cfg.maintainers[1] != "BBBB" {
		t.Fatalf("unexpected maintainers: %+v", cfg.maintainers)
	}
	if cfg.minDistinctMaintainers != 2 {
		t.Fatalf("expected min-distinct-maintainers 2, got %d", cfg.minDistinctMaintainers)
	}
	if cfg.verification != buildorch.VerificationSignedTag {
		t.Fatalf("expected signed-tag verification, got %q", cfg.verification)
	}
}

func TestFileCommandsIncludesChecksumAndUncompress(t *testing.T) {
	cmds := fileCommands(config.FileEntry{
		URL:        "https://example.org/dist/foo-1.0.tar.gz",
		SHA256:     "deadbeef",
		Uncompress: true,
	})
	joined := strings.Join(cmds, "\n")
	if !strings.Contains(joined, "curl -fsSL -o @DISTFILES_DIR@/foo-1.0.tar.gz") {
		t.Fatalf("expected a download command, got: %s", joined)
	}
	if !strings.Contains(joined, "sha256sum -c") {
		t.Fatalf("expected a checksum command, got: %s", joined)
	}
	if !strings.Contains(joined, "gunzip") {
		t.Fatalf("expected an uncompress command for a .tar.gz, got: %s", joined)
	}
}

func TestFileCommandsSkipsSignatureWhenNotDeclared(t *testing.T) {
	cmds := fileCommands(config.FileEntry{URL: "https://example.org/dist/foo-1.0.tar"})
	for _, c := range cmds {
		if strings.Contains(c, "gpg") {
			t.Fatalf("expected no gpg verification step, got: %s", c)
		}
	}
}

func TestMaintainerAllowedEmptyListAllowsAny(t *testing.T) {
	if !maintainerAllowed("ABCDEF0123456789", nil) {
		t.Fatal("expected an empty maintainer allow-list to accept any signer")
	}
}

func TestMaintainerAllowedMatchesSuffix(t *testing.T) {
	if !maintainerAllowed("AAAABBBBCCCCDDDD0123456789", []string{"0123456789"}) {
		t.Fatal("expected a configured fingerprint suffix to match")
	}
	if maintainerAllowed("AAAABBBBCCCCDDDD0123456789", []string{"FFFFFFFFFF"}) {
		t.Fatal("expected a non-matching fingerprint to be rejected")
	}
}

func TestEffectiveMinDistinctDefaultsToOne(t *testing.T) {
	if effectiveMinDistinct(0) != 1 {
		t.Fatalf("expected default minimum of 1, got %d", effectiveMinDistinct(0))
	}
	if effectiveMinDistinct(3) != 3 {
		t.Fatalf("expected configured minimum to pass through, got %d", effectiveMinDistinct(3))
	}
}

func TestVerifyCheckoutInsecureIsNoop(t *testing.T) {
	c := &buildorch.Component{Name: "x", Verification: buildorch.VerificationInsecure}
	if err := verifyCheckout(c, ""); err != nil {
		t.Fatalf("insecure verification should never fail, got: %v", err)
	}
}

func TestFactoryNameAndInstances(t *testing.T) {
	f := &factory{}
	if f.Name() != "source" {
		t.Fatalf("unexpected factory name %q", f.Name())
	}
	instances, err := f.Instances(pluginmgr.RunArgs{Component: "linux-kernel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected exactly one plugin instance, got %d", len(instances))
	}
	if got := instances[0].Stages(); len(got) != 1 || got[0] != "fetch" {
		t.Fatalf("expected the fetch stage only, got %+v", got)
	}
}
