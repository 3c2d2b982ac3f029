package config

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/invopop/jsonschema"

	"github.com/buildorch/buildorch/internal/logging"
)

// Config is the fully resolved, typed view over a merged Raw
// document: the set of components, distributions, and templates the
// pipeline will schedule jobs for, plus the default executor layer.
type Config struct {
	ArtifactsDir  string
	PluginsDirs   []string
	Components    []ComponentConfig
	Distributions []string
	Templates     []TemplateConfig
	DefaultExecutor Raw
	StageExecutors  map[string]Raw
}

type ComponentConfig struct {
	Name       string
	URL        string
	Branch     string
	Executor   Raw
	Maintainers []string
	Options    map[string]any
}

type TemplateConfig struct {
	Name         string
	Distribution string
	Flavor       string
	Options      map[string]any
}

// FromRaw decodes a merged Raw document into a Config, validating
// every name field through CheckSafe before it can reach a filesystem
// path anywhere downstream.
func FromRaw(doc Raw) (*Config, error) {
	cfg := &Config{
		StageExecutors: map[string]Raw{},
	}

	if v, ok := doc["artifacts-dir"].(string); ok {
		cfg.ArtifactsDir = v
	}
	if dirs, ok := doc["plugins-dirs"].([]any); ok {
		for _, d := range dirs {
			if s, ok := d.(string); ok {
				cfg.PluginsDirs = append(cfg.PluginsDirs, s)
			}
		}
	}
	if dists, ok := doc["distributions"].([]any); ok {
		for _, d := range dists {
			if s, ok := d.(string); ok {
				if err := CheckSafe("distribution", s); err != nil {
					return nil, err
				}
				cfg.Distributions = append(cfg.Distributions, s)
			}
		}
	}
	if execRaw, ok := doc["executor"].(Raw); ok {
		cfg.DefaultExecutor = execRaw
	}

	if components, ok := doc["components"].([]any); ok {
		for _, c := range components {
			cc, err := decodeComponent(c)
			if err != nil {
				return nil, err
			}
			cfg.Components = append(cfg.Components, cc)
		}
	}

	if templates, ok := doc["templates"].([]any); ok {
		for _, t := range templates {
			tc, err := decodeTemplate(t)
			if err != nil {
				return nil, err
			}
			cfg.Templates = append(cfg.Templates, tc)
		}
	}

	return cfg, nil
}

func decodeComponent(v any) (ComponentConfig, error) {
	m, ok := asRaw(v)
	if !ok {
		return ComponentConfig{}, fmt.Errorf("config: component entry is not a map: %T", v)
	}
	name, _ := m["name"].(string)
	if err := CheckSafe("component name", name); err != nil {
		return ComponentConfig{}, err
	}
	cc := ComponentConfig{Name: name}
	cc.URL, _ = m["url"].(string)
	cc.Branch, _ = m["branch"].(string)
	if exec, ok := m["executor"].(Raw); ok {
		cc.Executor = exec
	}
	if maintainers, ok := m["maintainers"].([]any); ok {
		for _, mm := range maintainers {
			if s, ok := mm.(string); ok {
				cc.Maintainers = append(cc.Maintainers, s)
			}
		}
	}
	return cc, nil
}

func decodeTemplate(v any) (TemplateConfig, error) {
	m, ok := asRaw(v)
	if !ok {
		return TemplateConfig{}, fmt.Errorf("config: template entry is not a map: %T", v)
	}
	name, _ := m["name"].(string)
	if err := CheckSafe("template name", name); err != nil {
		return TemplateConfig{}, err
	}
	tc := TemplateConfig{Name: name}
	tc.Distribution, _ = m["distribution"].(string)
	tc.Flavor, _ = m["flavor"].(string)
	return tc, nil
}

func asRaw(v any) (Raw, bool) {
	if r, ok := v.(Raw); ok {
		return r, true
	}
	if m, ok := v.(map[string]any); ok {
		return Raw(m), true
	}
	return nil, false
}

// FileEntry is one "source.files[]" entry in a .qubesbuilder
// manifest: an upstream distfile the fetch stage downloads and
// verifies before any prep/build step may consume it.
type FileEntry struct {
	URL        string   `yaml:"url" json:"url"`
	Name       string   `yaml:"name,omitempty" json:"name,omitempty"`
	SHA256     string   `yaml:"sha256,omitempty" json:"sha256,omitempty"`
	SHA512     string   `yaml:"sha512,omitempty" json:"sha512,omitempty"`
	Signature  string   `yaml:"signature,omitempty" json:"signature,omitempty"`
	Pubkeys    []string `yaml:"pubkeys,omitempty" json:"pubkeys,omitempty"`
	Uncompress bool     `yaml:"uncompress,omitempty" json:"uncompress,omitempty"`
}

// SourceManifest is the decoded shape of a .qubesbuilder's top-level
// "source" key.
type SourceManifest struct {
	Files    []FileEntry `yaml:"files,omitempty" json:"files,omitempty"`
	Modules  []string    `yaml:"modules,omitempty" json:"modules,omitempty"`
	Commands []string    `yaml:"commands,omitempty" json:"commands,omitempty"`
}

// QubesBuilderManifest is the decoded shape of a component's
// .qubesbuilder file: the manifest that names the component's host/
// vm package sets, their build-target lists, and any Windows-specific
// bin/inc/lib resource lists.
type QubesBuilderManifest struct {
	Source SourceManifest `yaml:"source,omitempty"`

	Host struct {
		RPM struct {
			Spec []string `yaml:"spec"`
		} `yaml:"rpm"`
		Deb struct {
			Build []string `yaml:"build"`
		} `yaml:"deb"`
		Windows struct {
			Bin []string `yaml:"bin"`
			Inc []string `yaml:"inc"`
			Lib []string `yaml:"lib"`
		} `yaml:"windows"`
	} `yaml:"host"`
	Vm struct {
		RPM struct {
			Spec []string `yaml:"spec"`
		} `yaml:"rpm"`
		Deb struct {
			Build []string `yaml:"build"`
		} `yaml:"deb"`
		Archlinux struct {
			Build []string `yaml:"build"`
		} `yaml:"archlinux"`
	} `yaml:"vm"`
}

// manifestSchema is generated once from QubesBuilderManifest's Go
// shape, in which Windows bin/inc/lib entries are plain string lists
// (REDESIGN note: do not invent typed fields for resources the
// builder never interprets beyond copying them). ParseManifest does
// not apply it; the typed YAML decode there is what rejects a
// document whose fields have the wrong shape.
var manifestSchema = jsonschema.Reflect(&QubesBuilderManifest{})

// ValidateManifestShape returns the reflected manifest schema. It
// validates no document itself; running the schema against a parsed
// document is left to the caller, so this package has no direct
// dependency on a particular validator implementation.
func ValidateManifestShape() *jsonschema.Schema {
	return manifestSchema
}

func init() {
	if manifestSchema == nil {
		logging.Base().Warn("config: failed to reflect .qubesbuilder manifest schema")
	}
}

// SubstitutePlaceholders replaces "@VERSION@" and "@REL@" in raw with
// version and release before the document is parsed as YAML, the
// textual substitution pass a .qubesbuilder manifest requires per
// spec §6 ("A YAML document with placeholders @VERSION@/@REL@
// substituted at read time").
func SubstitutePlaceholders(raw []byte, version, release string) []byte {
	s := string(raw)
	s = strings.ReplaceAll(s, "@VERSION@", version)
	s = strings.ReplaceAll(s, "@REL@", release)
	return []byte(s)
}

// ParseManifest substitutes placeholders in raw and decodes it as a
// QubesBuilderManifest.
func ParseManifest(raw []byte, version, release string) (*QubesBuilderManifest, error) {
	substituted := SubstitutePlaceholders(raw, version, release)
	var m QubesBuilderManifest
	if err := yaml.Unmarshal(substituted, &m); err != nil {
		return nil, fmt.Errorf("config: parse .qubesbuilder: %w", err)
	}
	return &m, nil
}
