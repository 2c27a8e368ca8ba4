package internal

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/scimark/internal/parser"
	pkgconfig "github.com/starford/scimark/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestScientificConfig_BibliographyNeedsTool(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Scientific.Bibliography = "refs.bib"
	if err := cfg.Validate(); err == nil {
		t.Fatal("bibliography without bib2xhtml should fail")
	}
	cfg.Scientific.Bib2xhtml = "tools/bib2xhtml"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("bibliography with bib2xhtml should pass: %v", err)
	}
}

func TestScientificConfig_Rejects(t *testing.T) {
	cases := map[string]func(*ScientificConfig){
		"zero block zoom":  func(c *ScientificConfig) { c.BlockZoom = 0 },
		"negative zoom":    func(c *ScientificConfig) { c.InlineZoom = -1 },
		"no fragment path": func(c *ScientificConfig) { c.FragmentPath = "" },
		"unknown policy":   func(c *ScientificConfig) { c.UnrecognizedHeaders = "guess" },
		"negative timeout": func(c *ScientificConfig) { c.ToolTimeout = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig().Scientific
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestScientificConfig_Policy(t *testing.T) {
	cfg := NewDefaultConfig().Scientific
	if cfg.Policy() != parser.UnrecognizedAsEquation {
		t.Error("default policy should render unknown headers as equations")
	}
	cfg.UnrecognizedHeaders = "reject"
	if cfg.Policy() != parser.RejectUnrecognized {
		t.Error("reject policy not parsed")
	}
}

func TestScientificConfig_Resolve(t *testing.T) {
	cfg := NewDefaultConfig().Scientific
	cfg.Bibliography = "/abs/refs.bib"
	got := cfg.Resolve("/book")
	if got.FragmentPath != filepath.Join("/book", "fragments") {
		t.Errorf("fragment path = %q", got.FragmentPath)
	}
	if got.PublishDir != filepath.Join("/book", "src", "assets") {
		t.Errorf("publish dir = %q", got.PublishDir)
	}
	if got.Bibliography != "/abs/refs.bib" {
		t.Errorf("absolute path rewritten: %q", got.Bibliography)
	}
	if got.Bib2xhtml != "" {
		t.Errorf("empty path anchored: %q", got.Bib2xhtml)
	}
}

func TestManifestConfig_DSN(t *testing.T) {
	c := ManifestConfig{}
	if got := c.DSN("/frag"); got != filepath.Join("/frag", "manifest.db") {
		t.Errorf("default dsn = %q", got)
	}
	c.Path = ManifestOff
	if got := c.DSN("/frag"); got != "" {
		t.Errorf("off dsn = %q", got)
	}
	c.Path = "/var/scimark.db"
	if got := c.DSN("/frag"); got != "/var/scimark.db" {
		t.Errorf("explicit dsn = %q", got)
	}
}

func TestDecodePreprocessorTable(t *testing.T) {
	cfg := NewDefaultConfig().Scientific
	table := map[string]any{
		"command":       "scimark",
		"fragment_path": "cache/",
		"block_zoom":    2.0,
		"tool_timeout":  "30s",
	}
	if err := pkgconfig.Decode(table, &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.FragmentPath != "cache/" || cfg.BlockZoom != 2.0 || cfg.ToolTimeout != 30*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.InlineZoom != parser.DefaultInlineZoom || cfg.Assets != "src/" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestDecodePreprocessorTable_Invalid(t *testing.T) {
	cfg := NewDefaultConfig().Scientific
	err := pkgconfig.Decode(map[string]any{"bibliography": "refs.bib"}, &cfg)
	if err == nil {
		t.Fatal("bibliography without bib2xhtml should fail")
	}
}
