package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/scimark/internal/parser"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// ManifestOff disables the fragment manifest database.
const ManifestOff = "off"

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Auth       AuthConfig        `yaml:"auth"`
	Scientific ScientificConfig  `yaml:"scientific"`
	Manifest   ManifestConfig    `yaml:"manifest"`
	Book       BookConfig        `yaml:"book"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Scientific.Validate(); err != nil {
		return err
	}
	if err := c.Book.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ScientificConfig holds the preprocessor settings. In mdbook mode the
// [preprocessor.scientific] table of book.toml is applied on top of it.
type ScientificConfig struct {
	FragmentPath        string        `yaml:"fragment_path"`
	Assets              string        `yaml:"assets"`
	PublishDir          string        `yaml:"publish_dir"`
	Bibliography        string        `yaml:"bibliography"`
	Bib2xhtml           string        `yaml:"bib2xhtml"`
	BlockZoom           float64       `yaml:"block_zoom"`
	InlineZoom          float64       `yaml:"inline_zoom"`
	VerifyChecksums     bool          `yaml:"verify_checksums"`
	ToolTimeout         time.Duration `yaml:"tool_timeout"`
	UnrecognizedHeaders string        `yaml:"unrecognized_headers"`
	Tools               ToolsConfig   `yaml:"tools"`
}

// ToolsConfig names the external executables.
type ToolsConfig struct {
	Latex   string `yaml:"latex"`
	Dvisvgm string `yaml:"dvisvgm"`
	Gnuplot string `yaml:"gnuplot"`
}

// Validate validates the preprocessor configuration.
func (c *ScientificConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FragmentPath, validation.Required),
		validation.Field(&c.Bib2xhtml, validation.When(c.Bibliography != "", validation.Required)),
		validation.Field(&c.BlockZoom, validation.Required, validation.Min(0.01)),
		validation.Field(&c.InlineZoom, validation.Required, validation.Min(0.01)),
		validation.Field(&c.ToolTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.UnrecognizedHeaders, validation.In("", "equation", "reject")),
	)
}

// Policy returns the parsed unrecognized-header policy.
func (c *ScientificConfig) Policy() parser.FallbackPolicy {
	p, err := parser.ParseFallbackPolicy(c.UnrecognizedHeaders)
	if err != nil {
		return parser.UnrecognizedAsEquation
	}
	return p
}

// Resolve returns a copy with relative paths anchored at root.
func (c ScientificConfig) Resolve(root string) ScientificConfig {
	c.FragmentPath = anchor(root, c.FragmentPath)
	c.Assets = anchor(root, c.Assets)
	c.PublishDir = anchor(root, c.PublishDir)
	c.Bibliography = anchor(root, c.Bibliography)
	c.Bib2xhtml = anchor(root, c.Bib2xhtml)
	return c
}

func anchor(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// ManifestConfig locates the fragment manifest database.
type ManifestConfig struct {
	Path string `yaml:"path"`
}

// DSN returns the database path for a fragment directory, or "" when the
// manifest is disabled.
func (c *ManifestConfig) DSN(fragmentDir string) string {
	switch c.Path {
	case ManifestOff:
		return ""
	case "":
		return filepath.Join(fragmentDir, "manifest.db")
	}
	return c.Path
}

// BookConfig describes a standalone book for the build and serve commands.
type BookConfig struct {
	Root     string `yaml:"root"`
	Manifest string `yaml:"manifest"`
	Out      string `yaml:"out"`
}

// Validate validates the book configuration.
func (c *BookConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Manifest, validation.Required),
		validation.Field(&c.Out, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local preview.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Scientific: ScientificConfig{
			FragmentPath:        "fragments/",
			Assets:              "src/",
			PublishDir:          "src/assets",
			BlockZoom:           parser.DefaultBlockZoom,
			InlineZoom:          parser.DefaultInlineZoom,
			UnrecognizedHeaders: "equation",
		},
		Book: BookConfig{
			Root:     ".",
			Manifest: "book.yaml",
			Out:      "build/src",
		},
	}
}
