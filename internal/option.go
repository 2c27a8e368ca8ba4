package internal

import (
	"io"
	"log/slog"

	"github.com/starford/scimark/internal/render"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	logger  *slog.Logger
	stdin   io.Reader
	stdout  io.Writer
	runner  render.Runner
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON logger on stderr.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithIO sets the streams the preprocessor protocol and the MCP server use.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *application) {
		a.stdin = in
		a.stdout = out
	}
}

// WithRunner replaces the subprocess runner that drives latex, dvisvgm,
// gnuplot and bib2xhtml.
func WithRunner(r render.Runner) Option {
	return func(a *application) {
		a.runner = r
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
