package render

import (
	"context"
	"fmt"
	"strings"
)

// Backend renders one kind of fragment.
//
// Source returns the intermediate file content for a body; the fragment cache
// fingerprints that content, so two kinds that wrap the same body differently
// never share a cache key. Render materialises {dir}/{id}.svg from the source
// file {dir}/{id}{SourceExt()} written by the cache.
type Backend interface {
	Kind() Kind
	Source(body string, zoom float64) string
	SourceExt() string
	Render(ctx context.Context, dir, id string, zoom float64) error
}

// Tools names the binaries the backends invoke.
type Tools struct {
	Latex   string
	Dvisvgm string
	Gnuplot string
}

// DefaultTools resolves every tool from PATH by its usual name.
func DefaultTools() Tools {
	return Tools{Latex: "latex", Dvisvgm: "dvisvgm", Gnuplot: "gnuplot"}
}

// NewBackends builds the backend for every Kind on top of runner.
func NewBackends(runner Runner, tools Tools) map[Kind]Backend {
	def := DefaultTools()
	if tools.Latex == "" {
		tools.Latex = def.Latex
	}
	if tools.Dvisvgm == "" {
		tools.Dvisvgm = def.Dvisvgm
	}
	if tools.Gnuplot == "" {
		tools.Gnuplot = def.Gnuplot
	}
	pipeline := &LatexPipeline{Runner: runner, Latex: tools.Latex, Dvisvgm: tools.Dvisvgm}
	return map[Kind]Backend{
		KindEquation:    &equationBackend{pipeline: pipeline},
		KindLatex:       &latexBackend{pipeline: pipeline},
		KindGnuplot:     &gnuplotBackend{runner: runner, tool: tools.Gnuplot, pipeline: pipeline},
		KindGnuplotOnly: &gnuplotOnlyBackend{runner: runner, tool: tools.Gnuplot},
	}
}

const equationPreamble = "\\documentclass[20pt, preview]{standalone}\n" +
	"\\usepackage{amsmath}\\usepackage{amsfonts}\n" +
	"\\begin{document}\n$$\n"

// equationBackend wraps a math body in a standalone document.
type equationBackend struct {
	pipeline *LatexPipeline
}

func (b *equationBackend) Kind() Kind { return KindEquation }
func (b *equationBackend) SourceExt() string { return ".tex" }

// Source leads with the zoom so inline and display renderings of the same
// body are cached separately.
func (b *equationBackend) Source(body string, zoom float64) string {
	var s strings.Builder
	fmt.Fprintf(&s, "%% zoom=%s\n", formatZoom(zoom))
	s.WriteString(equationPreamble)
	s.WriteString(body)
	s.WriteString("$$\n\\end{document}")
	return s.String()
}

func (b *equationBackend) Render(ctx context.Context, dir, id string, zoom float64) error {
	return b.pipeline.ToSVG(ctx, dir, id, zoom)
}

// latexBackend compiles a complete LaTeX document written by the author.
type latexBackend struct {
	pipeline *LatexPipeline
}

func (b *latexBackend) Kind() Kind { return KindLatex }
func (b *latexBackend) SourceExt() string { return ".tex" }
func (b *latexBackend) Source(body string, _ float64) string { return body }

func (b *latexBackend) Render(ctx context.Context, dir, id string, zoom float64) error {
	return b.pipeline.ToSVG(ctx, dir, id, zoom)
}
