package render

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/scimark/internal/apperr"
)

// LatexPipeline compiles {id}.tex to {id}.dvi with latex and converts the
// dvi to {id}.svg with dvisvgm. Each step is skipped when its output exists.
type LatexPipeline struct {
	Runner  Runner
	Latex   string
	Dvisvgm string
}

// ToSVG runs the pipeline for the source {dir}/{id}.tex.
func (p *LatexPipeline) ToSVG(ctx context.Context, dir, id string, zoom float64) error {
	dvi := filepath.Join(dir, id+".dvi")
	if !exists(dvi) {
		if err := p.compile(ctx, dir, id); err != nil {
			return err
		}
	}

	svg := filepath.Join(dir, id+".svg")
	if exists(svg) || !exists(dvi) {
		return nil
	}
	out, err := p.Runner.Run(ctx, Command{
		Tool: p.Dvisvgm,
		Args: []string{"-b", "1", "--font-format=woff", "--zoom=" + formatZoom(zoom), id + ".dvi"},
		Dir:  dir,
	})
	if err != nil {
		return err
	}
	stderr := string(out.Stderr)
	if !out.Success() || strings.Contains(stderr, "error:") {
		return &apperr.ToolError{Tool: p.Dvisvgm, Output: stderr}
	}
	return nil
}

func (p *LatexPipeline) compile(ctx context.Context, dir, id string) error {
	out, err := p.Runner.Run(ctx, Command{
		Tool: p.Latex,
		Args: []string{"-interaction=nonstopmode", "-halt-on-error", id + ".tex"},
		Dir:  dir,
	})
	if err != nil {
		return err
	}
	if out.Success() {
		return nil
	}

	// A partial dvi would make the next run skip compilation.
	_ = os.Remove(filepath.Join(dir, id+".dvi"))

	// latex reports errors on stdout; an empty log means the binary itself is broken.
	if len(strings.TrimSpace(string(out.Stdout))) == 0 {
		return &apperr.ToolError{Tool: p.Latex, Output: string(out.Stderr)}
	}
	merr := ParseLatexLog(string(out.Stdout))
	merr.Source = id + ".tex"
	return merr
}

// ParseLatexLog extracts the first "! " message and the first "l.<n> <snippet>"
// location from a latex transcript. "Emergency stop" lines are ignored.
func ParseLatexLog(log string) *apperr.MathError {
	merr := &apperr.MathError{}
	seenLine := false
	for _, line := range strings.Split(log, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.Contains(line, "Emergency stop") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "! ") && merr.Reason == "":
			merr.Reason = line
		case strings.HasPrefix(line, "l.") && !seenLine:
			num, rest, _ := strings.Cut(line[2:], " ")
			n, err := strconv.Atoi(num)
			if err != nil {
				continue
			}
			seenLine = true
			merr.Line = n
			merr.Snippet = strings.TrimSpace(rest)
		}
	}
	return merr
}

func formatZoom(z float64) string {
	return strconv.FormatFloat(z, 'f', -1, 64)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
