package render

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/scimark/internal/apperr"
)

// gnuplot prints `"file.gp" line 4: undefined variable: y` for script errors.
var gnuplotErrRe = regexp.MustCompile(`line (\d+): (.+)$`)

// gnuplotBackend plots with the epslatex terminal and typesets the result
// through the shared LaTeX pipeline.
type gnuplotBackend struct {
	runner   Runner
	tool     string
	pipeline *LatexPipeline
}

func (b *gnuplotBackend) Kind() Kind { return KindGnuplot }
func (b *gnuplotBackend) SourceExt() string { return ".gp" }

func (b *gnuplotBackend) Source(body string, _ float64) string {
	return "set terminal epslatex color standalone\n" + body
}

func (b *gnuplotBackend) Render(ctx context.Context, dir, id string, _ float64) error {
	if !exists(filepath.Join(dir, id+".tex")) {
		if err := runGnuplot(ctx, b.runner, b.tool, dir, id, id+".tex"); err != nil {
			return err
		}
	}
	return b.pipeline.ToSVG(ctx, dir, id, 1.0)
}

// gnuplotOnlyBackend uses gnuplot's own svg terminal, no LaTeX involved.
type gnuplotOnlyBackend struct {
	runner Runner
	tool   string
}

func (b *gnuplotOnlyBackend) Kind() Kind { return KindGnuplotOnly }
func (b *gnuplotOnlyBackend) SourceExt() string { return ".gp" }

func (b *gnuplotOnlyBackend) Source(body string, _ float64) string {
	return "set terminal svg\nset encoding utf8\n" + body
}

func (b *gnuplotOnlyBackend) Render(ctx context.Context, dir, id string, _ float64) error {
	return runGnuplot(ctx, b.runner, b.tool, dir, id, id+".svg")
}

// runGnuplot executes {id}.gp with the output redirected to output.
func runGnuplot(ctx context.Context, runner Runner, tool, dir, id, output string) error {
	script := id + ".gp"
	out, err := runner.Run(ctx, Command{
		Tool: tool,
		Args: []string{"-e", fmt.Sprintf("set output '%s'", output), script},
		Dir:  dir,
	})
	if err != nil {
		return err
	}
	if out.Success() {
		return nil
	}
	stderr := string(out.Stderr)
	if merr := parseGnuplotError(stderr); merr != nil {
		merr.Source = script
		return merr
	}
	return &apperr.ToolError{Tool: tool, Output: stderr}
}

// parseGnuplotError reads the location gnuplot reports for script errors. The
// line preceding the caret marker is the offending input.
func parseGnuplotError(stderr string) *apperr.MathError {
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	for i, line := range lines {
		m := gnuplotErrRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		merr := &apperr.MathError{Reason: m[2], Line: n}
		if i >= 2 && strings.TrimSpace(lines[i-1]) == "^" {
			merr.Snippet = strings.TrimSpace(lines[i-2])
		}
		return merr
	}
	return nil
}
