package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/fragment"
	"github.com/starford/scimark/internal/reference"
	"github.com/starford/scimark/internal/render"
)

const refPrefix = "ref:"

// InlineScanner replaces $...$ segments with inline equations or resolved
// references. It only reads the reference table.
type InlineScanner struct {
	renderer Renderer
	refs     reference.Resolver
	used     *fragment.UsedSet
	zoom     float64
}

// NewInlineScanner creates a scanner rendering inline equations at zoom.
func NewInlineScanner(r Renderer, refs reference.Resolver, used *fragment.UsedSet, zoom float64) *InlineScanner {
	if zoom <= 0 {
		zoom = DefaultInlineZoom
	}
	return &InlineScanner{renderer: r, refs: refs, used: used, zoom: zoom}
}

// Scan rewrites every line of source. Line numbers in errors are 1-based.
func (s *InlineScanner) Scan(ctx context.Context, source string) (string, error) {
	return s.ScanMapped(ctx, source, nil)
}

// ScanMapped is Scan for text produced by a BlockScanner: errors report
// sourceLines[i] for line i, so they point into the original chapter.
func (s *InlineScanner) ScanMapped(ctx context.Context, source string, sourceLines []int) (string, error) {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lineNo := i + 1
		if i < len(sourceLines) {
			lineNo = sourceLines[i]
		}
		out, err := s.scanLine(ctx, line, lineNo)
		if err != nil {
			return "", err
		}
		lines[i] = out
	}
	return strings.Join(lines, "\n"), nil
}

func (s *InlineScanner) scanLine(ctx context.Context, line string, lineNo int) (string, error) {
	n := strings.Count(line, inlineDelim)
	if n == 0 {
		return line, nil
	}
	if n%2 != 0 {
		return "", &apperr.DelimiterError{Line: lineNo, Count: n}
	}

	var b strings.Builder
	for i, seg := range strings.Split(line, inlineDelim) {
		if i%2 == 0 {
			b.WriteString(seg)
			continue
		}
		out, err := s.segment(ctx, seg, lineNo)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

func (s *InlineScanner) segment(ctx context.Context, seg string, lineNo int) (string, error) {
	// "$$" inside running text encloses nothing to render.
	if seg == "" {
		return blockDelim, nil
	}
	if tok := strings.TrimSpace(seg); strings.HasPrefix(tok, refPrefix) {
		return s.resolve(tok, lineNo)
	}

	file, err := s.renderer.Ensure(ctx, render.KindEquation, seg, s.zoom)
	if err != nil {
		return "", fmt.Errorf("inline equation in line %d: %w", lineNo, err)
	}
	s.used.Add(file)
	return InlineEquationMarkup(file), nil
}

// resolve turns ref:<type>:<label> into an anchor.
func (s *InlineScanner) resolve(tok string, lineNo int) (string, error) {
	parts := strings.Split(strings.TrimPrefix(tok, refPrefix), ":")
	if len(parts) != 2 {
		return "", &apperr.ReferenceError{
			Label:  tok,
			Line:   lineNo,
			Reason: fmt.Sprintf("reference has wrong number of arguments (%d)", len(parts)),
		}
	}
	kind, label := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	ns, err := reference.ParseNamespace(kind)
	if err != nil {
		return "", &apperr.ReferenceError{Label: label, Kind: kind, Line: lineNo, Reason: "unknown reference type " + kind + " for"}
	}
	display, ok := s.refs.Lookup(ns, label)
	if !ok {
		return "", &apperr.ReferenceError{Label: label, Kind: kind, Line: lineNo, Reason: "could not find reference to"}
	}
	return AnchorMarkup(ns, label, display), nil
}
