package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/fragment"
	"github.com/starford/scimark/internal/reference"
	"github.com/starford/scimark/internal/render"
)

const (
	DefaultBlockZoom  = 1.6
	DefaultInlineZoom = 1.3
	FigureZoom        = 1.0
)

// Renderer turns a fragment body into a cached artifact filename.
// *fragment.Cache implements it.
type Renderer interface {
	Ensure(ctx context.Context, kind render.Kind, body string, zoom float64) (string, error)
}

// BlockOptions configures a BlockScanner.
type BlockOptions struct {
	Chapter string  // heading number prefix, e.g. "1.2."
	Assets  string  // directory holding external block bodies
	Zoom    float64 // display equation zoom
	Policy  FallbackPolicy
	Logger  *slog.Logger
}

// BlockScanner replaces the $$ blocks of one chapter with generated markup.
// Figure and equation counters live in the scanner, so use a fresh one per
// chapter.
type BlockScanner struct {
	renderer  Renderer
	table     *reference.Table
	used      *fragment.UsedSet
	opts      BlockOptions
	figures   int
	equations int
	lines     []int
}

// NewBlockScanner creates a scanner that registers labels in table and
// records artifacts in used.
func NewBlockScanner(r Renderer, table *reference.Table, used *fragment.UsedSet, opts BlockOptions) *BlockScanner {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultBlockZoom
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BlockScanner{renderer: r, table: table, used: used, opts: opts}
}

// Scan returns source with every block replaced. Lines outside blocks are
// kept byte for byte. The first rendering failure aborts the scan.
func (s *BlockScanner) Scan(ctx context.Context, source string) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	s.lines = make([]int, 0, len(lines))
	push := func(text string, srcLine int) {
		out = append(out, text)
		for range strings.Count(text, "\n") + 1 {
			s.lines = append(s.lines, srcLine)
		}
	}

	var (
		inside     bool
		header     string
		headerLine int
		body       strings.Builder
		raw        []string
	)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		isDelim := strings.HasPrefix(trimmed, blockDelim)

		if !inside {
			if !isDelim {
				push(line, i+1)
				continue
			}
			if len(trimmed) > len(blockDelim)+1 && strings.HasSuffix(trimmed, blockDelim) {
				markup, ok, err := s.emit(ctx, trimmed, i+1, "")
				if err != nil {
					return "", err
				}
				if ok {
					push(markup, i+1)
				}
				continue
			}
			inside = true
			header, headerLine = trimmed, i+1
			body.Reset()
			raw = append(raw[:0], line)
			continue
		}

		if !isDelim {
			body.WriteString(line)
			body.WriteByte('\n')
			raw = append(raw, line)
			continue
		}
		inside = false
		markup, ok, err := s.emit(ctx, header, headerLine, body.String())
		if err != nil {
			return "", err
		}
		if ok {
			push(markup, headerLine)
		}
	}

	if inside {
		s.opts.Logger.Warn("parser: unterminated block, kept as text",
			slog.String("chapter", s.opts.Chapter),
			slog.Int("line", headerLine))
		for k, line := range raw {
			push(line, headerLine+k)
		}
	}
	return strings.Join(out, "\n"), nil
}

// SourceLines maps every line of the last Scan result, by index, to the
// 1-based source line it came from. Generated markup maps to its header line.
func (s *BlockScanner) SourceLines() []int {
	return s.lines
}

// emit renders one block. ok is false when the block was dropped.
func (s *BlockScanner) emit(ctx context.Context, line string, lineNo int, body string) (string, bool, error) {
	h := ParseHeader(line)
	if h.Form == FormUnrecognized {
		if s.opts.Policy == RejectUnrecognized {
			return "", false, &apperr.BlockError{Header: line, Line: lineNo, Reason: "unrecognized header"}
		}
		h.Form, h.Kind, h.Label, h.Title = FormEquation, render.KindEquation, "", ""
	}

	if body == "" {
		loaded, err := s.loadExternal(h)
		if err != nil {
			s.opts.Logger.Warn("parser: block empty and no body file, dropped",
				slog.String("chapter", s.opts.Chapter),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()))
			return "", false, nil
		}
		body = loaded
	}

	zoom := s.opts.Zoom
	if h.Form == FormFigure {
		zoom = FigureZoom
	}
	file, err := s.renderer.Ensure(ctx, h.Kind, body, zoom)
	if err != nil {
		return "", false, fmt.Errorf("block in line %d: %w", lineNo, err)
	}
	s.used.Add(file)

	switch h.Form {
	case FormFigure:
		s.figures++
		number := fmt.Sprintf("%s%d", s.opts.Chapter, s.figures)
		s.register(reference.Figure, h.Label, "Figure "+number)
		return FigureMarkup(h.Label, file, number, h.Title), true, nil
	case FormLabeledEquation:
		s.equations++
		number := fmt.Sprintf("%s%d", s.opts.Chapter, s.equations)
		s.register(reference.Equation, h.Label, number)
		return EquationMarkup(h.Label, file, number), true, nil
	default:
		return UnlabeledEquationMarkup(file), true, nil
	}
}

func (s *BlockScanner) register(ns reference.Namespace, label, display string) {
	if s.table.Put(reference.Entry{Namespace: ns, Label: label, Display: display, Chapter: s.opts.Chapter}) {
		s.opts.Logger.Warn("parser: label redefined, last definition wins",
			slog.String("namespace", string(ns)),
			slog.String("label", label),
			slog.String("chapter", s.opts.Chapter))
	}
}

// loadExternal reads <assets>/<name>.tex for a block with an empty body.
func (s *BlockScanner) loadExternal(h Header) (string, error) {
	name := h.FileName()
	if name == "" {
		return "", fmt.Errorf("header %q names no file", h.Raw)
	}
	path := filepath.Join(s.opts.Assets, strings.TrimSuffix(name, filepath.Ext(name))+".tex")
	body, err := readText(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return body, nil
}

// readText reads a UTF-8 file, dropping a leading byte order mark.
func readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &apperr.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(f, dec))
	if err != nil {
		return "", &apperr.IOError{Op: "read", Path: path, Err: err}
	}
	return string(data), nil
}
