// Package preprocessor runs the two scanning passes over a book and
// publishes the fragments the book uses.
package preprocessor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/bibliography"
	"github.com/starford/scimark/internal/book"
	"github.com/starford/scimark/internal/fragment"
	"github.com/starford/scimark/internal/models"
	"github.com/starford/scimark/internal/parser"
	"github.com/starford/scimark/internal/reference"
	"github.com/starford/scimark/internal/storage"
)

// Name is the preprocessor name mdbook knows it by.
const Name = "scientific"

// Supports reports whether the preprocessor runs for renderer.
func Supports(renderer string) bool {
	return renderer != "not-supported"
}

// Cache renders fragments and locates their artifacts.
type Cache interface {
	parser.Renderer
	Path(name string) string
}

// LabelStore keeps a snapshot of the last reference table.
type LabelStore interface {
	ReplaceLabels(labels []models.Label) error
}

// Config holds the per-run settings.
type Config struct {
	Assets       string // directory of external block bodies
	BlockZoom    float64
	InlineZoom   float64
	Policy       parser.FallbackPolicy
	Bibliography string // .bib file; empty disables the bibliography
}

// Result describes a successful run.
type Result struct {
	RunID      string
	Book       *book.Book
	Chapters   int
	Used       []string
	References []reference.Entry
	Duration   time.Duration
}

// Engine processes books. It holds no per-run state, but runs must not
// overlap when they share a publish directory.
type Engine struct {
	cache   Cache
	cfg     Config
	publish storage.Provider
	bib     *bibliography.Converter
	labels  LabelStore
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher copies every used artifact into p after a run.
func WithPublisher(p storage.Provider) Option {
	return func(e *Engine) { e.publish = p }
}

// WithBibliography sets the converter used when Config.Bibliography is set.
func WithBibliography(c *bibliography.Converter) Option {
	return func(e *Engine) { e.bib = c }
}

// WithLabelStore stores the reference table of each successful run.
func WithLabelStore(s LabelStore) Option {
	return func(e *Engine) { e.labels = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine rendering through cache.
func New(cache Cache, cfg Config, opts ...Option) *Engine {
	e := &Engine{cache: cache, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run rewrites every chapter of b. Chapter contents are only replaced once
// both passes and publishing succeeded; on error b is left untouched.
func (e *Engine) Run(ctx context.Context, b *book.Book) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := e.logger.With(slog.String("run_id", runID))

	table := reference.NewTable()
	used := fragment.NewUsedSet()

	var bibHTML string
	if e.cfg.Bibliography != "" {
		html, err := e.prepareBibliography(ctx, table)
		if err != nil {
			return nil, err
		}
		bibHTML = html
	}

	chapters := b.Chapters()
	contents := make([]string, len(chapters))
	sourceLines := make([][]int, len(chapters))
	for i, c := range chapters {
		contents[i] = c.Content
	}

	for i, c := range chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scanner := parser.NewBlockScanner(e.cache, table, used, parser.BlockOptions{
			Chapter: c.HeadNumber(),
			Assets:  e.cfg.Assets,
			Zoom:    e.cfg.BlockZoom,
			Policy:  e.cfg.Policy,
			Logger:  logger,
		})
		out, err := scanner.Scan(ctx, contents[i])
		if err != nil {
			return nil, &apperr.ChapterError{Chapter: c.HeadNumber(), Name: c.Name, Pass: "blocks", Err: err}
		}
		contents[i] = out
		sourceLines[i] = scanner.SourceLines()
	}
	logger.Debug("preprocessor: block pass done", slog.Int("labels", table.Len()))

	inline := parser.NewInlineScanner(e.cache, table, used, e.cfg.InlineZoom)
	for i, c := range chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := inline.ScanMapped(ctx, contents[i], sourceLines[i])
		if err != nil {
			return nil, &apperr.ChapterError{Chapter: c.HeadNumber(), Name: c.Name, Pass: "inline", Err: err}
		}
		contents[i] = out
	}

	if err := e.publishUsed(used); err != nil {
		return nil, err
	}

	for i, c := range chapters {
		c.Content = contents[i]
	}
	if e.cfg.Bibliography != "" {
		b.PushChapter(book.NewChapter(bibliography.ChapterName, bibliography.ChapterContent(bibHTML), bibliography.ChapterPath, nil))
	}

	entries := table.Entries()
	e.storeLabels(logger, entries)

	res := &Result{
		RunID:      runID,
		Book:       b,
		Chapters:   len(chapters),
		Used:       used.Names(),
		References: entries,
		Duration:   time.Since(start),
	}
	logger.Info("preprocessor: run finished",
		slog.Int("chapters", res.Chapters),
		slog.Int("fragments", len(res.Used)),
		slog.Int("references", len(entries)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// prepareBibliography seeds citation markers and converts the .bib file.
func (e *Engine) prepareBibliography(ctx context.Context, table *reference.Table) (string, error) {
	keys, err := bibliography.Keys(e.cfg.Bibliography)
	if err != nil {
		return "", err
	}
	bibliography.Seed(table, keys)
	if e.bib == nil {
		return "", &apperr.BibliographyError{Path: e.cfg.Bibliography, Detail: "no bib2xhtml directory configured"}
	}
	return e.bib.ToHTML(ctx, e.cfg.Bibliography)
}

func (e *Engine) publishUsed(used *fragment.UsedSet) error {
	if e.publish == nil {
		return nil
	}
	for _, name := range used.Names() {
		src := e.cache.Path(name)
		if err := e.publish.Copy(src, name); err != nil {
			return &apperr.IOError{Op: "publish", Path: src, Err: err}
		}
	}
	return nil
}

func (e *Engine) storeLabels(logger *slog.Logger, entries []reference.Entry) {
	if e.labels == nil {
		return
	}
	rows := make([]models.Label, len(entries))
	for i, en := range entries {
		rows[i] = models.Label{
			Namespace: string(en.Namespace),
			Label:     en.Label,
			Display:   en.Display,
			Chapter:   en.Chapter,
		}
	}
	if err := e.labels.ReplaceLabels(rows); err != nil {
		logger.Warn("preprocessor: store labels failed", slog.String("error", err.Error()))
	}
}
