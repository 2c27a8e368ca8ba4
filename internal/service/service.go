// Package service coordinates standalone builds and answers queries about
// the last one for the HTTP API and the MCP server.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/book"
	"github.com/starford/scimark/internal/fragment"
	"github.com/starford/scimark/internal/manifest"
	"github.com/starford/scimark/internal/models"
	"github.com/starford/scimark/internal/parser"
	"github.com/starford/scimark/internal/preprocessor"
	"github.com/starford/scimark/internal/reference"
	"github.com/starford/scimark/internal/render"
	"github.com/starford/scimark/internal/storage"
)

// Build states.
const (
	StateIdle   = "idle"
	StateOK     = "ok"
	StateFailed = "failed"
)

// Build event kinds passed to a Notifier.
const (
	EventStarted  = "started"
	EventFinished = "finished"
	EventFailed   = "failed"
)

// Notifier receives build lifecycle events.
type Notifier interface {
	PublishBuild(kind string, data any)
}

// Status describes the last build.
type Status struct {
	State      string      `json:"state"`
	RunID      string      `json:"run_id,omitempty"`
	Chapters   int         `json:"chapters"`
	Fragments  int         `json:"fragments"`
	References int         `json:"references"`
	Written    int         `json:"written"`
	Error      string      `json:"error,omitempty"`
	Code       apperr.Code `json:"code,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
}

// Snippet is a single rendered fragment.
type Snippet struct {
	Kind   string `json:"kind"`
	File   string `json:"file"`
	URL    string `json:"url"`
	Markup string `json:"markup"`
}

// Service coordinates the engine, the book sources and the manifest.
type Service struct {
	engine    *preprocessor.Engine
	cache     *fragment.Cache
	artifacts storage.Provider
	src       storage.Provider
	out       storage.Provider
	store     manifest.Store
	bookFile  string
	notifier  Notifier
	logger    *slog.Logger

	buildMu sync.Mutex

	mu     sync.RWMutex
	status Status
	labels []models.Label
}

// Option configures a Service.
type Option func(*Service)

// WithManifest answers fragment and label queries from store.
func WithManifest(store manifest.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithNotifier reports build events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithBookFile sets the book manifest path relative to the source root.
func WithBookFile(name string) Option {
	return func(s *Service) { s.bookFile = name }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service building the book under src into out.
func New(engine *preprocessor.Engine, cache *fragment.Cache, src, out storage.Provider, opts ...Option) (*Service, error) {
	artifacts, err := storage.NewFS(cache.Dir())
	if err != nil {
		return nil, fmt.Errorf("service: fragment dir: %w", err)
	}
	s := &Service{
		engine:    engine,
		cache:     cache,
		artifacts: artifacts,
		src:       src,
		out:       out,
		bookFile:  "book.yaml",
		logger:    slog.Default(),
		status:    Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Build loads the book, runs the engine and writes the chapters. Builds
// never overlap; a failed build keeps the labels of the last good one.
func (s *Service) Build(ctx context.Context) (*Status, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := time.Now()
	s.notify(EventStarted, map[string]string{"book": s.bookFile})

	st, labels, err := s.build(ctx)
	st.StartedAt = start
	st.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
		st.Code = apperr.Classify(err)
		s.setStatus(st, nil)
		s.logger.Error("service: build failed",
			slog.String("code", string(st.Code)),
			slog.String("error", err.Error()))
		s.notify(EventFailed, map[string]string{"error": st.Error, "code": string(st.Code)})
		return &st, err
	}

	st.State = StateOK
	s.setStatus(st, labels)
	s.notify(EventFinished, map[string]any{
		"run_id":     st.RunID,
		"fragments":  st.Fragments,
		"references": st.References,
	})
	return &st, nil
}

func (s *Service) build(ctx context.Context) (Status, []models.Label, error) {
	b, _, err := book.LoadManifest(s.src, s.bookFile)
	if err != nil {
		return Status{}, nil, err
	}
	res, err := s.engine.Run(ctx, b)
	if err != nil {
		return Status{}, nil, err
	}
	written, err := book.WriteChapters(s.out, b)
	if err != nil {
		return Status{}, nil, &apperr.IOError{Op: "write chapters", Path: s.out.Root(), Err: err}
	}

	labels := make([]models.Label, len(res.References))
	for i, e := range res.References {
		labels[i] = models.Label{Namespace: string(e.Namespace), Label: e.Label, Display: e.Display, Chapter: e.Chapter}
	}
	return Status{
		RunID:      res.RunID,
		Chapters:   res.Chapters,
		Fragments:  len(res.Used),
		References: len(res.References),
		Written:    written,
	}, labels, nil
}

func (s *Service) setStatus(st Status, labels []models.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	if labels != nil {
		s.labels = labels
	}
}

func (s *Service) notify(kind string, data any) {
	if s.notifier != nil {
		s.notifier.PublishBuild(kind, data)
	}
}

// Last returns the status of the most recent build.
func (s *Service) Last() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Fragments lists cached fragments. Without a manifest only the artifact
// files are known, so a kind filter matches nothing.
func (s *Service) Fragments(_ context.Context, limit, offset int, kind string) ([]models.Fragment, int, error) {
	if kind != "" {
		if _, err := render.ParseKind(kind); err != nil {
			return nil, 0, &apperr.BlockError{Header: kind, Reason: "unknown kind"}
		}
	}
	if s.store != nil {
		items, total, err := s.store.Fragments(limit, offset, kind)
		return nonNilSlice(items), total, err
	}
	if kind != "" {
		return []models.Fragment{}, 0, nil
	}

	metas, err := s.artifacts.List("", ".svg")
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.Fragment, 0, len(metas))
	for _, m := range metas {
		items = append(items, models.Fragment{
			ID:         strings.TrimSuffix(m.Path, ".svg"),
			Artifact:   m.Path,
			Checksum:   m.Checksum,
			LastUsedAt: m.UpdatedAt,
		})
	}
	total := len(items)
	return page(items, limit, offset), total, nil
}

// Prune drops manifest rows whose artifact file is gone.
func (s *Service) Prune(_ context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	metas, err := s.artifacts.List("", ".svg")
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		keep[m.Path] = struct{}{}
	}
	return s.store.Prune(keep)
}

// References lists the labels of the last good build, or the stored
// snapshot before the first build. An empty ns lists every namespace.
func (s *Service) References(_ context.Context, ns string) ([]models.Label, error) {
	if ns != "" {
		if _, err := reference.ParseNamespace(ns); err != nil {
			return nil, &apperr.ReferenceError{Kind: ns, Reason: "unknown reference type " + ns}
		}
	}
	if labels, ok := s.memory(); ok {
		out := []models.Label{}
		for _, l := range labels {
			if ns == "" || l.Namespace == ns {
				out = append(out, l)
			}
		}
		return out, nil
	}
	if s.store == nil {
		return []models.Label{}, nil
	}
	labels, err := s.store.Labels(ns)
	return nonNilSlice(labels), err
}

// Resolve returns one label. Unknown labels wrap apperr.ErrNotFound.
func (s *Service) Resolve(_ context.Context, ns, label string) (*models.Label, error) {
	if _, err := reference.ParseNamespace(ns); err != nil {
		return nil, &apperr.ReferenceError{Label: label, Kind: ns, Reason: "unknown reference type " + ns + " for"}
	}
	if labels, ok := s.memory(); ok {
		for _, l := range labels {
			if l.Namespace == ns && l.Label == label {
				return &l, nil
			}
		}
		return nil, fmt.Errorf("service: label %s:%s: %w", ns, label, apperr.ErrNotFound)
	}
	if s.store == nil {
		return nil, fmt.Errorf("service: label %s:%s: %w", ns, label, apperr.ErrNotFound)
	}
	return s.store.Label(ns, label)
}

// SearchLabels finds labels whose name or display text matches query.
func (s *Service) SearchLabels(_ context.Context, query string, limit int) ([]models.Label, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.store != nil {
		labels, err := s.store.SearchLabels(query, limit)
		return nonNilSlice(labels), err
	}
	labels, _ := s.memory()
	q := strings.ToLower(query)
	out := []models.Label{}
	for _, l := range labels {
		if strings.Contains(strings.ToLower(l.Label), q) || strings.Contains(strings.ToLower(l.Display), q) {
			out = append(out, l)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// RenderSnippet renders one fragment outside of a book. A zero zoom picks
// the default of the kind.
func (s *Service) RenderSnippet(ctx context.Context, kind, body string, zoom float64) (*Snippet, error) {
	k, err := render.ParseKind(kind)
	if err != nil {
		return nil, &apperr.BlockError{Header: kind, Reason: "unknown kind"}
	}
	if strings.TrimSpace(body) == "" {
		return nil, &apperr.BlockError{Header: kind, Reason: "empty body"}
	}
	if zoom <= 0 {
		zoom = parser.FigureZoom
		if k == render.KindEquation {
			zoom = parser.DefaultBlockZoom
		}
	}
	file, err := s.cache.Ensure(ctx, k, body, zoom)
	if err != nil {
		return nil, err
	}
	markup := parser.UnlabeledEquationMarkup(file)
	if k == render.KindEquation {
		markup = parser.InlineEquationMarkup(file)
	}
	return &Snippet{Kind: k.String(), File: file, URL: "/assets/" + file, Markup: markup}, nil
}

// Artifact returns the absolute path of a cached artifact. Names must be
// plain file names.
func (s *Service) Artifact(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("service: artifact %q: %w", name, apperr.ErrNotFound)
	}
	path := s.cache.Path(name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("service: artifact %q: %w", name, apperr.ErrNotFound)
		}
		return "", &apperr.IOError{Op: "stat", Path: path, Err: err}
	}
	return path, nil
}

func (s *Service) memory() ([]models.Label, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels, s.labels != nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
