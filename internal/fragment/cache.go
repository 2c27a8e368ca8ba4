// Package fragment implements the content-addressed cache of rendered fragments.
package fragment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/checksum"
	"github.com/starford/scimark/internal/models"
	"github.com/starford/scimark/internal/render"
)

// Ledger persists what the cache has rendered. The cache works without one;
// with one attached it can verify artifacts against their recorded checksum.
type Ledger interface {
	Checksum(id string) (string, error)
	Record(f models.Fragment) error
	Touch(id string) error
}

// Cache maps fragment sources to SVG artifacts stored in one directory.
//
// An artifact is valid as long as {id}.svg exists; nothing is invalidated
// automatically. Removing files from the directory is the only way to force a
// re-render, unless checksum verification is enabled.
type Cache struct {
	dir      string
	backends map[render.Kind]render.Backend
	ledger   Ledger
	verify   bool
	logger   *slog.Logger
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLedger records every rendered fragment in l.
func WithLedger(l Ledger) Option {
	return func(c *Cache) { c.ledger = l }
}

// WithVerify re-renders artifacts whose content no longer matches the
// checksum recorded in the ledger.
func WithVerify(v bool) Option {
	return func(c *Cache) { c.verify = v }
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, backends map[render.Kind]render.Backend, opts ...Option) (*Cache, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fragment: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &apperr.IOError{Op: "mkdir", Path: abs, Err: err}
	}
	c := &Cache{dir: abs, backends: backends, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the absolute cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the absolute path of a cached file.
func (c *Cache) Path(name string) string { return filepath.Join(c.dir, name) }

// Key returns the fingerprint a body renders under for kind at zoom.
func (c *Cache) Key(kind render.Kind, body string, zoom float64) (string, error) {
	b, err := c.backend(kind)
	if err != nil {
		return "", err
	}
	return checksum.Fingerprint(b.Source(body, zoom)), nil
}

// Ensure returns the artifact filename for body, rendering it first if the
// artifact is not in the cache. Concurrent calls for the same fingerprint
// share a single render.
func (c *Cache) Ensure(ctx context.Context, kind render.Kind, body string, zoom float64) (string, error) {
	b, err := c.backend(kind)
	if err != nil {
		return "", err
	}
	src := b.Source(body, zoom)
	id := checksum.Fingerprint(src)

	_, err, _ = c.group.Do(id, func() (any, error) {
		return nil, c.materialize(ctx, b, id, src, zoom)
	})
	if err != nil {
		return "", err
	}
	return id + ".svg", nil
}

func (c *Cache) backend(kind render.Kind) (render.Backend, error) {
	b, ok := c.backends[kind]
	if !ok {
		return nil, fmt.Errorf("fragment: no backend for kind %s", kind)
	}
	return b, nil
}

func (c *Cache) materialize(ctx context.Context, b render.Backend, id, src string, zoom float64) error {
	svg := c.Path(id + ".svg")
	if c.fresh(id, svg) {
		if c.ledger != nil {
			if err := c.ledger.Touch(id); err != nil {
				c.logger.Warn("fragment: touch failed", slog.String("id", id), slog.String("error", err.Error()))
			}
		}
		return nil
	}

	srcPath := c.Path(id + b.SourceExt())
	if !exists(srcPath) {
		if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
			return &apperr.IOError{Op: "write", Path: srcPath, Err: err}
		}
	}

	c.logger.Debug("fragment: rendering", slog.String("id", id), slog.String("kind", b.Kind().String()))
	if err := b.Render(ctx, c.dir, id, zoom); err != nil {
		return err
	}

	data, err := os.ReadFile(svg)
	if err != nil {
		return &apperr.ToolError{Tool: b.Kind().String(), Output: "no artifact produced", Err: err}
	}
	if c.ledger != nil {
		rec := models.Fragment{
			ID:       id,
			Kind:     b.Kind().String(),
			Artifact: id + ".svg",
			Checksum: checksum.ArtifactSum(data),
			Zoom:     zoom,
		}
		if err := c.ledger.Record(rec); err != nil {
			c.logger.Warn("fragment: record failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	return nil
}

// fresh reports whether the artifact can be served as is.
func (c *Cache) fresh(id, svg string) bool {
	if !exists(svg) {
		return false
	}
	if !c.verify || c.ledger == nil {
		return true
	}
	want, err := c.ledger.Checksum(id)
	if err != nil || want == "" {
		return true
	}
	data, err := os.ReadFile(svg)
	if err != nil {
		return false
	}
	if checksum.ArtifactSum(data) == want {
		return true
	}
	c.logger.Warn("fragment: artifact checksum mismatch, re-rendering", slog.String("id", id))
	if err := os.Remove(svg); err != nil {
		c.logger.Warn("fragment: remove stale artifact failed", slog.String("id", id), slog.String("error", err.Error()))
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
