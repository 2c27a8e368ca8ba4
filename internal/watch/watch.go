// Package watch triggers rebuilds when book sources change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for more events before
// reporting a batch.
const DefaultDebounce = 200 * time.Millisecond

// DefaultExts are the source extensions that trigger a rebuild.
var DefaultExts = []string{".md", ".tex", ".bib", ".yaml", ".yml", ".gp"}

// ChangeFunc receives the relative paths changed since the last call.
type ChangeFunc func(paths []string)

// Options configures Watch.
type Options struct {
	Root     string
	Ignore   []string // directories skipped with everything below them
	Exts     []string
	Debounce time.Duration
}

// Watch observes Root recursively until ctx is cancelled and calls onChange
// with each debounced batch of changed source files. Directories created at
// runtime are added to the watch list.
func Watch(ctx context.Context, opts Options, logger *slog.Logger, onChange ChangeFunc) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if len(opts.Exts) == 0 {
		opts.Exts = DefaultExts
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return err
	}
	ignore := make([]string, 0, len(opts.Ignore))
	for _, dir := range opts.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			ignore = append(ignore, abs)
		}
	}
	skip := func(path string) bool {
		for _, dir := range ignore {
			if path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator)) {
				return true
			}
		}
		return false
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root, skip); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
		pending = make(map[string]struct{})
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(opts.Debounce)
			timerCh = timer.C
		} else {
			timer.Reset(opts.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			logger.Debug("watcher: change batch", slog.Int("files", len(paths)))
			onChange(paths)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name
			if skip(abs) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs, skip); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", abs))
					}
					continue
				}
			}
			if ev.Op == fsnotify.Chmod || !hasExt(abs, opts.Exts) {
				continue
			}
			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func hasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, skip func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skip(path) || (path != root && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
