// Package testutil provides shared test helpers: a fake tool runner, a
// fragment cache built on it, and temporary manifests and directories.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/scimark/internal/fragment"
	"github.com/starford/scimark/internal/manifest"
	"github.com/starford/scimark/internal/render"
	"github.com/starford/scimark/internal/storage"
)

// FakeRunner imitates latex, dvisvgm, gnuplot and bib2xhtml by writing the
// files they would produce. Outputs in Fail are returned instead for the
// matching tool base name.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []render.Command
	Fail    map[string]render.Output
	BibHTML string
}

// Run implements render.Runner.
func (r *FakeRunner) Run(_ context.Context, c render.Command) (render.Output, error) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()

	tool := filepath.Base(c.Tool)
	if out, ok := r.Fail[tool]; ok {
		return out, nil
	}
	last := ""
	if len(c.Args) > 0 {
		last = c.Args[len(c.Args)-1]
	}
	switch tool {
	case "latex":
		return render.Output{}, touch(c.Dir, strings.TrimSuffix(last, ".tex")+".dvi")
	case "dvisvgm":
		return render.Output{}, touch(c.Dir, strings.TrimSuffix(last, ".dvi")+".svg")
	case "gnuplot":
		// -e "set output 'name'" script.gp
		out := strings.TrimSuffix(strings.TrimPrefix(c.Args[1], "set output '"), "'")
		return render.Output{}, touch(c.Dir, out)
	case "bib2xhtml.pl":
		return render.Output{Stdout: []byte(r.BibHTML)}, nil
	}
	return render.Output{ExitCode: 127, Stderr: []byte(tool + ": unknown tool")}, nil
}

// Calls returns how often tool (base name) was invoked.
func (r *FakeRunner) Calls(tool string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if filepath.Base(c.Tool) == tool {
			n++
		}
	}
	return n
}

func touch(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte("<svg>"+name+"</svg>"), 0o644)
}

// TestCache creates a fragment cache in a temporary directory, rendering
// through a FakeRunner.
func TestCache(t *testing.T, opts ...fragment.Option) (*fragment.Cache, *FakeRunner) {
	t.Helper()
	runner := &FakeRunner{}
	cache, err := fragment.New(t.TempDir(), render.NewBackends(runner, render.DefaultTools()), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return cache, runner
}

// TestDB creates a temporary manifest database that is closed on cleanup.
func TestDB(t *testing.T) *manifest.DB {
	t.Helper()
	db, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDir creates a temporary directory with a storage.Provider.
func TestDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
