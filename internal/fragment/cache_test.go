package fragment

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/checksum"
	"github.com/starford/scimark/internal/models"
	"github.com/starford/scimark/internal/render"
)

type stubBackend struct {
	kind    render.Kind
	renders atomic.Int32
	fail    error
}

func (b *stubBackend) Kind() render.Kind { return b.kind }
func (b *stubBackend) SourceExt() string { return ".tex" }
func (b *stubBackend) Source(body string, _ float64) string {
	return b.kind.String() + "|" + body
}

func (b *stubBackend) Render(_ context.Context, dir, id string, _ float64) error {
	b.renders.Add(1)
	if b.fail != nil {
		return b.fail
	}
	return os.WriteFile(dir+"/"+id+".svg", []byte("<svg>"+id+"</svg>"), 0o644)
}

type memLedger struct {
	mu      sync.Mutex
	records map[string]models.Fragment
	touched int
}

func newMemLedger() *memLedger { return &memLedger{records: map[string]models.Fragment{}} }

func (l *memLedger) Checksum(id string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[id].Checksum, nil
}

func (l *memLedger) Record(f models.Fragment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[f.ID] = f
	return nil
}

func (l *memLedger) Touch(string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touched++
	return nil
}

func newTestCache(t *testing.T, b *stubBackend, opts ...Option) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), map[render.Kind]render.Backend{b.kind: b}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestEnsure_RendersOnceThenHits(t *testing.T) {
	b := &stubBackend{kind: render.KindEquation}
	c := newTestCache(t, b)
	ctx := context.Background()

	name, err := c.Ensure(ctx, render.KindEquation, "x^2\n", 1.6)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	want := checksum.Fingerprint("equation|x^2\n") + ".svg"
	if name != want {
		t.Errorf("name = %q, want %q", name, want)
	}
	src, err := os.ReadFile(c.Path(strings.TrimSuffix(name, ".svg") + ".tex"))
	if err != nil || string(src) != "equation|x^2\n" {
		t.Errorf("source file = %q, %v", src, err)
	}

	again, err := c.Ensure(ctx, render.KindEquation, "x^2\n", 1.6)
	if err != nil || again != name {
		t.Fatalf("second Ensure = %q, %v", again, err)
	}
	if n := b.renders.Load(); n != 1 {
		t.Errorf("renders = %d, want 1", n)
	}
}

func TestEnsure_DeletedArtifactIsRebuilt(t *testing.T) {
	b := &stubBackend{kind: render.KindLatex}
	c := newTestCache(t, b)
	name, err := c.Ensure(context.Background(), render.KindLatex, "doc", 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(c.Path(name)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ensure(context.Background(), render.KindLatex, "doc", 1.0); err != nil {
		t.Fatal(err)
	}
	if n := b.renders.Load(); n != 2 {
		t.Errorf("renders = %d, want 2", n)
	}
}

func TestEnsure_ConcurrentCallsShareRender(t *testing.T) {
	b := &stubBackend{kind: render.KindEquation}
	c := newTestCache(t, b)
	var wg sync.WaitGroup
	names := make([]string, 8)
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := c.Ensure(context.Background(), render.KindEquation, "a+b", 1.3)
			if err != nil {
				t.Error(err)
			}
			names[i] = n
		}(i)
	}
	wg.Wait()
	for _, n := range names[1:] {
		if n != names[0] {
			t.Fatalf("divergent names %q vs %q", n, names[0])
		}
	}
	if n := b.renders.Load(); n < 1 || n > 8 {
		t.Errorf("renders = %d", n)
	}
	if _, err := os.Stat(c.Path(names[0])); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestEnsure_RenderFailureLeavesNoArtifact(t *testing.T) {
	b := &stubBackend{kind: render.KindEquation, fail: &apperr.MathError{Reason: "! Missing $ inserted."}}
	l := newMemLedger()
	c := newTestCache(t, b, WithLedger(l))
	_, err := c.Ensure(context.Background(), render.KindEquation, "\\bad", 1.6)
	if !errors.Is(err, apperr.ErrMalformedMath) {
		t.Fatalf("expected malformed math, got %v", err)
	}
	id, _ := c.Key(render.KindEquation, "\\bad", 1.6)
	if _, err := os.Stat(c.Path(id + ".svg")); !os.IsNotExist(err) {
		t.Error("svg should not exist after a failed render")
	}
	if len(l.records) != 0 {
		t.Error("failed render must not be recorded")
	}
}

func TestEnsure_UnknownKind(t *testing.T) {
	c := newTestCache(t, &stubBackend{kind: render.KindEquation})
	if _, err := c.Ensure(context.Background(), render.KindGnuplot, "plot x", 1.0); err == nil {
		t.Fatal("expected error for kind without backend")
	}
}

func TestEnsure_LedgerRecordsAndVerifies(t *testing.T) {
	b := &stubBackend{kind: render.KindEquation}
	l := newMemLedger()
	c := newTestCache(t, b, WithLedger(l), WithVerify(true))
	ctx := context.Background()

	name, err := c.Ensure(ctx, render.KindEquation, "y", 1.6)
	if err != nil {
		t.Fatal(err)
	}
	id := strings.TrimSuffix(name, ".svg")
	rec, ok := l.records[id]
	if !ok || rec.Kind != "equation" || rec.Zoom != 1.6 || len(rec.Checksum) != 64 {
		t.Fatalf("record = %+v", rec)
	}

	if _, err := c.Ensure(ctx, render.KindEquation, "y", 1.6); err != nil {
		t.Fatal(err)
	}
	if l.touched != 1 || b.renders.Load() != 1 {
		t.Errorf("touched=%d renders=%d", l.touched, b.renders.Load())
	}

	// Tamper with the artifact: verification forces a re-render.
	if err := os.WriteFile(c.Path(name), []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ensure(ctx, render.KindEquation, "y", 1.6); err != nil {
		t.Fatal(err)
	}
	if b.renders.Load() != 2 {
		t.Errorf("renders = %d, want 2", b.renders.Load())
	}
}

func TestUsedSet(t *testing.T) {
	s := NewUsedSet()
	s.Add("b.svg")
	s.Add("a.svg")
	s.Add("b.svg")
	if s.Len() != 2 || !s.Contains("a.svg") || s.Contains("c.svg") {
		t.Fatalf("set = %v", s.Names())
	}
	names := s.Names()
	if names[0] != "b.svg" || names[1] != "a.svg" {
		t.Errorf("order = %v", names)
	}
	names[0] = "mutated"
	if s.Names()[0] != "b.svg" {
		t.Error("Names must return a copy")
	}
}
