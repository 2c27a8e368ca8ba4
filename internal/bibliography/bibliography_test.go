package bibliography

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/reference"
	"github.com/starford/scimark/internal/render"
)

const sampleBib = `@book{knuth84,
  author = {Donald Knuth},
  title = {The TeXbook},
  year = {1984}
}

@article{lamport86,
  author = {Leslie Lamport},
  title = {LaTeX},
  year = {1986}
}
`

type stubRunner struct {
	out  render.Output
	last render.Command
}

func (r *stubRunner) Run(_ context.Context, c render.Command) (render.Output, error) {
	r.last = c
	return r.out, nil
}

func writeBib(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refs.bib")
	if err := os.WriteFile(path, []byte(sampleBib), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestKeys_FileOrder(t *testing.T) {
	keys, err := Keys(writeBib(t))
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "knuth84" || keys[1] != "lamport86" {
		t.Errorf("keys = %v", keys)
	}
}

func TestKeys_MissingFile(t *testing.T) {
	_, err := Keys(filepath.Join(t.TempDir(), "none.bib"))
	if !errors.Is(err, apperr.ErrInvalidBibliography) {
		t.Fatalf("expected bibliography error, got %v", err)
	}
}

func TestSeed(t *testing.T) {
	table := reference.NewTable()
	Seed(table, []string{"knuth84", "lamport86"})
	if got, _ := table.Lookup(reference.Citation, "lamport86"); got != "[2]" {
		t.Errorf("lamport86 = %q", got)
	}
}

func TestToHTML_ExtractsList(t *testing.T) {
	stdout := strings.Join([]string{
		"<html><body>",
		`<dl class="bib2xhtml">`,
		`<dt><a name="knuth84">[Knu84]</a></dt>`,
		"<dd>Donald Knuth. The TeXbook.</dd>",
		"</dl>",
		"</body></html>",
	}, "\n")
	r := &stubRunner{out: render.Output{Stdout: []byte(stdout)}}
	bib := writeBib(t)
	c := &Converter{Runner: r, ToolDir: t.TempDir()}

	html, err := c.ToHTML(context.Background(), bib)
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	want := `<dl class="bib2xhtml">` + "\n" + `<dt><a id="knuth84">[Knu84]</a></dt>` + "\n<dd>Donald Knuth. The TeXbook.</dd>"
	if html != want {
		t.Errorf("html = %q\nwant   %q", html, want)
	}
	if filepath.Base(r.last.Tool) != "bib2xhtml.pl" || strings.Join(r.last.Args[:4], " ") != "-s alpha -u -U" {
		t.Errorf("command = %+v", r.last)
	}
	if !filepath.IsAbs(r.last.Args[4]) {
		t.Errorf("source should be absolute: %q", r.last.Args[4])
	}
}

func TestToHTML_ConverterErrors(t *testing.T) {
	r := &stubRunner{out: render.Output{Stderr: []byte("bibtex: (There were 2 error messages)")}}
	c := &Converter{Runner: r, ToolDir: t.TempDir()}
	_, err := c.ToHTML(context.Background(), writeBib(t))
	if !errors.Is(err, apperr.ErrInvalidBibliography) {
		t.Fatalf("expected bibliography error, got %v", err)
	}
}

func TestChapterContent(t *testing.T) {
	if got := ChapterContent("<dl></dl>"); got != "# Bibliography\n<dl></dl>" {
		t.Errorf("content = %q", got)
	}
}
