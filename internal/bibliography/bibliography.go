// Package bibliography reads citation keys from a BibTeX file and converts
// the file to an HTML list with bib2xhtml.
package bibliography

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nickng/bibtex"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/reference"
	"github.com/starford/scimark/internal/render"
)

const (
	// ChapterName and ChapterPath identify the chapter appended to the book.
	ChapterName = "Bibliography"
	ChapterPath = "bibliography.md"

	script     = "bib2xhtml.pl"
	listOpen   = `<dl class="bib2xhtml">`
	listClose  = "</dl>"
	errorsMark = "error messages)"
)

// Keys returns the citation keys of path in file order.
func Keys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &apperr.BibliographyError{Path: path, Err: err}
	}
	defer f.Close()

	bib, err := bibtex.Parse(f)
	if err != nil {
		return nil, &apperr.BibliographyError{Path: path, Detail: "parse", Err: err}
	}
	keys := make([]string, 0, len(bib.Entries))
	for _, e := range bib.Entries {
		keys = append(keys, e.CiteName)
	}
	return keys, nil
}

// Seed binds every key to its citation marker [1]..[n].
func Seed(t *reference.Table, keys []string) {
	for i, k := range keys {
		t.Register(reference.Citation, k, fmt.Sprintf("[%d]", i+1))
	}
}

// Converter runs bib2xhtml.pl from ToolDir.
type Converter struct {
	Runner  render.Runner
	ToolDir string
}

// ToHTML converts source and returns the <dl> entry list, with name anchors
// turned into id attributes.
func (c *Converter) ToHTML(ctx context.Context, source string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", &apperr.BibliographyError{Path: source, Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		return "", &apperr.BibliographyError{Path: source, Err: err}
	}
	dir, err := filepath.Abs(c.ToolDir)
	if err != nil {
		return "", &apperr.BibliographyError{Path: c.ToolDir, Err: err}
	}

	out, err := c.Runner.Run(ctx, render.Command{
		Tool: filepath.Join(dir, script),
		Args: []string{"-s", "alpha", "-u", "-U", abs},
		Dir:  dir,
	})
	if err != nil {
		return "", err
	}
	if stderr := string(out.Stderr); strings.Contains(stderr, errorsMark) {
		return "", &apperr.BibliographyError{Path: source, Detail: strings.TrimSpace(stderr)}
	}
	return extractList(string(out.Stdout)), nil
}

// extractList keeps the lines from the opening <dl> up to, not including,
// the closing tag.
func extractList(html string) string {
	var kept []string
	inside := false
	for _, line := range strings.Split(html, "\n") {
		if !inside {
			if line != listOpen {
				continue
			}
			inside = true
		}
		if line == listClose {
			break
		}
		kept = append(kept, strings.ReplaceAll(line, `<a name="`, `<a id="`))
	}
	return strings.Join(kept, "\n")
}

// ChapterContent is the markdown of the appended bibliography chapter.
func ChapterContent(html string) string {
	return "# " + ChapterName + "\n" + html
}
