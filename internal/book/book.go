// Package book models the JSON that mdbook exchanges with preprocessors and
// the standalone book.yaml layout used by the build and serve commands.
package book

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Context is the first element of the preprocessor input.
type Context struct {
	Root          string         `json:"root"`
	Config        map[string]any `json:"config"`
	Renderer      string         `json:"renderer"`
	MdbookVersion string         `json:"mdbook_version"`
}

// PreprocessorConfig returns the [preprocessor.<name>] table, or nil.
func (c *Context) PreprocessorConfig(name string) map[string]any {
	pre, _ := c.Config["preprocessor"].(map[string]any)
	cfg, _ := pre[name].(map[string]any)
	return cfg
}

// Book is the chapter tree.
type Book struct {
	Sections      []BookItem `json:"sections"`
	NonExhaustive *struct{}  `json:"__non_exhaustive"`
}

// BookItem is one entry of the tree. Exactly one of the fields is set.
type BookItem struct {
	Chapter   *Chapter
	Separator bool
	PartTitle *string
}

// Chapter is a single page.
type Chapter struct {
	Name        string        `json:"name"`
	Content     string        `json:"content"`
	Number      SectionNumber `json:"number"`
	SubItems    []BookItem    `json:"sub_items"`
	Path        *string       `json:"path"`
	SourcePath  *string       `json:"source_path"`
	ParentNames []string      `json:"parent_names"`
}

// SectionNumber is a chapter number such as 1.2; nil for unnumbered chapters.
type SectionNumber []int

// String formats the number the way mdbook prints headings: "1.2.".
func (n SectionNumber) String() string {
	if len(n) == 0 {
		return "0"
	}
	var b strings.Builder
	for _, v := range n {
		b.WriteString(strconv.Itoa(v))
		b.WriteByte('.')
	}
	return b.String()
}

// HeadNumber is the prefix used for figure and equation numbers; empty for
// unnumbered chapters.
func (c *Chapter) HeadNumber() string {
	if c.Number == nil {
		return ""
	}
	return c.Number.String()
}

// NewChapter returns a chapter with empty (not null) lists.
func NewChapter(name, content, path string, parents []string) *Chapter {
	if parents == nil {
		parents = []string{}
	}
	p := path
	return &Chapter{
		Name:        name,
		Content:     content,
		SubItems:    []BookItem{},
		Path:        &p,
		SourcePath:  &p,
		ParentNames: parents,
	}
}

// PushChapter appends a top-level chapter.
func (b *Book) PushChapter(c *Chapter) {
	b.Sections = append(b.Sections, BookItem{Chapter: c})
}

// Walk calls fn for every chapter, parents before their sub-chapters, in
// book order. It stops at the first error.
func (b *Book) Walk(fn func(*Chapter) error) error {
	return walk(b.Sections, fn)
}

func walk(items []BookItem, fn func(*Chapter) error) error {
	for i := range items {
		c := items[i].Chapter
		if c == nil {
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
		if err := walk(c.SubItems, fn); err != nil {
			return err
		}
	}
	return nil
}

// Chapters returns every chapter in Walk order.
func (b *Book) Chapters() []*Chapter {
	var out []*Chapter
	_ = b.Walk(func(c *Chapter) error {
		out = append(out, c)
		return nil
	})
	return out
}

func (it BookItem) MarshalJSON() ([]byte, error) {
	switch {
	case it.Chapter != nil:
		return marshal(map[string]*Chapter{"Chapter": it.Chapter})
	case it.PartTitle != nil:
		return marshal(map[string]string{"PartTitle": *it.PartTitle})
	case it.Separator:
		return []byte(`"Separator"`), nil
	}
	return nil, errors.New("book: empty book item")
}

// marshal is json.Marshal without HTML escaping; chapter content is markup.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (it *BookItem) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "Separator" {
			return fmt.Errorf("book: unknown item %q", tag)
		}
		*it = BookItem{Separator: true}
		return nil
	}
	var obj struct {
		Chapter   *Chapter `json:"Chapter"`
		PartTitle *string  `json:"PartTitle"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("book: decode item: %w", err)
	}
	if obj.Chapter == nil && obj.PartTitle == nil {
		return fmt.Errorf("book: unknown item %s", bytes.TrimSpace(data))
	}
	*it = BookItem{Chapter: obj.Chapter, PartTitle: obj.PartTitle}
	return nil
}

// DecodeInput reads the [context, book] pair mdbook writes to a
// preprocessor's stdin.
func DecodeInput(r io.Reader) (*Context, *Book, error) {
	var pair []json.RawMessage
	if err := json.NewDecoder(r).Decode(&pair); err != nil {
		return nil, nil, fmt.Errorf("book: decode input: %w", err)
	}
	if len(pair) != 2 {
		return nil, nil, fmt.Errorf("book: expected [context, book], got %d elements", len(pair))
	}
	var ctx Context
	if err := json.Unmarshal(pair[0], &ctx); err != nil {
		return nil, nil, fmt.Errorf("book: decode context: %w", err)
	}
	var b Book
	if err := json.Unmarshal(pair[1], &b); err != nil {
		return nil, nil, fmt.Errorf("book: decode book: %w", err)
	}
	return &ctx, &b, nil
}

// Encode writes b as mdbook expects it on stdout.
func Encode(w io.Writer, b *Book) error {
	if b.Sections == nil {
		b.Sections = []BookItem{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("book: encode: %w", err)
	}
	return nil
}
