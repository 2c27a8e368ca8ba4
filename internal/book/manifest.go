package book

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/scimark/internal/storage"
)

// Manifest is the book.yaml of a standalone book.
type Manifest struct {
	Title    string          `yaml:"title"`
	Src      string          `yaml:"src"`
	Chapters []ManifestEntry `yaml:"chapters"`
}

// ManifestEntry is one chapter; Draft chapters have no file and no content.
type ManifestEntry struct {
	Name     string          `yaml:"name"`
	File     string          `yaml:"file"`
	Draft    bool            `yaml:"draft"`
	Chapters []ManifestEntry `yaml:"chapters"`
}

// LoadManifest reads the manifest at path (relative to the root of fs) and
// builds the book from it, reading chapter files from the manifest's src
// directory. Chapters are numbered the way mdbook numbers SUMMARY.md.
func LoadManifest(fs storage.Provider, manifestPath string) (*Book, *Manifest, error) {
	data, err := fs.Read(manifestPath)
	if err != nil {
		return nil, nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("book: parse %s: %w", manifestPath, err)
	}
	if m.Src == "" {
		m.Src = "src"
	}
	if len(m.Chapters) == 0 {
		return nil, nil, fmt.Errorf("book: %s lists no chapters", manifestPath)
	}

	items, err := loadEntries(fs, m.Src, m.Chapters, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return &Book{Sections: items}, &m, nil
}

func loadEntries(fs storage.Provider, src string, entries []ManifestEntry, prefix SectionNumber, parents []string) ([]BookItem, error) {
	items := make([]BookItem, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("book: chapter %d under %v has no name", i+1, parents)
		}
		number := append(append(SectionNumber{}, prefix...), i+1)
		c := &Chapter{
			Name:        e.Name,
			Number:      number,
			ParentNames: append([]string{}, parents...),
		}
		if !e.Draft {
			if e.File == "" {
				return nil, fmt.Errorf("book: chapter %q has no file", e.Name)
			}
			data, err := fs.Read(path.Join(src, e.File))
			if err != nil {
				return nil, err
			}
			p := e.File
			c.Path, c.SourcePath = &p, &p
			c.Content = string(data)
		}
		sub, err := loadEntries(fs, src, e.Chapters, number, append(c.ParentNames, e.Name))
		if err != nil {
			return nil, err
		}
		c.SubItems = sub
		items = append(items, BookItem{Chapter: c})
	}
	return items, nil
}

// WriteChapters writes the content of every chapter with a path to out,
// keeping the relative layout. It returns the number of files written.
func WriteChapters(out storage.Provider, b *Book) (int, error) {
	n := 0
	err := b.Walk(func(c *Chapter) error {
		if c.Path == nil || strings.TrimSpace(*c.Path) == "" {
			return nil
		}
		if err := out.Write(*c.Path, []byte(c.Content)); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
