// Package reference holds the labels collected while scanning a book.
package reference

import (
	"fmt"
	"sort"
)

// Namespace partitions labels so a figure, an equation and a citation may
// share a name.
type Namespace string

const (
	Figure   Namespace = "fig"
	Equation Namespace = "equ"
	Citation Namespace = "bib"
)

// ParseNamespace accepts the type field of a ref:<type>:<label> token.
func ParseNamespace(s string) (Namespace, error) {
	switch ns := Namespace(s); ns {
	case Figure, Equation, Citation:
		return ns, nil
	}
	return "", fmt.Errorf("reference: unknown namespace %q", s)
}

// Entry is one resolved label.
type Entry struct {
	Namespace Namespace
	Label     string
	Display   string
	Chapter   string
}

// Resolver is the read-only view the inline pass works with.
type Resolver interface {
	Lookup(ns Namespace, label string) (string, bool)
}

type key struct {
	ns    Namespace
	label string
}

// Table maps labels to display text for one run. It is not safe for
// concurrent use.
type Table struct {
	entries map[key]Entry
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[key]Entry)}
}

// Register binds label to display in ns. The last write wins; the result
// reports whether an earlier binding was replaced.
func (t *Table) Register(ns Namespace, label, display string) bool {
	return t.Put(Entry{Namespace: ns, Label: label, Display: display})
}

// Put is Register with the full entry, including the defining chapter.
func (t *Table) Put(e Entry) bool {
	k := key{e.Namespace, e.Label}
	_, existed := t.entries[k]
	t.entries[k] = e
	return existed
}

// Lookup returns the display text bound to label in ns.
func (t *Table) Lookup(ns Namespace, label string) (string, bool) {
	e, ok := t.entries[key{ns, label}]
	return e.Display, ok
}

// Entries returns a snapshot ordered by namespace, then label.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Len returns the number of bound labels across all namespaces.
func (t *Table) Len() int { return len(t.entries) }
