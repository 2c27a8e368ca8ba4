package reference

import "testing"

func TestTable_NamespacesAreIndependent(t *testing.T) {
	tb := NewTable()
	tb.Register(Figure, "x", "Figure 11")
	tb.Register(Equation, "x", "12")
	tb.Register(Citation, "x", "[1]")

	for ns, want := range map[Namespace]string{Figure: "Figure 11", Equation: "12", Citation: "[1]"} {
		got, ok := tb.Lookup(ns, "x")
		if !ok || got != want {
			t.Errorf("Lookup(%s) = %q, %v; want %q", ns, got, ok, want)
		}
	}
	if tb.Len() != 3 {
		t.Errorf("Len = %d, want 3", tb.Len())
	}
}

func TestTable_LastWriteWins(t *testing.T) {
	tb := NewTable()
	if tb.Register(Equation, "eq1", "11") {
		t.Error("first registration reported an overwrite")
	}
	if !tb.Register(Equation, "eq1", "23") {
		t.Error("second registration did not report an overwrite")
	}
	if got, _ := tb.Lookup(Equation, "eq1"); got != "23" {
		t.Errorf("Lookup = %q, want 23", got)
	}
}

func TestTable_LookupMissing(t *testing.T) {
	if _, ok := NewTable().Lookup(Figure, "nope"); ok {
		t.Error("expected miss")
	}
}

func TestTable_EntriesSorted(t *testing.T) {
	tb := NewTable()
	tb.Put(Entry{Namespace: Figure, Label: "b", Display: "Figure 12", Chapter: "1"})
	tb.Register(Figure, "a", "Figure 11")
	tb.Register(Citation, "knuth", "[1]")

	got := tb.Entries()
	order := []string{"bib/knuth", "fig/a", "fig/b"}
	for i, e := range got {
		if string(e.Namespace)+"/"+e.Label != order[i] {
			t.Fatalf("entries = %+v", got)
		}
	}
	if got[2].Chapter != "1" {
		t.Errorf("chapter lost: %+v", got[2])
	}
}

func TestParseNamespace(t *testing.T) {
	for _, s := range []string{"fig", "equ", "bib"} {
		if _, err := ParseNamespace(s); err != nil {
			t.Errorf("ParseNamespace(%q): %v", s, err)
		}
	}
	if _, err := ParseNamespace("tab"); err == nil {
		t.Error("expected error for tab")
	}
}
