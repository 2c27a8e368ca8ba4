// Package parser implements the two scanners that rewrite chapter text: the
// block scanner for $$-delimited blocks and the inline scanner for $-delimited
// equations and references.
package parser

import (
	"fmt"
	"strings"

	"github.com/starford/scimark/internal/render"
)

const (
	blockDelim  = "$$"
	inlineDelim = "$"
)

// Form is the shape a block header was recognised as.
type Form int

const (
	FormEquation        Form = iota // equation | equ | bare $$
	FormLabeledEquation             // equation,label
	FormFigure                      // latex|gnuplot|gnuplotonly,label,title
	FormUnrecognized
)

var formNames = [...]string{"equation", "labeled-equation", "figure", "unrecognized"}

func (f Form) String() string {
	if int(f) < len(formNames) {
		return formNames[f]
	}
	return fmt.Sprintf("form(%d)", int(f))
}

// FallbackPolicy decides what happens to a FormUnrecognized header.
type FallbackPolicy int

const (
	// UnrecognizedAsEquation renders the block as an unlabeled equation.
	UnrecognizedAsEquation FallbackPolicy = iota
	// RejectUnrecognized fails the chapter with a BlockError.
	RejectUnrecognized
)

// ParseFallbackPolicy maps the config value onto a policy.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch s {
	case "", "equation":
		return UnrecognizedAsEquation, nil
	case "reject":
		return RejectUnrecognized, nil
	}
	return 0, fmt.Errorf("parser: unknown header policy %q", s)
}

// Header is a parsed block header line.
type Header struct {
	Raw    string
	Fields []string
	Form   Form
	Kind   render.Kind
	Label  string
	Title  string
}

// ParseHeader splits a header line into at most three comma-separated fields
// (kind, label, title) and classifies it. The title keeps any further commas.
func ParseHeader(line string) Header {
	parts := strings.SplitN(line, ",", 3)
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = stripStray(strings.TrimSpace(strings.ReplaceAll(p, blockDelim, "")))
	}

	h := Header{Raw: line, Fields: fields, Form: FormUnrecognized, Kind: render.KindEquation}
	kind := fields[0]
	switch {
	case len(fields) == 1 && (kind == "" || isEquation(kind)):
		h.Form = FormEquation
	case len(fields) == 2 && isEquation(kind):
		h.Label = fields[1]
		h.Form = FormLabeledEquation
		if h.Label == "" {
			h.Form = FormEquation
		}
	case len(fields) == 3 && isFigure(kind):
		k, _ := render.ParseKind(kind)
		h.Kind = k
		h.Label = fields[1]
		h.Title = fields[2]
		h.Form = FormFigure
	}
	return h
}

// stripStray drops an unpaired $ left at either end of a field, as in
// "$$equation,eq1$". Paired $ delimit inline math in a title and stay.
func stripStray(field string) string {
	if strings.Count(field, inlineDelim)%2 == 0 {
		return field
	}
	switch {
	case strings.HasSuffix(field, inlineDelim):
		field = strings.TrimSuffix(field, inlineDelim)
	case strings.HasPrefix(field, inlineDelim):
		field = strings.TrimPrefix(field, inlineDelim)
	}
	return strings.TrimSpace(field)
}

// FileName is the name of the external body file, taken from the second
// field. Empty when the header has none.
func (h Header) FileName() string {
	if len(h.Fields) < 2 {
		return ""
	}
	return h.Fields[1]
}

func isEquation(s string) bool { return s == "equation" || s == "equ" }

func isFigure(s string) bool {
	return s == "latex" || s == "gnuplot" || s == "gnuplotonly"
}
