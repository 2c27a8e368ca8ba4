// Package render turns fragment sources into SVG artifacts by driving the
// external tools (latex, dvisvgm, gnuplot).
package render

import (
	"fmt"
	"strings"
)

// Kind selects the backend that renders a fragment.
type Kind int

const (
	KindEquation Kind = iota
	KindLatex
	KindGnuplot
	KindGnuplotOnly
)

var kindNames = [...]string{
	KindEquation:    "equation",
	KindLatex:       "latex",
	KindGnuplot:     "gnuplot",
	KindGnuplotOnly: "gnuplotonly",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts the names used in block headers; "equ" is an alias of equation.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equation", "equ":
		return KindEquation, nil
	case "latex":
		return KindLatex, nil
	case "gnuplot":
		return KindGnuplot, nil
	case "gnuplotonly":
		return KindGnuplotOnly, nil
	}
	return 0, fmt.Errorf("render: unknown kind %q", s)
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindEquation, KindLatex, KindGnuplot, KindGnuplotOnly}
}
