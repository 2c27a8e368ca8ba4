package parser

import (
	"fmt"

	"github.com/starford/scimark/internal/reference"
)

// FigureMarkup renders a numbered figure with caption.
func FigureMarkup(label, file, number, title string) string {
	return fmt.Sprintf(`<figure id="%s" class="figure"><object data="assets/%s" type="image/svg+xml"/></object><figcaption>Figure %s %s</figcaption></figure>`,
		label, file, number, title)
}

// EquationMarkup renders a numbered display equation.
func EquationMarkup(label, file, number string) string {
	return fmt.Sprintf(`<div id="%s" class="equation"><div class="equation_inner"><object data="assets/%s" type="image/svg+xml"></object></div><span>(%s)</span></div>`+"\n",
		label, file, number)
}

// UnlabeledEquationMarkup renders a display equation without number.
func UnlabeledEquationMarkup(file string) string {
	return fmt.Sprintf(`<div class="equation"><div class="equation_inner"><object data="assets/%s" type="image/svg+xml"></object></div></div>`+"\n", file)
}

// InlineEquationMarkup renders an equation inside running text.
func InlineEquationMarkup(file string) string {
	return fmt.Sprintf(`<object class="equation_inline" data="assets/%s" type="image/svg+xml"></object>`, file)
}

// AnchorMarkup renders a resolved reference.
func AnchorMarkup(ns reference.Namespace, label, display string) string {
	switch ns {
	case reference.Citation:
		return fmt.Sprintf(`<a class="bib_ref" href='bibliography.html#%s'>%s</a>`, label, display)
	case reference.Equation:
		return fmt.Sprintf(`<a class="equ_ref" href='#%s'>Eq. (%s)</a>`, label, display)
	default:
		return fmt.Sprintf(`<a class="fig_ref" href='#%s'>%s</a>`, label, display)
	}
}
