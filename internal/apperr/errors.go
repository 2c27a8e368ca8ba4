// Package apperr defines the error taxonomy shared by the scanners, the
// fragment cache and the renderers. Every typed error unwraps to one sentinel
// so callers can branch with errors.Is.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedMath       = errors.New("malformed math")
	ErrInvalidReference    = errors.New("invalid reference")
	ErrInvalidBibliography = errors.New("invalid bibliography")
	ErrRendererNotFound    = errors.New("renderer not found")
	ErrRenderer            = errors.New("renderer failed")
	ErrUnevenDelimiter     = errors.New("uneven number of inline delimiters")
	ErrInvalidBlock        = errors.New("invalid block")
	ErrIO                  = errors.New("i/o failure")
	ErrNotFound            = errors.New("not found")
)

// MathError is a compile failure reported by LaTeX.
type MathError struct {
	Reason  string // the "! ..." line
	Snippet string // offending input after "l.<n>"
	Line    int    // 0 when LaTeX did not report one
	Source  string // intermediate file that failed
}

func (e *MathError) Error() string {
	var b strings.Builder
	b.WriteString("malformed math")
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d", e.Line)
		if e.Snippet != "" {
			fmt.Fprintf(&b, ": %q", e.Snippet)
		}
		b.WriteString(")")
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	return b.String()
}

func (e *MathError) Unwrap() error { return ErrMalformedMath }

// ReferenceError is an unresolved or malformed reference token.
type ReferenceError struct {
	Label  string
	Kind   string
	Line   int
	Reason string
}

func (e *ReferenceError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "could not find reference"
	}
	if e.Label != "" {
		return fmt.Sprintf("%s `%s` in line %d", reason, e.Label, e.Line)
	}
	return fmt.Sprintf("%s in line %d", reason, e.Line)
}

func (e *ReferenceError) Unwrap() error { return ErrInvalidReference }

// BibliographyError is reported when the bibliography cannot be read or converted.
type BibliographyError struct {
	Path   string
	Detail string
	Err    error
}

func (e *BibliographyError) Error() string {
	msg := "invalid bibliography"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BibliographyError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidBibliography, e.Err}
	}
	return []error{ErrInvalidBibliography}
}

// ToolNotFoundError reports a required external binary missing from PATH.
type ToolNotFoundError struct {
	Tool string
	Err  error
}

func (e *ToolNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not found: %v", e.Tool, e.Err)
	}
	return e.Tool + " not found"
}

func (e *ToolNotFoundError) Unwrap() error { return ErrRendererNotFound }

// ToolError is a runtime failure of an external renderer.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := e.Tool + " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRenderer, e.Err}
	}
	return []error{ErrRenderer}
}

// DelimiterError reports a line with an odd number of inline delimiters.
type DelimiterError struct {
	Line  int
	Count int
}

func (e *DelimiterError) Error() string {
	return fmt.Sprintf("uneven number of inline delimiters (%d) in line %d", e.Count, e.Line)
}

func (e *DelimiterError) Unwrap() error { return ErrUnevenDelimiter }

// BlockError reports a block header the scanner refuses to render.
type BlockError struct {
	Header string
	Line   int
	Reason string
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("invalid block %q in line %d: %s", e.Header, e.Line, e.Reason)
}

func (e *BlockError) Unwrap() error { return ErrInvalidBlock }

// IOError wraps a failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

// ChapterError attributes a failure to the chapter being processed.
type ChapterError struct {
	Chapter string // heading number, may be empty for unnumbered chapters
	Name    string
	Pass    string // "blocks" or "inline"
	Err     error
}

func (e *ChapterError) Error() string {
	return fmt.Sprintf("error in chapter %s %q (%s pass): %v", e.Chapter, e.Name, e.Pass, e.Err)
}

func (e *ChapterError) Unwrap() error { return e.Err }

// Code is a short error class used in logs and API responses.
type Code string

const (
	CodeUnknown          Code = "unknown"
	CodeMalformedMath    Code = "malformed_math"
	CodeInvalidReference Code = "invalid_reference"
	CodeBibliography     Code = "invalid_bibliography"
	CodeToolNotFound     Code = "renderer_not_found"
	CodeRenderer         Code = "renderer_failed"
	CodeDelimiter        Code = "unbalanced_inline_delimiter"
	CodeInvalidBlock     Code = "invalid_block"
	CodeIO               Code = "io"
	CodeNotFound         Code = "not_found"
	CodeCancel           Code = "cancel"
)

// Classify maps err onto a Code.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, ErrMalformedMath):
		return CodeMalformedMath
	case errors.Is(err, ErrInvalidReference):
		return CodeInvalidReference
	case errors.Is(err, ErrInvalidBibliography):
		return CodeBibliography
	case errors.Is(err, ErrRendererNotFound):
		return CodeToolNotFound
	case errors.Is(err, ErrRenderer):
		return CodeRenderer
	case errors.Is(err, ErrUnevenDelimiter):
		return CodeDelimiter
	case errors.Is(err, ErrInvalidBlock):
		return CodeInvalidBlock
	case errors.Is(err, ErrIO):
		return CodeIO
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeUnknown
	}
}
