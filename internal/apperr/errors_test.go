package apperr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
		code Code
	}{
		{&MathError{Reason: "! Undefined control sequence.", Line: 5}, ErrMalformedMath, CodeMalformedMath},
		{&ReferenceError{Label: "eq1", Line: 3}, ErrInvalidReference, CodeInvalidReference},
		{&BibliographyError{Detail: "2 error messages)"}, ErrInvalidBibliography, CodeBibliography},
		{&ToolNotFoundError{Tool: "latex"}, ErrRendererNotFound, CodeToolNotFound},
		{&ToolError{Tool: "dvisvgm", Output: "error: bad dvi"}, ErrRenderer, CodeRenderer},
		{&DelimiterError{Line: 1, Count: 3}, ErrUnevenDelimiter, CodeDelimiter},
		{&BlockError{Header: "$$plot$$", Line: 2, Reason: "unrecognized"}, ErrInvalidBlock, CodeInvalidBlock},
		{&IOError{Op: "write", Path: "x.tex", Err: os.ErrPermission}, ErrIO, CodeIO},
		{fmt.Errorf("label fig:x: %w", ErrNotFound), ErrNotFound, CodeNotFound},
	}
	for _, c := range cases {
		wrapped := &ChapterError{Chapter: "2.", Name: "Intro", Pass: "blocks", Err: fmt.Errorf("scan: %w", c.err)}
		if !errors.Is(wrapped, c.want) {
			t.Errorf("%T does not unwrap to %v", c.err, c.want)
		}
		if got := Classify(wrapped); got != c.code {
			t.Errorf("Classify(%T) = %q, want %q", c.err, got, c.code)
		}
	}
}

func TestIOError_KeepsUnderlying(t *testing.T) {
	err := &IOError{Op: "read", Path: "a.tex", Err: os.ErrNotExist}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("IOError should expose the underlying error")
	}
}

func TestReferenceError_Message(t *testing.T) {
	err := &ReferenceError{Label: "missing", Line: 7}
	msg := err.Error()
	if !strings.Contains(msg, "missing") || !strings.Contains(msg, "line 7") {
		t.Errorf("message = %q, want label and line", msg)
	}
}

func TestMathError_Message(t *testing.T) {
	err := &MathError{Reason: "! Missing $ inserted.", Snippet: "\\frac{a", Line: 4, Source: "abc.tex"}
	msg := err.Error()
	for _, want := range []string{"Missing $ inserted", "line 4", "\\\\frac{a", "abc.tex"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestClassify_Cancel(t *testing.T) {
	if got := Classify(fmt.Errorf("run: %w", context.Canceled)); got != CodeCancel {
		t.Errorf("Classify = %q, want %q", got, CodeCancel)
	}
	if got := Classify(errors.New("boom")); got != CodeUnknown {
		t.Errorf("Classify = %q, want %q", got, CodeUnknown)
	}
}
