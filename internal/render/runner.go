package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/starford/scimark/internal/apperr"
)

// Command is one invocation of an external tool.
type Command struct {
	Tool  string
	Args  []string
	Dir   string
	Stdin []byte
}

// Output is what a finished tool left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Success reports a zero exit status.
func (o Output) Success() bool { return o.ExitCode == 0 }

// Runner executes external tools. A non-zero exit is not an error: it is
// reported through Output so backends can inspect the tool's log. Errors are
// reserved for tools that cannot be found or started.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs tools as subprocesses.
type ExecRunner struct {
	// Timeout bounds a single invocation; zero means no limit.
	Timeout time.Duration
	// LookPath resolves a tool name; defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

var _ Runner = (*ExecRunner)(nil)

// Run resolves cmd.Tool on PATH and runs it to completion.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	bin, err := lookPath(c.Tool)
	if err != nil {
		return Output{}, &apperr.ToolNotFoundError{Tool: c.Tool, Err: err}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, c.Args...)
	cmd.Dir = c.Dir
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if ctx.Err() != nil {
		return out, &apperr.ToolError{Tool: c.Tool, Output: "interrupted", Err: ctx.Err()}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if err != nil {
		return out, &apperr.ToolError{Tool: c.Tool, Err: fmt.Errorf("start: %w", err)}
	}
	return out, nil
}
