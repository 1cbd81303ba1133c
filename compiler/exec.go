package compiler

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

//go:embed compile.py
var compileScript string

// DefaultPython is the interpreter Exec runs when none is configured.
const DefaultPython = "python3"

// Exec compiles source by running a Python interpreter as a subprocess.
// It is safe for concurrent use.
type Exec struct {
	python string
	env    []string
	logger zerolog.Logger
}

// ExecOption configures an Exec.
type ExecOption func(*Exec)

// WithPython sets the interpreter command or path.
func WithPython(python string) ExecOption {
	return func(e *Exec) {
		e.python = python
	}
}

// WithEnv sets extra environment variables for the interpreter, in
// "KEY=value" form.
func WithEnv(env []string) ExecOption {
	return func(e *Exec) {
		e.env = env
	}
}

// WithLogger sets the logger used for subprocess diagnostics.
func WithLogger(logger zerolog.Logger) ExecOption {
	return func(e *Exec) {
		e.logger = logger
	}
}

// NewExec returns a compiler backed by a Python interpreter.
func NewExec(opts ...ExecOption) *Exec {
	e := &Exec{python: DefaultPython, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Python returns the configured interpreter.
func (e *Exec) Python() string {
	return e.python
}

// Compile implements Compiler.
func (e *Exec) Compile(ctx context.Context, source, filename string) (*Handle, error) {
	if filename == "" {
		filename = "<string>"
	}
	// -I isolates the interpreter from the user's site packages and
	// environment; -S skips the site module.
	cmd := exec.CommandContext(ctx, e.python, "-I", "-S", "-c", compileScript, filename)
	cmd.Stdin = strings.NewReader(source)
	if len(e.env) > 0 {
		cmd.Env = append(cmd.Environ(), e.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug().
		Str("python", e.python).
		Str("filename", filename).
		Int("source_bytes", len(source)).
		Msg("compiling source")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("compiler: %s: %w", filename, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("compiler: %s exited with status %d: %s",
				e.python, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("compiler: running %s: %w", e.python, err)
	}
	h, err := DecodeResult(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	e.logger.Debug().
		Str("filename", filename).
		Str("version", h.Version).
		Msg("compiled source")
	return h, nil
}
