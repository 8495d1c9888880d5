// Package executor runs the command of a work unit
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Commander interface for testing
type Commander interface {
	Run() error
}

// Result describes a finished command
type Result struct {
	ExitCode int
	Elapsed  time.Duration
}

// Runner executes work unit commands
type Runner struct {
	execCommand func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) Commander
	stdout      io.Writer
	stderr      io.Writer
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithOutput sets where the command's stdout and stderr go
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a runner writing command output to the process streams
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		execCommand: func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) Commander {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Dir = dir
			cmd.Stdout = stdout
			cmd.Stderr = stderr
			return cmd
		},
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes argv in dir and waits for it.
// A non-zero exit is returned as an error wrapping *exec.ExitError, with the
// code also set on the result.
func (r *Runner) Run(ctx context.Context, dir string, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("no command to run")
	}

	r.logger.Debug("running command", "dir", dir, "command", strings.Join(argv, " "))

	start := r.now()
	err := r.execCommand(ctx, dir, r.stdout, r.stderr, argv[0], argv[1:]...).Run()
	result := Result{Elapsed: r.now().Sub(start)}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("command %s exited with code %d: %w", argv[0], result.ExitCode, err)
		}

		result.ExitCode = -1
		return result, fmt.Errorf("failed to run command %s: %w", argv[0], err)
	}

	r.logger.Debug("command finished", "command", argv[0], "elapsed", result.Elapsed)

	return result, nil
}
