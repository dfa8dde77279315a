// SPDX-License-Identifier: MPL-2.0

// Package hook runs module lifecycle scripts and other helper commands as
// subprocesses, streaming their output line by line.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/moduled/moduled/internal/fsguard"
)

const (
	// KilledReturnCode is reported for processes terminated by a signal,
	// matching the shell convention for SIGINT.
	KilledReturnCode = 130

	// DefaultWaitDelay bounds how long Run waits for output pipes held open
	// by orphaned grandchildren after the script itself exited.
	DefaultWaitDelay = 5 * time.Second
)

// ErrEmptyCommand is returned by Command for an empty argv.
var ErrEmptyCommand = errors.New("empty command")

type (
	// LineFunc receives one line of output without its trailing newline.
	LineFunc func(line string)

	// Sinks receive stdout and stderr lines. Either may be nil. Each sink is
	// called from a single goroutine, in output order.
	Sinks struct {
		Stdout LineFunc
		Stderr LineFunc
	}

	// Result is the outcome of a finished subprocess.
	Result struct {
		ReturnCode int
		Killed     bool
	}

	// Runner starts subprocesses in their own process group.
	Runner struct {
		env       []string
		waitDelay time.Duration
		logger    *slog.Logger
		fs        *fsguard.Helper
	}

	// Option configures a Runner.
	Option func(*Runner)
)

// OK reports whether the process exited with status 0.
func (r Result) OK() bool {
	return r.ReturnCode == 0 && !r.Killed
}

// WithEnv appends KEY=VALUE entries to every child's environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) { r.waitDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithFS sets the filesystem helper used to inspect and chmod scripts.
func WithFS(h *fsguard.Helper) Option {
	return func(r *Runner) { r.fs = h }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		waitDelay: DefaultWaitDelay,
		logger:    slog.Default(),
		fs:        fsguard.NewOS(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run marks the script at path executable and runs it with its own
// directory as working directory. Extra env entries are added after the
// runner's. Cancelling ctx kills the script's whole process group.
//
// Run does not interpret the exit status; a non-zero Result is not an error.
// Errors are reserved for scripts that could not be started.
func (r *Runner) Run(ctx context.Context, path string, sinks Sinks, env ...string) (Result, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("hook %s: %w", filepath.Base(path), err)
	}
	if err := r.fs.Chmod(path, info.Mode().Perm()|0o111); err != nil {
		return Result{}, fmt.Errorf("hook %s: make executable: %w", filepath.Base(path), err)
	}

	cmd := exec.CommandContext(ctx, path) //nolint:gosec // path is a hook shipped inside a checksum-verified archive
	cmd.Dir = filepath.Dir(path)
	return r.run(ctx, cmd, sinks, env)
}

// Command runs argv[0] (looked up in PATH) with the remaining arguments
// using the same streaming and cancellation behavior as Run.
func (r *Runner) Command(ctx context.Context, argv []string, sinks Sinks, env ...string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, ErrEmptyCommand
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from operator config
	return r.run(ctx, cmd, sinks, env)
}

func (r *Runner) run(ctx context.Context, cmd *exec.Cmd, sinks Sinks, env []string) (Result, error) {
	if len(r.env) > 0 || len(env) > 0 {
		cmd.Env = append(append(os.Environ(), r.env...), env...)
	}

	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = r.waitDelay

	stdout := newLineWriter(sinks.Stdout)
	stderr := newLineWriter(sinks.Stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	r.logger.Debug("subprocess started", "path", cmd.Path, "pid", cmd.Process.Pid)

	waitErr := cmd.Wait()
	stdout.Flush()
	stderr.Flush()

	state := cmd.ProcessState
	if state == nil {
		return Result{}, fmt.Errorf("wait %s: %w", cmd.Path, waitErr)
	}

	// ExitCode is -1 for processes terminated by a signal.
	if state.ExitCode() == -1 {
		r.logger.Debug("subprocess killed", "path", cmd.Path, "canceled", ctx.Err() != nil)
		return Result{ReturnCode: KilledReturnCode, Killed: true}, nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) && ctx.Err() == nil {
		return Result{}, fmt.Errorf("wait %s: %w", cmd.Path, waitErr)
	}

	return Result{ReturnCode: state.ExitCode()}, nil
}
