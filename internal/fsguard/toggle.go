// SPDX-License-Identifier: MPL-2.0

package fsguard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned by NewCommandToggle for an empty argv.
var ErrEmptyCommand = errors.New("empty remount command")

type (
	// WriteToggle switches storage between read-only and read-write.
	// Callers pair every EnableWrite with a DisableWrite.
	WriteToggle interface {
		EnableWrite(ctx context.Context) error
		DisableWrite(ctx context.Context) error
	}

	// NopToggle is used when storage is always writable.
	NopToggle struct{}

	// CommandRunner runs argv and returns its combined output.
	CommandRunner func(ctx context.Context, argv []string) ([]byte, error)

	// CommandToggle runs external commands (typically mount -o remount,...)
	// to flip storage mutability.
	CommandToggle struct {
		enable  []string
		disable []string
		run     CommandRunner
	}

	// CommandToggleOption configures a CommandToggle.
	CommandToggleOption func(*CommandToggle)
)

// EnableWrite does nothing.
func (NopToggle) EnableWrite(context.Context) error { return nil }

// DisableWrite does nothing.
func (NopToggle) DisableWrite(context.Context) error { return nil }

// WithCommandRunner replaces the exec-based runner.
func WithCommandRunner(run CommandRunner) CommandToggleOption {
	return func(t *CommandToggle) {
		t.run = run
	}
}

// NewCommandToggle returns a toggle that runs enable before and disable
// after each mutating operation.
func NewCommandToggle(enable, disable []string, opts ...CommandToggleOption) (*CommandToggle, error) {
	if len(enable) == 0 || len(disable) == 0 {
		return nil, ErrEmptyCommand
	}
	t := &CommandToggle{
		enable:  enable,
		disable: disable,
		run:     execRunner,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// EnableWrite makes storage writable.
func (t *CommandToggle) EnableWrite(ctx context.Context) error {
	return t.exec(ctx, t.enable)
}

// DisableWrite makes storage read-only again.
func (t *CommandToggle) DisableWrite(ctx context.Context) error {
	return t.exec(ctx, t.disable)
}

func (t *CommandToggle) exec(ctx context.Context, argv []string) error {
	out, err := t.run(ctx, argv)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, msg)
		}
		return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return nil
}

func execRunner(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput() //nolint:gosec // argv comes from operator config
}
