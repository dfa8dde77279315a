// SPDX-License-Identifier: MPL-2.0

// Package logging builds the slog.Logger used across moduled.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/moduled/moduled/internal/config"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Prefix is printed in front of every terminal log line.
const Prefix = "moduled"

type (
	// Options controls logger construction.
	Options struct {
		// Level overrides the configured level when non-empty.
		Level config.LogLevel
		// Stderr receives human-readable log output. Defaults to os.Stderr.
		Stderr io.Writer
	}

	// Closer releases the rotating log file, if one was opened.
	Closer func() error
)

// New returns a logger writing to stderr through a charmbracelet/log handler
// and, when cfg.File is set, additionally to a size-rotated logfmt file.
func New(cfg config.LogConfig, opts Options) (*slog.Logger, Closer, error) {
	level := cfg.Level
	if opts.Level != "" {
		level = opts.Level
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	terminal := log.NewWithOptions(stderr, log.Options{
		Prefix:          Prefix,
		Level:           charmLevel(level),
		ReportTimestamp: level == config.LogLevelDebug,
	})

	if cfg.File == "" {
		return slog.New(terminal), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	file := log.NewWithOptions(rotator, log.Options{
		Level:           charmLevel(level),
		ReportTimestamp: true,
		Formatter:       log.LogfmtFormatter,
	})

	return slog.New(&fanout{handlers: []slog.Handler{terminal, file}}), rotator.Close, nil
}

func charmLevel(level config.LogLevel) log.Level {
	switch level {
	case config.LogLevelDebug:
		return log.DebugLevel
	case config.LogLevelWarn:
		return log.WarnLevel
	case config.LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
