// SPDX-License-Identifier: MPL-2.0

// Package job implements the long-running installer operations: module
// install, uninstall and update, plus the package-manager and archive
// extraction pass-throughs.
//
// Every job runs on its own goroutine once started, reports progress as
// Snapshot values through an optional callback and ends with a Result.
// Jobs are single-use.
package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/moduled/moduled/internal/download"
	"github.com/moduled/moduled/internal/fsguard"
	"github.com/moduled/moduled/internal/hook"
	"github.com/moduled/moduled/internal/module"
)

const (
	KindInstall   Kind = "install"
	KindUninstall Kind = "uninstall"
	KindUpdate    Kind = "update"
	KindPackage   Kind = "package"
	KindExtract   Kind = "extract"
)

type (
	// Kind names a job type.
	Kind string

	// Callback receives a copy of the job snapshot after every change.
	// Calls for one job are serialized but happen on job goroutines.
	Callback func(Snapshot)

	// Job is the handle shared by every job type.
	Job interface {
		ID() string
		Kind() Kind
		// Start launches the job. Calls after the first are no-ops.
		Start()
		// Cancel requests cancellation and reports whether the request was
		// accepted. Jobs that are not, or are no longer, cancellable return false.
		Cancel() bool
		Cancelable() bool
		// Done is closed after the final callback has returned.
		Done() <-chan struct{}
		Wait(ctx context.Context) (Result, error)
		Snapshot() Snapshot
		// Result returns nil until Done is closed.
		Result() Result
	}

	// Fetcher downloads and verifies archives.
	Fetcher interface {
		Fetch(ctx context.Context, url, expectedSHA256, dir string, progress download.ProgressFunc) (download.Result, error)
	}

	// HookRunner runs lifecycle scripts and commands.
	HookRunner interface {
		Run(ctx context.Context, path string, sinks hook.Sinks, env ...string) (hook.Result, error)
		Command(ctx context.Context, argv []string, sinks hook.Sinks, env ...string) (hook.Result, error)
	}

	// PackageCommands are the OS package manager command templates. $PKG
	// expands to the package file (install) or name (uninstall).
	PackageCommands struct {
		Install   string
		Uninstall string
	}

	// Deps are the collaborators shared by all jobs.
	Deps struct {
		Layout   module.Layout
		FS       *fsguard.Helper
		Fetcher  Fetcher
		Hooks    HookRunner
		Policy   module.Policy
		Packages PackageCommands
		Logger   *slog.Logger
		Reporter CrashReporter
		Now      func() time.Time
	}

	// Option configures a single job.
	Option func(*options)

	options struct {
		callback      Callback
		updateProcess bool
	}
)

// WithCallback sets the snapshot callback.
func WithCallback(cb Callback) Option {
	return func(o *options) { o.callback = cb }
}

// WithUpdateProcess marks the job's snapshots as part of an update.
func WithUpdateProcess() Option {
	return func(o *options) { o.updateProcess = true }
}

func (d Deps) withDefaults() Deps {
	if d.FS == nil {
		d.FS = fsguard.NewOS()
	}
	if d.Fetcher == nil {
		d.Fetcher = download.New()
	}
	if d.Hooks == nil {
		d.Hooks = hook.New(hook.WithFS(d.FS))
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Reporter == nil {
		d.Reporter = LogReporter{Logger: d.Logger}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
