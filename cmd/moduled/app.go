// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/moduled/moduled/internal/config"
	"github.com/moduled/moduled/internal/download"
	"github.com/moduled/moduled/internal/fsguard"
	"github.com/moduled/moduled/internal/hook"
	"github.com/moduled/moduled/internal/installer"
	"github.com/moduled/moduled/internal/issue"
	"github.com/moduled/moduled/internal/job"
	"github.com/moduled/moduled/internal/logging"
	"github.com/moduled/moduled/internal/module"
)

// closeTimeout bounds how long the CLI waits for a canceled job to roll back.
const closeTimeout = 2 * time.Minute

type (
	// App wires CLI services and shared dependencies. It is the composition root for
	// the CLI layer: all Cobra command handlers receive an App reference and build
	// their per-invocation session through it.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer
		flags  globalFlags
	}

	// Dependencies defines the injection points for building an App. Nil fields are
	// replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	globalFlags struct {
		configPath  string
		catalogPath string
		verbose     bool
		jsonOutput  bool
	}

	// session holds everything one command invocation needs: the loaded
	// config, the logger and the job dependencies derived from both.
	session struct {
		cfg      *config.Config
		source   string
		logger   *slog.Logger
		closeLog logging.Closer
		deps     job.Deps
		toggle   fsguard.WriteToggle
	}

	// operation runs one installer call on behalf of a command.
	operation func(ctx context.Context, s *session, inst *installer.Installer) (bool, error)
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// openSession loads configuration and builds the logger and job dependencies.
func (a *App) openSession(ctx context.Context) (*session, error) {
	cfg, source, err := a.Config.LoadWithSource(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return nil, newServiceError(err, issue.ConfigLoadFailedId, "")
	}

	var level config.LogLevel
	if a.flags.verbose {
		level = config.LogLevelDebug
	}
	logger, closeLog, err := logging.New(cfg.Log, logging.Options{Level: level, Stderr: a.stderr})
	if err != nil {
		return nil, newServiceError(issue.Wrap(err, "open log file", cfg.Log.File), issue.ConfigLoadFailedId, "")
	}

	policy, err := module.NewPolicy(cfg.ProtectedLibraries)
	if err != nil {
		_ = closeLog()
		return nil, newServiceError(err, issue.ConfigLoadFailedId, "")
	}

	toggle, err := newToggle(cfg.Storage)
	if err != nil {
		_ = closeLog()
		return nil, newServiceError(err, issue.ConfigLoadFailedId, "")
	}

	fsys := fsguard.NewOS()
	s := &session{
		cfg:      cfg,
		source:   source,
		logger:   logger,
		closeLog: closeLog,
		toggle:   toggle,
		deps: job.Deps{
			Layout: module.Layout{
				StateDir:    cfg.Paths.StateDir,
				BackendDir:  cfg.Paths.BackendDir,
				FrontendDir: cfg.Paths.FrontendDir,
				CacheDir:    cfg.Paths.CacheDir,
			},
			FS: fsys,
			Fetcher: download.New(
				download.WithRetries(cfg.Download.Retries),
				download.WithTimeout(cfg.Download.Timeout),
				download.WithLogger(logger),
				download.WithVersion(Version),
			),
			Hooks:  hook.New(hook.WithLogger(logger), hook.WithFS(fsys)),
			Policy: policy,
			Packages: job.PackageCommands{
				Install:   cfg.Packages.Install,
				Uninstall: cfg.Packages.Uninstall,
			},
			Logger: logger,
		},
	}
	logger.Debug("configuration loaded", "source", sourceLabel(source))
	return s, nil
}

// Close releases the log file.
func (s *session) Close() error {
	if s.closeLog == nil {
		return nil
	}
	return s.closeLog()
}

// catalog loads the module catalog named by --catalog or the config.
func (a *App) catalog(s *session) (*module.Catalog, error) {
	path := a.flags.catalogPath
	if path == "" {
		path = s.cfg.Catalog
	}
	cat, err := module.LoadCatalog(path)
	if err != nil {
		return nil, newServiceError(issue.NewErrorContext().
			WithOperation("load module catalog").
			WithResource(path).
			WithSuggestion("Check that every [[module]] entry has a name, url and checksum").
			WithSuggestion("Pass --catalog to read a different catalog file").
			Wrap(err).
			BuildError(), issue.CatalogLoadFailedId, "")
	}
	return cat, nil
}

// lookup resolves name in the catalog.
func (a *App) lookup(s *session, name string) (module.Descriptor, error) {
	cat, err := a.catalog(s)
	if err != nil {
		return module.Descriptor{}, err
	}
	desc, err := cat.Lookup(name)
	if err != nil {
		return module.Descriptor{}, newServiceError(err, issue.ModuleNotFoundId, "")
	}
	return desc, nil
}

// installedDescriptor describes an installed module for uninstall. The
// installed record wins over the catalog so hooks see the version that is
// actually on disk.
func (a *App) installedDescriptor(s *session, name string) module.Descriptor {
	rec, err := module.ReadRecord(s.deps.FS, s.deps.Layout.RecordPath(name))
	if err == nil {
		return rec.Descriptor()
	}
	if !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("could not read installed record", "module", name, "error", err)
	}
	if cat, cerr := a.catalog(s); cerr == nil {
		if desc, lerr := cat.Lookup(name); lerr == nil {
			return desc
		}
	}
	return module.Descriptor{Name: name}
}

// runOperation opens a session, runs op on a blocking installer and renders
// the outcome. A false result from op becomes an ExitError.
func (a *App) runOperation(ctx context.Context, op operation) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = s.Close() }() // Log file close error is non-critical at exit.

	printer := newProgressPrinter(a.stdout, a.stderr, a.flags.verbose)
	opts := []installer.Option{
		installer.WithBlocking(),
		installer.WithToggle(s.toggle),
		installer.WithLogger(s.logger),
	}
	if !a.flags.jsonOutput {
		opts = append(opts, installer.WithCallback(printer.report))
	}
	inst := installer.New(s.deps, opts...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := inst.Close(closeCtx); cerr != nil {
			s.logger.Warn("installer did not shut down cleanly", "error", cerr)
		}
	}()

	ok, err := op(ctx, s, inst)
	interrupted := err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil
	if interrupted {
		// The job is rolling back; wait for its final report.
		waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		werr := inst.Wait(waitCtx)
		cancel()
		if werr != nil {
			return a.fail(werr)
		}
	} else if err != nil {
		return a.fail(classify(err))
	}
	printer.stop()

	rep := inst.Last()
	if err := a.printReport(printer, rep); err != nil {
		return err
	}
	if interrupted {
		if exit := interruptExit(rep); exit != nil {
			return exit
		}
		// The job ignored the interrupt and ran to completion.
		ok = rep.Status == installer.StatusDone
	}
	if !ok {
		failure := fmt.Errorf("%s %s: %s", rep.Kind, rep.Snapshot.Module, rep.Status)
		return a.fail(newServiceError(failure, issueForResult(rep.Result), ""))
	}
	return nil
}

// interruptedExitCode matches the shell convention for SIGINT.
const interruptedExitCode = 130

// interruptExit returns the exit for an interrupted operation whose job was
// canceled, or nil when the job finished on its own terms.
func interruptExit(rep installer.Report) *ExitError {
	if rep.Status != installer.StatusCanceled {
		return nil
	}
	return &ExitError{Code: interruptedExitCode, Err: fmt.Errorf("%s interrupted", rep.Kind)}
}

func (a *App) printReport(printer *progressPrinter, rep installer.Report) error {
	if a.flags.jsonOutput {
		return writeJSON(a.stdout, rep)
	}
	printer.summary(rep)
	return nil
}

// fail renders the issue help and operator hints attached to err, if any,
// and wraps it in an ExitError. Verbose mode also prints the cause chain.
func (a *App) fail(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		renderServiceError(a.stderr, svcErr)
	}
	var actErr *issue.ActionableError
	if errors.As(err, &actErr) && (actErr.HasSuggestions() || a.flags.verbose) {
		fmt.Fprintln(a.stderr, actErr.Format(a.flags.verbose))
	}
	return &ExitError{Code: 1, Err: err}
}

// classify attaches an issue ID to errors returned by installer calls.
func classify(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	switch {
	case errors.Is(err, installer.ErrBusy):
		return newServiceError(err, issue.InstallerBusyId, "")
	case errors.Is(err, installer.ErrReadOnly):
		return newServiceError(issue.NewErrorContext().
			WithOperation("make storage writable").
			WithSuggestion(
				"Check storage.remount_rw in the configuration",
				"Run moduled as a user allowed to remount the filesystem",
			).
			Wrap(err).
			BuildError(), issue.ReadOnlyFilesystemId, "")
	case errors.Is(err, module.ErrModuleNotFound):
		return newServiceError(err, issue.ModuleNotFoundId, "")
	case errors.Is(err, fs.ErrPermission):
		return newServiceError(err, issue.PermissionDeniedId, "")
	default:
		return newServiceError(err, 0, "")
	}
}

// newToggle builds the write toggle for storage. Read-write storage needs none.
func newToggle(cfg config.StorageConfig) (fsguard.WriteToggle, error) {
	if !cfg.ReadOnly {
		return fsguard.NopToggle{}, nil
	}
	enable, err := hook.ExpandCommand(cfg.RemountRW, nil)
	if err != nil {
		return nil, fmt.Errorf("storage.remount_rw: %w", err)
	}
	disable, err := hook.ExpandCommand(cfg.RemountRO, nil)
	if err != nil {
		return nil, fmt.Errorf("storage.remount_ro: %w", err)
	}
	toggle, err := fsguard.NewCommandToggle(enable, disable)
	if err != nil {
		return nil, err
	}
	return toggle, nil
}

func sourceLabel(source string) string {
	if source == "" {
		return "(defaults)"
	}
	return source
}
