// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/moduled/moduled/internal/fsguard"
	"github.com/moduled/moduled/internal/job"
	"github.com/moduled/moduled/internal/module"
)

const (
	StatusIdle       Status = "IDLE"
	StatusProcessing Status = "PROCESSING"
	StatusError      Status = "ERROR"
	StatusDone       Status = "DONE"
	StatusCanceled   Status = "CANCELED"
)

var (
	// ErrBusy is returned while another operation is processing.
	ErrBusy = errors.New("installer is busy with another operation")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("installer is closed")
	// ErrReadOnly is returned when the write toggle could not make storage writable.
	ErrReadOnly = errors.New("storage could not be made writable")
)

type (
	// Status is the normalized state of the current or last operation.
	Status string

	// Report is what callbacks receive: the normalized status together with
	// the job's own snapshot. Result is set on the final report only.
	Report struct {
		Status   Status       `json:"status"`
		Kind     job.Kind     `json:"kind"`
		JobID    string       `json:"job"`
		Snapshot job.Snapshot `json:"snapshot"`
		Result   job.Result   `json:"-"`
	}

	// Callback receives reports. Calls are serialized.
	Callback func(Report)

	// Installer runs installer jobs one at a time.
	Installer struct {
		deps     job.Deps
		toggle   fsguard.WriteToggle
		blocking bool
		callback Callback
		logger   *slog.Logger

		mu      sync.Mutex
		status  Status
		current job.Job
		op      *operation
		last    Report
		closed  bool

		emitMu sync.Mutex
		wg     sync.WaitGroup
	}

	// operation tracks one started job until its final report is out.
	operation struct {
		done   chan struct{}
		report Report
	}

	// Option configures an Installer.
	Option func(*Installer)
)

// WithBlocking makes every operation wait for its job to finish.
func WithBlocking() Option {
	return func(i *Installer) { i.blocking = true }
}

// WithCallback sets the report callback.
func WithCallback(cb Callback) Option {
	return func(i *Installer) { i.callback = cb }
}

// WithToggle sets the write toggle used around every operation.
func WithToggle(t fsguard.WriteToggle) Option {
	return func(i *Installer) { i.toggle = t }
}

// WithLogger sets the logger. It is also handed to jobs that have none.
func WithLogger(l *slog.Logger) Option {
	return func(i *Installer) { i.logger = l }
}

// New creates an Installer running jobs with deps.
func New(deps job.Deps, opts ...Option) *Installer {
	i := &Installer{
		toggle: fsguard.NopToggle{},
		logger: slog.Default(),
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(i)
	}
	if deps.Logger == nil {
		deps.Logger = i.logger
	}
	if deps.FS == nil {
		deps.FS = fsguard.NewOS()
	}
	i.deps = deps
	return i
}

// Install installs desc.
func (i *Installer) Install(ctx context.Context, desc module.Descriptor) (bool, error) {
	if err := desc.Validate(); err != nil {
		return false, err
	}
	return i.run(ctx, func(cb job.Callback) job.Job {
		return job.NewInstall(i.deps, desc, job.WithCallback(cb))
	})
}

// Uninstall removes desc. With force the operation ends DONE whatever fails.
func (i *Installer) Uninstall(ctx context.Context, desc module.Descriptor, force bool) (bool, error) {
	// Only the name matters; the installed files are found through the manifest.
	if err := (module.Descriptor{Name: desc.Name, Local: true}).Validate(); err != nil {
		return false, err
	}
	return i.run(ctx, func(cb job.Callback) job.Job {
		return job.NewUninstall(i.deps, desc, force, job.WithCallback(cb))
	})
}

// Update replaces the installed module with desc.
func (i *Installer) Update(ctx context.Context, desc module.Descriptor) (bool, error) {
	if err := desc.Validate(); err != nil {
		return false, err
	}
	return i.run(ctx, func(cb job.Callback) job.Job {
		return job.NewUpdate(i.deps, desc, job.WithCallback(cb))
	})
}

// InstallPackage installs an OS package from a local file or URL.
func (i *Installer) InstallPackage(ctx context.Context, source string) (bool, error) {
	if source == "" {
		return false, errors.New("package source is empty")
	}
	return i.run(ctx, func(cb job.Callback) job.Job {
		return job.NewPackageInstall(i.deps, source, job.WithCallback(cb))
	})
}

// UninstallPackage removes the OS package called name.
func (i *Installer) UninstallPackage(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, errors.New("package name is empty")
	}
	return i.run(ctx, func(cb job.Callback) job.Job {
		return job.NewPackageUninstall(i.deps, name, job.WithCallback(cb))
	})
}

// Extract unpacks the archive src into dest.
func (i *Installer) Extract(ctx context.Context, src, dest string) (bool, error) {
	if src == "" || dest == "" {
		return false, errors.New("extract needs a source archive and a destination")
	}
	return i.run(ctx, func(cb job.Callback) job.Job {
		return job.NewExtract(i.deps, src, dest, job.WithCallback(cb))
	})
}

func (i *Installer) run(ctx context.Context, build func(job.Callback) job.Job) (bool, error) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return false, ErrClosed
	}
	if i.status == StatusProcessing {
		i.mu.Unlock()
		return false, ErrBusy
	}

	var j job.Job
	j = build(func(s job.Snapshot) {
		i.emit(Report{Status: StatusProcessing, Kind: j.Kind(), JobID: j.ID(), Snapshot: s})
	})
	op := &operation{done: make(chan struct{})}
	i.status = StatusProcessing
	i.current = j
	i.op = op
	i.wg.Add(1)
	i.mu.Unlock()

	logger := i.logger.With("job", j.ID(), "kind", string(j.Kind()))

	if err := i.toggle.EnableWrite(ctx); err != nil {
		logger.Error("could not make storage writable", "error", err)
		if derr := i.toggle.DisableWrite(context.WithoutCancel(ctx)); derr != nil {
			logger.Warn("could not restore read-only storage", "error", derr)
		}
		i.finish(op, Report{Status: StatusError, Kind: j.Kind(), JobID: j.ID(), Snapshot: j.Snapshot()})
		return false, fmt.Errorf("%w: %w", ErrReadOnly, err)
	}

	logger.Debug("starting job")
	j.Start()
	go i.watch(j, op, logger)

	if !i.blocking {
		return true, nil
	}
	select {
	case <-op.done:
		return op.report.Status == StatusDone, nil
	case <-ctx.Done():
		j.Cancel()
		return false, fmt.Errorf("waiting for %s: %w", j.Kind(), ctx.Err())
	}
}

func (i *Installer) watch(j job.Job, op *operation, logger *slog.Logger) {
	<-j.Done()

	if err := i.toggle.DisableWrite(context.Background()); err != nil {
		logger.Error("could not restore read-only storage", "error", err)
	}

	res := j.Result()
	rep := Report{Status: Translate(res), Kind: j.Kind(), JobID: j.ID(), Result: res}
	if res != nil {
		rep.Snapshot = res.Snapshot()
	}
	logger.Debug("job done", "status", string(rep.Status))
	i.finish(op, rep)
}

func (i *Installer) finish(op *operation, rep Report) {
	op.report = rep

	i.mu.Lock()
	i.status = rep.Status
	i.last = rep
	i.current = nil
	i.mu.Unlock()

	i.emit(rep)
	close(op.done)
	i.wg.Done()
}

func (i *Installer) emit(r Report) {
	if i.callback == nil {
		return
	}
	i.emitMu.Lock()
	defer i.emitMu.Unlock()
	i.callback(r)
}

// Cancel asks the running job to stop. It returns false when nothing is
// running or the job cannot be cancelled (uninstall, or a package job
// whose package manager already started).
func (i *Installer) Cancel() bool {
	i.mu.Lock()
	j := i.current
	i.mu.Unlock()

	if j == nil {
		return false
	}
	return j.Cancel()
}

// Status returns the status of the current or last operation.
func (i *Installer) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Last returns the final report of the most recent finished operation.
func (i *Installer) Last() Report {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}

// Wait blocks until the running operation, if any, has delivered its final
// report.
func (i *Installer) Wait(ctx context.Context) error {
	i.mu.Lock()
	op := i.op
	i.mu.Unlock()

	if op == nil {
		return nil
	}
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new operations, cancels the running job when it can be
// cancelled and waits for it to finish.
func (i *Installer) Close(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()

	i.Cancel()

	joined := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("closing installer: %w", ctx.Err())
	}
}

// Translate maps a job result to the installer status vocabulary.
func Translate(res job.Result) Status {
	switch r := res.(type) {
	case job.InstallResult:
		switch r.State {
		case job.Installed:
			return StatusDone
		case job.InstallCanceled:
			return StatusCanceled
		default:
			return StatusError
		}
	case job.UninstallResult:
		if r.State == job.Uninstalled {
			return StatusDone
		}
		return StatusError
	case job.UpdateResult:
		switch {
		case r.State == job.Updated:
			return StatusDone
		case r.Install.State == job.InstallCanceled:
			return StatusCanceled
		default:
			return StatusError
		}
	case job.PackageResult:
		return taskStatus(r.State)
	case job.ExtractResult:
		return taskStatus(r.State)
	default:
		return StatusError
	}
}

func taskStatus(s job.TaskState) Status {
	switch s {
	case job.TaskDone:
		return StatusDone
	case job.TaskCanceled:
		return StatusCanceled
	default:
		return StatusError
	}
}
