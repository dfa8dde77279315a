// SPDX-License-Identifier: MPL-2.0

package job

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/moduled/moduled/internal/hook"
)

// base carries the lifecycle shared by every job: identity, the snapshot,
// cancellation and the done channel. Concrete jobs embed it.
type base struct {
	id     string
	kind   Kind
	deps   Deps
	logger *slog.Logger
	cb     Callback

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards snap, result and cancelable.
	mu         sync.Mutex
	snap       Snapshot
	result     Result
	cancelable bool

	// emitMu serializes callbacks so observers see snapshots in order.
	emitMu sync.Mutex

	started atomic.Bool
	done    chan struct{}
}

func newBase(kind Kind, deps Deps, moduleName string, status fmt.Stringer, cancelable bool, opts []Option) *base {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	deps = deps.withDefaults()

	b := &base{
		id:         uuid.NewString(),
		kind:       kind,
		deps:       deps,
		cb:         o.callback,
		cancelable: cancelable,
		done:       make(chan struct{}),
		snap: Snapshot{
			Module:        moduleName,
			Status:        status.String(),
			PreScript:     newScriptOutput(),
			PostScript:    newScriptOutput(),
			UpdateProcess: o.updateProcess,
			Progress:      []string{},
		},
	}
	b.logger = deps.Logger.With("job", b.id, "kind", string(kind), "module", moduleName)
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

func (b *base) ID() string { return b.id }

func (b *base) Kind() Kind { return b.kind }

func (b *base) Done() <-chan struct{} { return b.done }

func (b *base) info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Info{ID: b.id, Kind: b.kind, Module: b.snap.Module}
}

// Snapshot returns a copy of the current snapshot.
func (b *base) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap.Clone()
}

func (b *base) Result() Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// Wait blocks until the job finished or ctx is done.
func (b *base) Wait(ctx context.Context) (Result, error) {
	select {
	case <-b.done:
		return b.Result(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s job: %w", b.kind, ctx.Err())
	}
}

func (b *base) Cancelable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.cancelable {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *base) Cancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.cancelable {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
	}
	if b.ctx.Err() == nil {
		b.logger.Info("cancellation requested")
	}
	b.cancel()
	return true
}

// enterCritical disables cancellation for the rest of the job. It returns
// false when cancellation was already requested.
func (b *base) enterCritical() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return false
	}
	b.cancelable = false
	return true
}

// launch runs fn on a new goroutine. A panic inside fn is reported to the
// crash reporter and replaced by the result of crashed.
func (b *base) launch(fn func(context.Context) Result, crashed func() Result) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(b.done)
		defer b.cancel()

		res := b.protect(fn, crashed)

		b.mu.Lock()
		b.snap.Status = statusOf(res)
		b.result = res.withSnapshot(b.snap.Clone())
		b.mu.Unlock()

		b.logger.Info("job finished", "state", statusOf(res))
		b.publish()
	}()
}

func (b *base) protect(fn func(context.Context) Result, crashed func() Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			b.deps.Reporter.ReportCrash(b.info(), r, debug.Stack())
			b.progressf("internal error: %v", r)
			res = crashed()
		}
	}()
	return fn(b.ctx)
}

func statusOf(r Result) string {
	switch r := r.(type) {
	case InstallResult:
		return r.State.String()
	case UninstallResult:
		return r.State.String()
	case UpdateResult:
		return r.State.String()
	case PackageResult:
		return r.State.String()
	case ExtractResult:
		return r.State.String()
	default:
		panic(fmt.Sprintf("job: unknown result type %T", r))
	}
}

// publish hands a copy of the snapshot to the callback.
func (b *base) publish() {
	if b.cb == nil {
		return
	}
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.cb(b.Snapshot())
}

func (b *base) update(fn func(s *Snapshot)) {
	b.mu.Lock()
	fn(&b.snap)
	b.mu.Unlock()
	b.publish()
}

func (b *base) setStatus(status fmt.Stringer) {
	b.update(func(s *Snapshot) { s.Status = status.String() })
}

// progressf appends a line to the progress trail and publishes it.
func (b *base) progressf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	b.update(func(s *Snapshot) { s.Progress = append(s.Progress, line) })
}

// sinks returns hook sinks that append to the given phase's output.
func (b *base) sinks(p phase) hook.Sinks {
	return hook.Sinks{
		Stdout: func(line string) {
			b.update(func(s *Snapshot) { out := s.script(p); out.Stdout = append(out.Stdout, line) })
		},
		Stderr: func(line string) {
			b.update(func(s *Snapshot) { out := s.script(p); out.Stderr = append(out.Stderr, line) })
		},
	}
}

func (b *base) setReturnCode(p phase, code int) {
	b.update(func(s *Snapshot) { s.script(p).ReturnCode = &code })
}
