// SPDX-License-Identifier: MPL-2.0

package job

import (
	"context"
	"errors"
	"io/fs"

	"github.com/moduled/moduled/internal/module"
)

// UpdateJob replaces an installed module: a forced uninstall followed by an
// install of the new descriptor. Both phases' snapshots are forwarded under
// Snapshot.Uninstall and Snapshot.Install.
type UpdateJob struct {
	*base
	desc module.Descriptor
}

// NewUpdate creates an update job for desc.
func NewUpdate(deps Deps, desc module.Descriptor, opts ...Option) *UpdateJob {
	return &UpdateJob{
		base: newBase(KindUpdate, deps, desc.Name, UpdateIdle, true, append(opts, WithUpdateProcess())),
		desc: desc,
	}
}

// Start launches the job.
func (j *UpdateJob) Start() {
	j.launch(j.run, func() Result { return UpdateResult{State: UpdateError} })
}

func (j *UpdateJob) run(ctx context.Context) Result {
	j.setStatus(Updating)
	j.logger.Info("updating module", "version", j.desc.Version)

	un := NewUninstall(j.deps, j.installed(), true, WithUpdateProcess(), WithCallback(func(s Snapshot) {
		j.update(func(snap *Snapshot) { snap.Uninstall = &s })
	}))
	un.Start()
	<-un.Done()
	ur, _ := un.Result().(UninstallResult)
	if ur.Suppressed != "" {
		j.logger.Warn("uninstall phase failed, installing anyway", "state", ur.Suppressed.String())
		j.progressf("warning: uninstall phase reported %s", ur.Suppressed)
	}

	res := UpdateResult{State: UpdateError, Uninstall: ur}

	if ctx.Err() != nil {
		j.progressf("canceled before install")
		skipped := Snapshot{
			Module:        j.desc.Name,
			Status:        InstallCanceled.String(),
			PreScript:     newScriptOutput(),
			PostScript:    newScriptOutput(),
			UpdateProcess: true,
			Progress:      []string{"canceled"},
		}
		j.update(func(snap *Snapshot) { snap.Install = &skipped })
		res.Install = InstallResult{State: InstallCanceled, Snap: skipped}
		return res
	}

	in := NewInstall(j.deps, j.desc, WithUpdateProcess(), WithCallback(func(s Snapshot) {
		j.update(func(snap *Snapshot) { snap.Install = &s })
	}))
	stop := context.AfterFunc(ctx, func() { in.Cancel() })
	in.Start()
	<-in.Done()
	stop()

	ir, _ := in.Result().(InstallResult)
	res.Install = ir
	if ir.State == Installed {
		res.State = Updated
	}
	return res
}

// installed describes the module being replaced, so its uninstall hooks see
// the old version. Without a record only the name is known.
func (j *UpdateJob) installed() module.Descriptor {
	rec, err := module.ReadRecord(j.deps.FS, j.deps.Layout.RecordPath(j.desc.Name))
	if err == nil {
		return rec.Descriptor()
	}
	if !errors.Is(err, fs.ErrNotExist) {
		j.logger.Warn("could not read installed record", "error", err)
	}
	return module.Descriptor{Name: j.desc.Name, Local: j.desc.Local}
}
