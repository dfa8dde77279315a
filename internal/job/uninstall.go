// SPDX-License-Identifier: MPL-2.0

package job

import (
	"context"
	"errors"
	"io/fs"

	"github.com/moduled/moduled/internal/manifest"
	"github.com/moduled/moduled/internal/module"
)

// UninstallJob removes the files recorded in a module's manifest. Steps
// never abort the job: a failing step only downgrades the final state.
// Uninstall jobs cannot be cancelled.
type UninstallJob struct {
	*base
	desc  module.Descriptor
	force bool

	// candidate is the first failure recorded; steps run in priority order.
	candidate UninstallState
	removed   int
}

// NewUninstall creates an uninstall job. With force the job reports
// UNINSTALLED whatever fails; the real outcome is kept in
// UninstallResult.Suppressed.
func NewUninstall(deps Deps, desc module.Descriptor, force bool, opts ...Option) *UninstallJob {
	return &UninstallJob{
		base:  newBase(KindUninstall, deps, desc.Name, UninstallIdle, false, opts),
		desc:  desc,
		force: force,
	}
}

// Start launches the job.
func (j *UninstallJob) Start() {
	j.launch(j.run, func() Result {
		return UninstallResult{State: UninstallErrorInternal, Removed: j.removed}
	})
}

func (j *UninstallJob) fail(state UninstallState) {
	if j.candidate == "" {
		j.candidate = state
	}
}

func (j *UninstallJob) run(ctx context.Context) Result {
	j.setStatus(Uninstalling)
	j.logger.Info("uninstalling module", "force", j.force)

	if j.desc.Local {
		j.progressf("%s is a local module, nothing to uninstall", j.desc.Name)
		return UninstallResult{State: Uninstalled}
	}

	d := j.deps
	name := j.desc.Name
	moduleDir := d.Layout.ModuleDir(name)
	env := hookEnv(d.Layout, j.desc)

	if !j.runHook(ctx, moduleDir, module.HookPreUninst, prePhase, env) {
		j.fail(UninstalledErrorPreuninst)
	}

	j.removeFiles()

	if !j.runHook(ctx, moduleDir, module.HookPostUninst, postPhase, env) {
		j.fail(UninstalledErrorPostuninst)
	}

	if err := manifest.Remove(d.FS, d.Layout.ManifestPath(name)); err != nil {
		j.progressf("%v", err)
		j.fail(UninstallErrorInternal)
	}
	if err := d.FS.RemoveAll(moduleDir); err != nil {
		j.progressf("remove module directory: %v", err)
		j.fail(UninstallErrorInternal)
	}

	res := UninstallResult{State: Uninstalled, Removed: j.removed}
	switch {
	case j.candidate == "":
	case j.force:
		j.logger.Warn("forced uninstall ignored a failure", "suppressed", j.candidate.String())
		j.progressf("forced: reporting %s instead of %s", Uninstalled, j.candidate)
		res.Suppressed = j.candidate
	default:
		res.State = j.candidate
	}
	j.progressf("removed %d files", j.removed)
	return res
}

func (j *UninstallJob) removeFiles() {
	d := j.deps

	paths, err := manifest.Read(d.FS, d.Layout.ManifestPath(j.desc.Name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		j.progressf("no install manifest, nothing to remove")
		return
	case err != nil:
		j.progressf("%v", err)
		j.fail(UninstalledErrorRemove)
		// Remove whatever could be parsed.
	}

	for _, p := range paths {
		if d.Policy.Protected(p) {
			j.logger.Warn("not removing protected file", "path", p)
			j.progressf("kept protected file %s", p)
			continue
		}
		removed, err := d.FS.RemoveIfExists(p)
		if err != nil {
			j.logger.Warn("could not remove file", "path", p, "error", err)
			j.progressf("could not remove %s: %v", p, err)
			j.fail(UninstalledErrorRemove)
			continue
		}
		if !removed {
			j.progressf("already gone: %s", p)
			continue
		}
		j.removed++
		j.progressf("removed %s", p)
		if root, ok := d.Layout.RootFor(p); ok {
			d.FS.RemoveEmptyParents(p, root)
		}
	}
}
