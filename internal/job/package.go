// SPDX-License-Identifier: MPL-2.0

package job

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/moduled/moduled/internal/hook"
)

const (
	PackageInstall   PackageAction = "install"
	PackageUninstall PackageAction = "uninstall"
)

// packageVar is the placeholder expanded in PackageCommands templates.
const packageVar = "PKG"

// PackageAction selects what a PackageJob asks the package manager to do.
type PackageAction string

// PackageJob runs the OS package manager. It can be cancelled while the
// package is being fetched; once the package manager is started it runs to
// completion.
type PackageJob struct {
	*base
	action PackageAction
	target string
}

// NewPackageInstall installs the package file or URL source.
func NewPackageInstall(deps Deps, source string, opts ...Option) *PackageJob {
	return newPackageJob(deps, PackageInstall, source, opts)
}

// NewPackageUninstall removes the package called name.
func NewPackageUninstall(deps Deps, name string, opts ...Option) *PackageJob {
	return newPackageJob(deps, PackageUninstall, name, opts)
}

func newPackageJob(deps Deps, action PackageAction, target string, opts []Option) *PackageJob {
	return &PackageJob{
		base:   newBase(KindPackage, deps, filepath.Base(target), TaskIdle, true, opts),
		action: action,
		target: target,
	}
}

// Action returns what the job does.
func (j *PackageJob) Action() PackageAction { return j.action }

// Start launches the job.
func (j *PackageJob) Start() {
	j.launch(j.run, func() Result {
		return PackageResult{State: TaskError, Action: j.action, Target: j.target}
	})
}

func (j *PackageJob) run(ctx context.Context) Result {
	j.setStatus(TaskRunning)
	res := PackageResult{State: TaskError, Action: j.action, Target: j.target}
	d := j.deps

	template := d.Packages.Install
	arg := j.target
	if j.action == PackageUninstall {
		template = d.Packages.Uninstall
	}

	if j.action == PackageInstall && isRemote(j.target) {
		j.progressf("downloading %s", j.target)
		dl, err := d.Fetcher.Fetch(ctx, j.target, "", d.Layout.CacheDir, nil)
		if err != nil {
			if ctx.Err() != nil {
				j.progressf("canceled")
				res.State = TaskCanceled
				return res
			}
			j.progressf("download failed (%s): %v", dl.Status, err)
			return res
		}
		defer func() {
			_, _ = d.FS.RemoveIfExists(dl.Path) // Scratch file.
		}()
		arg = dl.Path
	}

	argv, err := hook.ExpandCommand(template, map[string]string{packageVar: arg})
	if err != nil {
		j.progressf("%v", err)
		return res
	}

	if !j.enterCritical() {
		j.progressf("canceled")
		res.State = TaskCanceled
		return res
	}

	j.progressf("running %s", strings.Join(argv, " "))
	// The package manager must not be interrupted halfway.
	out, err := d.Hooks.Command(context.WithoutCancel(ctx), argv, j.sinks(prePhase))
	if err != nil {
		j.progressf("%v", err)
		return res
	}
	j.setReturnCode(prePhase, out.ReturnCode)
	code := out.ReturnCode
	res.ReturnCode = &code

	if !out.OK() {
		j.logger.Warn("package manager failed", "action", string(j.action), "returncode", out.ReturnCode)
		j.progressf("package manager exited with status %d", out.ReturnCode)
		return res
	}
	j.progressf("package %s finished", j.action)
	res.State = TaskDone
	return res
}

func isRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "file":
		return true
	default:
		return false
	}
}
