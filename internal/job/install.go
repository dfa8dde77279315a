// SPDX-License-Identifier: MPL-2.0

package job

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/moduled/moduled/internal/archive"
	"github.com/moduled/moduled/internal/manifest"
	"github.com/moduled/moduled/internal/module"
)

// InstallJob downloads a module archive and deploys it. Any outcome other
// than INSTALLED removes everything the job copied.
type InstallJob struct {
	*base
	desc module.Descriptor
}

// installRun holds the resources of one install attempt.
type installRun struct {
	j           *InstallJob
	manifest    *manifest.Writer
	archivePath string
	extractDir  string
	files       int
	lastDecile  int
	lastDone    int64
}

// NewInstall creates an install job for desc.
func NewInstall(deps Deps, desc module.Descriptor, opts ...Option) *InstallJob {
	return &InstallJob{
		base: newBase(KindInstall, deps, desc.Name, InstallIdle, true, opts),
		desc: desc,
	}
}

// Start launches the job.
func (j *InstallJob) Start() {
	j.launch(j.run, func() Result { return InstallResult{State: InstallErrorInternal} })
}

func (j *InstallJob) run(ctx context.Context) Result {
	j.setStatus(Installing)
	j.logger.Info("installing module", "version", j.desc.Version)

	if j.desc.Local {
		j.progressf("%s is a local module, nothing to install", j.desc.Name)
		return InstallResult{State: Installed}
	}

	r := &installRun{j: j}
	state := InstallErrorInternal
	// Deferred so that a panic still rolls back.
	defer func() { r.finish(state) }()

	state = r.pipeline(ctx)
	return InstallResult{State: state, Files: r.files}
}

func (r *installRun) pipeline(ctx context.Context) InstallState {
	j := r.j
	d := j.deps
	name := j.desc.Name

	if err := d.FS.MkdirAll(d.Layout.ModuleDir(name)); err != nil {
		j.progressf("create module directory: %v", err)
		return InstallErrorInternal
	}
	w, err := manifest.Create(d.FS, d.Layout.ManifestPath(name))
	if err != nil {
		j.progressf("%v", err)
		return InstallErrorInternal
	}
	r.manifest = w

	if ctx.Err() != nil {
		return r.canceled()
	}
	j.progressf("downloading %s", j.desc.URL)
	res, err := d.Fetcher.Fetch(ctx, j.desc.URL, j.desc.Checksum, d.Layout.CacheDir, r.downloadProgress)
	r.archivePath = res.Path
	if err != nil {
		if ctx.Err() != nil {
			return r.canceled()
		}
		j.logger.Warn("download failed", "url", j.desc.URL, "status", res.Status.String(), "error", err)
		j.progressf("download failed (%s): %v", res.Status, err)
		return InstallErrorDownload
	}
	j.progressf("downloaded %d bytes (sha256 %s)", res.Size, res.SHA256)

	if ctx.Err() != nil {
		return r.canceled()
	}
	dir, err := d.FS.TempDir(d.Layout.CacheDir, name+"-extract-")
	if err != nil {
		j.progressf("create extraction directory: %v", err)
		return InstallErrorInternal
	}
	r.extractDir = dir
	n, err := archive.ExtractZip(ctx, res.Path, dir)
	if err != nil {
		if ctx.Err() != nil {
			return r.canceled()
		}
		j.progressf("extract failed: %v", err)
		return InstallErrorExtract
	}
	j.progressf("extracted %d files", n)

	r.keepUninstallHooks()

	env := hookEnv(d.Layout, j.desc)
	if ctx.Err() != nil {
		return r.canceled()
	}
	if !j.runHook(ctx, dir, module.HookPreInst, prePhase, env) {
		if ctx.Err() != nil {
			return r.canceled()
		}
		return InstallErrorPreinst
	}

	if err := r.copyTree(ctx); err != nil {
		if ctx.Err() != nil {
			return r.canceled()
		}
		j.progressf("copy failed: %v", err)
		return InstallErrorCopy
	}
	j.progressf("copied %d files", r.files)

	if ctx.Err() != nil {
		return r.canceled()
	}
	if !j.runHook(ctx, dir, module.HookPostInst, postPhase, env) {
		if ctx.Err() != nil {
			return r.canceled()
		}
		return InstallErrorPostinst
	}

	return Installed
}

func (r *installRun) canceled() InstallState {
	r.j.progressf("canceled")
	return InstallCanceled
}

// downloadProgress records every completed tenth of a download with a
// known size. A byte count going backwards means the download restarted.
func (r *installRun) downloadProgress(done, total int64, percent float64) {
	if done < r.lastDone {
		r.lastDecile = 0
	}
	r.lastDone = done
	if percent < 0 {
		return
	}
	decile := int(percent / 10)
	if decile <= r.lastDecile {
		return
	}
	r.lastDecile = decile
	r.j.progressf("downloaded %d%% (%d of %d bytes)", decile*10, done, total)
}

// keepUninstallHooks copies preuninst and postuninst to the module
// directory. Failures are warnings only.
func (r *installRun) keepUninstallHooks() {
	d := r.j.deps
	for _, h := range module.UninstallHooks {
		src, ok := module.FindHook(d.FS, r.extractDir, h)
		if !ok {
			continue
		}
		if _, err := d.FS.Copy(src, d.Layout.HookPath(r.j.desc.Name, h)); err != nil {
			r.j.logger.Warn("could not keep uninstall hook", "hook", string(h), "error", err)
			r.j.progressf("warning: could not keep %s: %v", h, err)
		}
	}
}

func (r *installRun) copyTree(ctx context.Context) error {
	return r.j.deps.FS.Walk(r.extractDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.extractDir, path)
		if err != nil {
			return err
		}
		dest, ok := r.j.deps.Layout.Destination(filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		return r.copyFile(path, dest)
	})
}

func (r *installRun) copyFile(src, dest string) error {
	j := r.j
	d := j.deps

	existed, err := d.FS.Exists(dest)
	if err != nil {
		return err
	}
	if existed {
		if d.Policy.Protected(dest) {
			j.logger.Warn("not overwriting protected file", "path", dest)
			j.progressf("warning: kept protected file %s", dest)
			return nil
		}
		j.logger.Warn("overwriting existing file", "path", dest)
		j.progressf("warning: overwriting %s", dest)
	}

	if _, err := d.FS.Copy(src, dest); err != nil {
		if !existed {
			_, _ = d.FS.RemoveIfExists(dest) // Partial copy; not yet in the manifest.
		}
		return fmt.Errorf("copy %s: %w", dest, err)
	}
	if err := r.manifest.Append(dest); err != nil {
		return err
	}
	r.files++
	j.progressf("installed %s", dest)
	return nil
}

// finish releases the attempt's resources, then either records the
// install or rolls it back. Cleanup errors are logged and never change state.
func (r *installRun) finish(state InstallState) {
	j := r.j
	d := j.deps
	name := j.desc.Name

	var errs *multierror.Error
	if r.manifest != nil {
		errs = multierror.Append(errs, r.manifest.Close())
	}
	if r.extractDir != "" {
		errs = multierror.Append(errs, d.FS.RemoveAll(r.extractDir))
	}
	if r.archivePath != "" {
		_, err := d.FS.RemoveIfExists(r.archivePath)
		errs = multierror.Append(errs, err)
	}

	if state == Installed {
		rec := module.NewRecord(j.desc, r.files, d.Now())
		if err := module.WriteRecord(d.FS, d.Layout.RecordPath(name), rec); err != nil {
			j.logger.Warn("could not write installed record", "error", err)
		}
	} else {
		errs = multierror.Append(errs, r.rollback())
	}

	if err := errs.ErrorOrNil(); err != nil {
		j.logger.Warn("cleanup incomplete", "error", err)
		j.progressf("cleanup incomplete: %v", err)
	}
}

// rollback deletes every path in the manifest, newest first, then the
// manifest and the module directory. Protected files that already existed
// are never copied, so every listed path was written by this install.
func (r *installRun) rollback() error {
	j := r.j
	d := j.deps
	name := j.desc.Name

	j.progressf("rolling back %s", name)

	var errs *multierror.Error
	paths, err := manifest.Read(d.FS, d.Layout.ManifestPath(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = multierror.Append(errs, err)
	}
	for _, p := range slices.Backward(paths) {
		if _, err := d.FS.RemoveIfExists(p); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if root, ok := d.Layout.RootFor(p); ok {
			d.FS.RemoveEmptyParents(p, root)
		}
	}

	errs = multierror.Append(errs, manifest.Remove(d.FS, d.Layout.ManifestPath(name)))
	errs = multierror.Append(errs, d.FS.RemoveAll(d.Layout.ModuleDir(name)))
	return errs.ErrorOrNil()
}
