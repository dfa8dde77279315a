// SPDX-License-Identifier: MPL-2.0

package job

import (
	"context"
	"path/filepath"

	"github.com/moduled/moduled/internal/archive"
)

// ExtractJob unpacks an archive of any supported format into a directory.
type ExtractJob struct {
	*base
	src  string
	dest string
}

// NewExtract creates a job extracting src into dest.
func NewExtract(deps Deps, src, dest string, opts ...Option) *ExtractJob {
	return &ExtractJob{
		base: newBase(KindExtract, deps, filepath.Base(src), TaskIdle, true, opts),
		src:  src,
		dest: dest,
	}
}

// Start launches the job.
func (j *ExtractJob) Start() {
	j.launch(j.run, func() Result { return ExtractResult{State: TaskError, Dest: j.dest} })
}

func (j *ExtractJob) run(ctx context.Context) Result {
	j.setStatus(TaskRunning)
	res := ExtractResult{State: TaskError, Dest: j.dest}

	if ctx.Err() != nil {
		j.progressf("canceled")
		res.State = TaskCanceled
		return res
	}

	j.progressf("extracting %s to %s", j.src, j.dest)
	if err := j.deps.FS.MkdirAll(j.dest); err != nil {
		j.progressf("create %s: %v", j.dest, err)
		return res
	}
	if err := archive.Unarchive(ctx, j.src, j.dest); err != nil {
		if ctx.Err() != nil {
			j.progressf("canceled")
			res.State = TaskCanceled
			return res
		}
		j.logger.Warn("extraction failed", "src", j.src, "error", err)
		j.progressf("extract failed: %v", err)
		return res
	}

	j.progressf("extracted %s", filepath.Base(j.src))
	res.State = TaskDone
	return res
}
