// SPDX-License-Identifier: MPL-2.0

package job

import (
	"context"

	"github.com/moduled/moduled/internal/module"
)

// hookEnv is the environment every lifecycle script receives.
func hookEnv(l module.Layout, d module.Descriptor) []string {
	return []string{
		"MODULED_MODULE=" + d.Name,
		"MODULED_VERSION=" + d.Version,
		"MODULED_BACKEND_DIR=" + l.BackendDir,
		"MODULED_FRONTEND_DIR=" + l.FrontendDir,
		"MODULED_MODULE_DIR=" + l.ModuleDir(d.Name),
	}
}

// runHook runs h from dir and records its output under phase p. A missing
// hook counts as success. ok is false when the hook could not be started,
// exited non-zero or was killed.
func (b *base) runHook(ctx context.Context, dir string, h module.Hook, p phase, env []string) (ok bool) {
	path, found := module.FindHook(b.deps.FS, dir, h)
	if !found {
		b.progressf("no %s script", h)
		return true
	}

	b.progressf("running %s", h)
	res, err := b.deps.Hooks.Run(ctx, path, b.sinks(p), env...)
	if err != nil {
		b.logger.Warn("hook could not be started", "hook", string(h), "error", err)
		b.progressf("%s could not be started: %v", h, err)
		return false
	}
	b.setReturnCode(p, res.ReturnCode)

	switch {
	case res.Killed:
		b.progressf("%s was killed", h)
		return false
	case res.ReturnCode != 0:
		b.logger.Warn("hook failed", "hook", string(h), "returncode", res.ReturnCode)
		b.progressf("%s exited with status %d", h, res.ReturnCode)
		return false
	default:
		b.progressf("%s finished", h)
		return true
	}
}
