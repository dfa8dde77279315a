// SPDX-License-Identifier: MPL-2.0

package module

import (
	"path/filepath"
	"strings"

	"github.com/moduled/moduled/internal/fsguard"
)

const (
	// ManifestFileName is the per-module install manifest.
	ManifestFileName = "install.log"
	// RecordFileName is the per-module installed record.
	RecordFileName = "module.toml"

	// BackendPrefix and FrontendPrefix are the archive subtrees copied to
	// Layout.BackendDir and Layout.FrontendDir.
	BackendPrefix  = "backend"
	FrontendPrefix = "frontend"
)

// Hook names a lifecycle script shipped at the archive root.
type Hook string

const (
	HookPreInst    Hook = "preinst"
	HookPostInst   Hook = "postinst"
	HookPreUninst  Hook = "preuninst"
	HookPostUninst Hook = "postuninst"
)

const hookShellSuffix = ".sh"

// UninstallHooks are kept in the module directory after install.
var UninstallHooks = []Hook{HookPreUninst, HookPostUninst}

// Layout is the set of directories installer jobs work in.
type Layout struct {
	// StateDir holds one directory per installed module.
	StateDir string
	// BackendDir receives the archive's backend/ tree.
	BackendDir string
	// FrontendDir receives the archive's frontend/ tree.
	FrontendDir string
	// CacheDir holds downloads and extraction scratch space.
	CacheDir string
}

// ModuleDir returns the per-module state directory.
func (l Layout) ModuleDir(name string) string {
	return filepath.Join(l.StateDir, name)
}

// ManifestPath returns the location of the module's install manifest.
func (l Layout) ManifestPath(name string) string {
	return filepath.Join(l.ModuleDir(name), ManifestFileName)
}

// RecordPath returns the location of the module's installed record.
func (l Layout) RecordPath(name string) string {
	return filepath.Join(l.ModuleDir(name), RecordFileName)
}

// HookPath returns where an uninstall hook is kept for an installed module.
func (l Layout) HookPath(name string, hook Hook) string {
	return filepath.Join(l.ModuleDir(name), string(hook))
}

// Destination maps a slash-separated path relative to the archive root to
// its install location. ok is false for paths outside backend/ and frontend/.
func (l Layout) Destination(rel string) (dest string, ok bool) {
	rel = filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	for prefix, root := range map[string]string{BackendPrefix: l.BackendDir, FrontendPrefix: l.FrontendDir} {
		if len(rel) > len(prefix) && rel[:len(prefix)+1] == prefix+"/" {
			return filepath.Join(root, filepath.FromSlash(rel[len(prefix)+1:])), true
		}
	}
	return "", false
}

// RootFor returns BackendDir or FrontendDir when path lies below it.
func (l Layout) RootFor(path string) (string, bool) {
	for _, root := range []string{l.BackendDir, l.FrontendDir} {
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return root, true
	}
	return "", false
}

// FindHook returns the path of hook inside dir, accepting both the bare name
// and the .sh variant. ok is false when neither is a regular file.
func FindHook(h *fsguard.Helper, dir string, hook Hook) (path string, ok bool) {
	for _, name := range []string{string(hook), string(hook) + hookShellSuffix} {
		p := filepath.Join(dir, name)
		if h.IsRegular(p) {
			return p, true
		}
	}
	return "", false
}
