// SPDX-License-Identifier: MPL-2.0

package fsguard

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	// DirPerm is used for every directory the helper creates.
	DirPerm fs.FileMode = 0o755
	// FilePerm is used for files created without a source mode.
	FilePerm fs.FileMode = 0o644
)

// Helper performs file operations on behalf of installer jobs.
type Helper struct {
	fs afero.Fs
}

// New returns a Helper backed by fsys.
func New(fsys afero.Fs) *Helper {
	return &Helper{fs: fsys}
}

// NewOS returns a Helper backed by the real filesystem.
func NewOS() *Helper {
	return New(afero.NewOsFs())
}

// Fs exposes the underlying filesystem.
func (h *Helper) Fs() afero.Fs {
	return h.fs
}

// Open opens path for reading.
func (h *Helper) Open(path string) (afero.File, error) {
	return h.fs.Open(path)
}

// Create creates or truncates path for writing.
func (h *Helper) Create(path string) (afero.File, error) {
	return h.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FilePerm)
}

// OpenAppend opens path for appending, creating it if needed.
func (h *Helper) OpenAppend(path string) (afero.File, error) {
	return h.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FilePerm)
}

// Copy copies the regular file src to dst, creating parent directories and
// preserving the permission bits of src. An existing dst is replaced.
func (h *Helper) Copy(src, dst string) (written int64, err error) {
	info, err := h.fs.Stat(src)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("copy %s: not a regular file", src)
	}

	if err := h.fs.MkdirAll(filepath.Dir(dst), DirPerm); err != nil {
		return 0, fmt.Errorf("create parent of %s: %w", dst, err)
	}

	in, err := h.fs.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() {
		// Read-only handle; close errors carry no information.
		_ = in.Close()
	}()

	out, err := h.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	written, err = io.Copy(out, in)
	if err != nil {
		return written, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		return written, fmt.Errorf("sync %s: %w", dst, err)
	}

	// OpenFile only applies the mode when creating; fix up replaced files.
	if err := h.fs.Chmod(dst, info.Mode().Perm()); err != nil {
		return written, err
	}
	return written, nil
}

// Remove deletes a single file or empty directory.
func (h *Helper) Remove(path string) error {
	return h.fs.Remove(path)
}

// RemoveIfExists deletes path and reports whether anything was removed.
// A missing path is not an error.
func (h *Helper) RemoveIfExists(path string) (bool, error) {
	err := h.fs.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// RemoveAll deletes path and everything below it.
func (h *Helper) RemoveAll(path string) error {
	return h.fs.RemoveAll(path)
}

// MkdirAll creates path and any missing parents.
func (h *Helper) MkdirAll(path string) error {
	return h.fs.MkdirAll(path, DirPerm)
}

// Chmod changes the mode of path.
func (h *Helper) Chmod(path string, mode fs.FileMode) error {
	return h.fs.Chmod(path, mode)
}

// Stat returns the FileInfo for path.
func (h *Helper) Stat(path string) (fs.FileInfo, error) {
	return h.fs.Stat(path)
}

// Exists reports whether path exists.
func (h *Helper) Exists(path string) (bool, error) {
	return afero.Exists(h.fs, path)
}

// IsRegular reports whether path exists and is a regular file.
func (h *Helper) IsRegular(path string) bool {
	info, err := h.fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Walk walks the tree rooted at root in lexical order.
func (h *Helper) Walk(root string, fn filepath.WalkFunc) error {
	return afero.Walk(h.fs, root, fn)
}

// ReadDir lists the entries of dir sorted by name.
func (h *Helper) ReadDir(dir string) ([]fs.FileInfo, error) {
	return afero.ReadDir(h.fs, dir)
}

// ReadFile reads the whole file at path.
func (h *Helper) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(h.fs, path)
}

// WriteFile writes data to path, creating parent directories.
func (h *Helper) WriteFile(path string, data []byte) error {
	if err := h.fs.MkdirAll(filepath.Dir(path), DirPerm); err != nil {
		return err
	}
	return afero.WriteFile(h.fs, path, data, FilePerm)
}

// TempDir creates a new directory under dir.
func (h *Helper) TempDir(dir, pattern string) (string, error) {
	if err := h.fs.MkdirAll(dir, DirPerm); err != nil {
		return "", err
	}
	return afero.TempDir(h.fs, dir, pattern)
}

// RemoveEmptyParents removes empty directories from filepath.Dir(path) up to,
// but not including, stop. Errors end the climb silently.
func (h *Helper) RemoveEmptyParents(path, stop string) {
	stop = filepath.Clean(stop)
	for dir := filepath.Dir(path); dir != stop && len(dir) > len(stop); dir = filepath.Dir(dir) {
		empty, err := afero.IsEmpty(h.fs, dir)
		if err != nil || !empty {
			return
		}
		if err := h.fs.Remove(dir); err != nil {
			return
		}
	}
}
