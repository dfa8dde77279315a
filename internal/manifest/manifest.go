// SPDX-License-Identifier: MPL-2.0

// Package manifest records every file an install copies so the install can
// be rolled back or uninstalled later.
//
// The manifest is a plain text file with one absolute destination path per
// line. Lines are flushed to stable storage as they are appended, so a
// crash mid-install leaves a manifest that still lists every file on disk.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/moduled/moduled/internal/fsguard"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("manifest closed")

// Writer appends paths to a manifest file.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   afero.File
	count  int
	closed bool
}

// Create creates (or truncates) the manifest at path.
func Create(h *fsguard.Helper, path string) (*Writer, error) {
	if err := h.MkdirAll(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	f, err := h.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	return &Writer{path: path, file: f}, nil
}

// Path returns the manifest location.
func (w *Writer) Path() string {
	return w.path
}

// Count returns the number of paths appended so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Append records dest and syncs the file before returning.
func (w *Writer) Append(dest string) error {
	if strings.ContainsAny(dest, "\r\n") {
		return fmt.Errorf("manifest entry %q: contains a line break", dest)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, err := w.file.WriteString(dest + "\n"); err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	w.count++
	return nil
}

// Close closes the manifest. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Read returns the paths listed in the manifest at path, in append order.
// Blank lines are skipped. A missing manifest yields fs.ErrNotExist.
func Read(h *fsguard.Helper, path string) ([]string, error) {
	data, err := h.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return paths, fmt.Errorf("parse manifest: %w", err)
	}
	return paths, nil
}

// Remove deletes the manifest at path. A missing manifest is not an error.
func Remove(h *fsguard.Helper, path string) error {
	if _, err := h.RemoveIfExists(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}
