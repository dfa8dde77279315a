// SPDX-License-Identifier: MPL-2.0

// Package archive unpacks module archives (zip, with strict path checks) and
// arbitrary archives for the generic extraction operation.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsafePath is wrapped by UnsafePathError.
	ErrUnsafePath = errors.New("unsafe archive entry")

	// ErrUnsupportedFormat is returned for archive names with no known extension.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// UnsafePathError reports an entry that would be written outside the
// destination directory or that is not a regular file or directory.
type UnsafePathError struct {
	Entry  string
	Reason string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("archive entry %q: %s", e.Entry, e.Reason)
}

// Unwrap returns ErrUnsafePath.
func (e *UnsafePathError) Unwrap() error { return ErrUnsafePath }

// ExtractZip unpacks the zip file at src into destDir, which must exist.
// It returns the number of regular files written. The context is checked
// between entries.
func ExtractZip(ctx context.Context, src, destDir string) (files int, err error) {
	absDestDir, err := filepath.Abs(destDir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve destination directory: %w", err)
	}

	zipReader, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open ZIP file: %w", err)
	}
	defer func() {
		if closeErr := zipReader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, file := range zipReader.File {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return files, ctxErr
		}

		destPath, pathErr := safeJoin(absDestDir, file.Name)
		if pathErr != nil {
			return files, pathErr
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if mkdirErr := os.MkdirAll(destPath, 0o755); mkdirErr != nil {
				return files, fmt.Errorf("failed to create directory: %w", mkdirErr)
			}
			continue
		case !mode.IsRegular():
			return files, &UnsafePathError{Entry: file.Name, Reason: "not a regular file"}
		}

		if mkdirErr := os.MkdirAll(filepath.Dir(destPath), 0o755); mkdirErr != nil {
			return files, fmt.Errorf("failed to create parent directory: %w", mkdirErr)
		}

		if extractErr := extractFile(file, destPath); extractErr != nil {
			return files, fmt.Errorf("failed to extract %s: %w", file.Name, extractErr)
		}
		files++
	}

	return files, nil
}

// safeJoin resolves an archive entry name under root, rejecting absolute
// names and names that climb out of root.
func safeJoin(root, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) || filepath.IsAbs(name) {
		return "", &UnsafePathError{Entry: name, Reason: "absolute or malformed path"}
	}

	destPath := filepath.Join(root, filepath.FromSlash(name))
	relPath, err := filepath.Rel(root, destPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", &UnsafePathError{Entry: name, Reason: "path escapes destination"}
	}
	return destPath, nil
}

func extractFile(file *zip.File, destPath string) (err error) {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	perm := file.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|fs.FileMode(0o200))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := destFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	//nolint:gosec // G110: archives are checksum-verified before extraction
	_, err = io.Copy(destFile, rc)
	return err
}
