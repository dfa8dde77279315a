// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver"
)

// formats maps file name suffixes to archiver constructors. Longer suffixes
// come first so ".tar.gz" wins over ".gz".
var formats = []struct {
	suffix string
	make   func() archiver.Unarchiver
}{
	{".tar.gz", func() archiver.Unarchiver { a := archiver.NewTarGz(); a.OverwriteExisting = true; return a }},
	{".tgz", func() archiver.Unarchiver { a := archiver.NewTarGz(); a.OverwriteExisting = true; return a }},
	{".tar.bz2", func() archiver.Unarchiver { a := archiver.NewTarBz2(); a.OverwriteExisting = true; return a }},
	{".tar.xz", func() archiver.Unarchiver { a := archiver.NewTarXz(); a.OverwriteExisting = true; return a }},
	{".tar.lz4", func() archiver.Unarchiver { a := archiver.NewTarLz4(); a.OverwriteExisting = true; return a }},
	{".tar.sz", func() archiver.Unarchiver { a := archiver.NewTarSz(); a.OverwriteExisting = true; return a }},
	{".tar", func() archiver.Unarchiver { a := archiver.NewTar(); a.OverwriteExisting = true; return a }},
	{".zip", func() archiver.Unarchiver { a := archiver.NewZip(); a.OverwriteExisting = true; return a }},
	{".rar", func() archiver.Unarchiver { a := archiver.NewRar(); a.OverwriteExisting = true; return a }},
}

// Supported reports whether name has an extension Unarchive understands.
func Supported(name string) bool {
	_, err := unarchiverFor(name)
	return err == nil
}

// Unarchive extracts src into destDir, choosing the format from the file
// name. Existing files in destDir are overwritten. Extraction itself is not
// interruptible; ctx is only checked before it starts.
func Unarchive(ctx context.Context, src, destDir string) error {
	u, err := unarchiverFor(src)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := u.Unarchive(src, destDir); err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(src), err)
	}
	return nil
}

func unarchiverFor(name string) (archiver.Unarchiver, error) {
	lower := strings.ToLower(name)
	for _, f := range formats {
		if strings.HasSuffix(lower, f.suffix) {
			return f.make(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(name))
}
