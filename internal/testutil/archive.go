// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// ZipEntry describes one file in an archive built by WriteZip.
type ZipEntry struct {
	Body string
	Mode os.FileMode
}

// WriteZip writes a zip archive to dir/name holding entries (keyed by
// slash-separated path) and returns its path and hex SHA-256.
// Entries whose name ends in "/" become directories.
func WriteZip(t testing.TB, dir, name string, entries map[string]ZipEntry) (path, sum string) {
	t.Helper()

	path = filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}

	zw := zip.NewWriter(f)
	for _, n := range slices.Sorted(maps.Keys(entries)) {
		e := entries[n]
		hdr := &zip.FileHeader{Name: n, Method: zip.Deflate}
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}
		if strings.HasSuffix(n, "/") {
			mode |= os.ModeDir
		}
		hdr.SetMode(mode)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip header %s: %v", n, err)
		}
		if e.Body != "" {
			if _, err := w.Write([]byte(e.Body)); err != nil {
				t.Fatalf("zip write %s: %v", n, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	MustClose(t, f)

	return path, FileSHA256(t, path)
}

// FileSHA256 returns the hex SHA-256 of the file at path.
func FileSHA256(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
