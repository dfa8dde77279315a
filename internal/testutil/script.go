// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

// SkipIfNoShell skips tests that execute /bin/sh scripts.
func SkipIfNoShell(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
}

// Script returns body prefixed with a /bin/sh shebang.
func Script(body string) string {
	return "#!/bin/sh\n" + body + "\n"
}

// WriteScript writes an executable shell script to dir/name and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	MustWriteFile(t, path, []byte(Script(body)), 0o755)
	return path
}
