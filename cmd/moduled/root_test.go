// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"testing"
)

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2025-06-15T10:00:00Z"

		got := getVersionString()
		want := "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"
		if got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		Version = "dev"
		if got := getVersionString(); got != "dev (built from source)" {
			t.Errorf("getVersionString() = %q", got)
		}
	})
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCommand(NewApp(Dependencies{}))
	for _, path := range [][]string{
		{"install"},
		{"uninstall"},
		{"update"},
		{"list"},
		{"outdated"},
		{"pkg", "install"},
		{"package", "uninstall"},
		{"extract"},
		{"config", "show"},
		{"config", "init"},
		{"config", "dump"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %v not registered: %v", path, err)
		}
	}

	for _, flag := range []string{"config", "catalog", "verbose", "json"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
	if uninstall, _, _ := root.Find([]string{"uninstall"}); uninstall.Flags().Lookup("force") == nil {
		t.Error("uninstall --force missing")
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &ExitError{Code: 2, Err: cause}
	if err.Error() != "boom" || !errors.Is(err, cause) {
		t.Errorf("ExitError = %q, unwrap ok = %v", err.Error(), errors.Is(err, cause))
	}
	if got := (&ExitError{Code: 3}).Error(); got != "exit status 3" {
		t.Errorf("ExitError without cause = %q", got)
	}
}
