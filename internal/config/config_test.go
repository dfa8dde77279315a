// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moduled/moduled/internal/hook"
	"github.com/moduled/moduled/internal/issue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Download.Retries != 2 {
		t.Errorf("Download.Retries = %d, want 2", cfg.Download.Retries)
	}
	if cfg.Download.Timeout != 5*time.Minute {
		t.Errorf("Download.Timeout = %v, want 5m", cfg.Download.Timeout)
	}
	if cfg.Storage.ReadOnly {
		t.Error("Storage.ReadOnly should default to false")
	}
	if len(cfg.ProtectedLibraries) == 0 {
		t.Error("expected default protected library patterns")
	}
}

func TestDefaultConfig_PackageTemplatesKeepSpacedPaths(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	const pkg = "/tmp/my packages/demo 1.0.deb"
	for name, template := range map[string]string{
		"install":   cfg.Packages.Install,
		"uninstall": cfg.Packages.Uninstall,
	} {
		argv, err := hook.ExpandCommand(template, map[string]string{PackagePlaceholder: pkg})
		if err != nil {
			t.Fatalf("%s: ExpandCommand() error = %v", name, err)
		}
		if argv[len(argv)-1] != pkg {
			t.Errorf("%s template %q expands to %q, want %q as the last argument", name, template, argv, pkg)
		}
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Parallel()

	cfg, src, err := NewProvider().LoadWithSource(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if src != "" {
		t.Errorf("source = %q, want empty", src)
	}
	if cfg.Paths.StateDir != DefaultConfig().Paths.StateDir {
		t.Errorf("Paths.StateDir = %q, want default", cfg.Paths.StateDir)
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
paths: {
	state_dir: "/data/modules"
	backend_dir: "/data/backend"
}
protected_libraries: ["libfoo.so*"]
download: {
	retries: 4
	timeout: "30s"
}
log: level: "debug"
`)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.StateDir != "/data/modules" {
		t.Errorf("Paths.StateDir = %q", cfg.Paths.StateDir)
	}
	if cfg.Paths.FrontendDir != DefaultConfig().Paths.FrontendDir {
		t.Errorf("Paths.FrontendDir = %q, want default", cfg.Paths.FrontendDir)
	}
	if cfg.Download.Retries != 4 {
		t.Errorf("Download.Retries = %d, want 4", cfg.Download.Retries)
	}
	if cfg.Download.Timeout != 30*time.Second {
		t.Errorf("Download.Timeout = %v, want 30s", cfg.Download.Timeout)
	}
	if len(cfg.ProtectedLibraries) != 1 || cfg.ProtectedLibraries[0] != "libfoo.so*" {
		t.Errorf("ProtectedLibraries = %v", cfg.ProtectedLibraries)
	}
	if cfg.Log.Level != LogLevelDebug {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		path    string
	}{
		{name: "missing file", path: "/nonexistent/config.cue"},
		{name: "syntax error", content: `paths: {`},
		{name: "schema violation", content: `download: retries: -3`},
		{name: "unknown field", content: `bogus: 1`},
		{name: "bad log level", content: `log: level: "loud"`},
		{name: "template without placeholder", content: `packages: install: "dpkg -i"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := tt.path
			if path == "" {
				path = writeConfig(t, tt.content)
			}

			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("expected error")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Errorf("expected *issue.ActionableError, got %T", err)
			}
		})
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Paths.CacheDir = " "
	cfg.ProtectedLibraries = []string{"[bad"}
	cfg.Storage.ReadOnly = true
	cfg.Storage.RemountRO = ""

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidConfigError, got %T", err)
	}
	if len(invalid.FieldErrors) != 3 {
		t.Errorf("FieldErrors = %v, want 3 entries", invalid.FieldErrors)
	}
}

func TestCreateDefaultConfig_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := CreateDefaultConfig(dir)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if !strings.HasSuffix(path, "config.cue") {
		t.Errorf("path = %q", path)
	}

	cfg, src, err := NewProvider().LoadWithSource(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("loading generated config failed: %v", err)
	}
	if src != path {
		t.Errorf("source = %q, want %q", src, path)
	}
	if cfg.Download.Timeout != DefaultConfig().Download.Timeout {
		t.Errorf("Download.Timeout = %v", cfg.Download.Timeout)
	}
}
