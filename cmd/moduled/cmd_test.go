// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moduled/moduled/internal/config"
	"github.com/moduled/moduled/internal/installer"
	"github.com/moduled/moduled/internal/issue"
	"github.com/moduled/moduled/internal/job"
	"github.com/moduled/moduled/internal/module"
	"github.com/moduled/moduled/internal/testutil"
)

// cliEnv is a throwaway device: config, catalog and an HTTP server that
// serves module archives.
type cliEnv struct {
	root    string
	served  string
	url     string
	cfg     *config.Config
	cfgPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	root := t.TempDir()
	served := filepath.Join(root, "served")
	testutil.MustMkdirAll(t, served, 0o755)
	srv := httptest.NewServer(http.FileServer(http.Dir(served)))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Paths = config.PathsConfig{
		StateDir:    filepath.Join(root, "state"),
		BackendDir:  filepath.Join(root, "backend"),
		FrontendDir: filepath.Join(root, "frontend"),
		CacheDir:    filepath.Join(root, "cache"),
	}
	cfg.Catalog = filepath.Join(root, "catalog.toml")
	cfg.Download.Retries = 0
	cfg.Download.Timeout = 10 * time.Second

	e := &cliEnv{root: root, served: served, url: srv.URL, cfg: cfg, cfgPath: filepath.Join(root, "config.cue")}
	e.writeConfig(t)
	e.writeCatalog(t)
	return e
}

func (e *cliEnv) writeConfig(t *testing.T) {
	t.Helper()
	testutil.MustWriteFile(t, e.cfgPath, []byte(config.GenerateCUE(e.cfg)), 0o644)
}

// publish serves an archive and returns its catalog entry.
func (e *cliEnv) publish(t *testing.T, name, version string, entries map[string]testutil.ZipEntry) module.Descriptor {
	t.Helper()
	file := name + "-" + version + ".zip"
	_, sum := testutil.WriteZip(t, e.served, file, entries)
	return module.Descriptor{Name: name, URL: e.url + "/" + file, Checksum: sum, Version: version}
}

func (e *cliEnv) writeCatalog(t *testing.T, descs ...module.Descriptor) {
	t.Helper()
	var sb strings.Builder
	for _, d := range descs {
		sb.WriteString("[[module]]\n")
		fmt.Fprintf(&sb, "name = %q\n", d.Name)
		if d.Local {
			sb.WriteString("local = true\n")
		} else {
			fmt.Fprintf(&sb, "url = %q\n", d.URL)
			fmt.Fprintf(&sb, "checksum = %q\n", d.Checksum)
		}
		fmt.Fprintf(&sb, "version = %q\n\n", d.Version)
	}
	testutil.MustWriteFile(t, e.cfg.Catalog, []byte(sb.String()), 0o644)
}

// run executes the CLI with args and returns what it printed.
func (e *cliEnv) run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.runContext(ctx, t, args...)
}

func (e *cliEnv) runContext(ctx context.Context, t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := NewApp(Dependencies{Stdout: &out, Stderr: &errOut})
	root := newRootCommand(app)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))

	err = root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func issueOf(err error) issue.Id {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.IssueID
	}
	return 0
}

func TestInstallUninstallRoundTrip(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t)
	desc := e.publish(t, "demo", "1.0.0", map[string]testutil.ZipEntry{
		"backend/bin/demo":    {Body: "binary", Mode: 0o755},
		"frontend/index.html": {Body: "<html>"},
	})
	e.writeCatalog(t, desc)

	stdout, _, err := e.run(t, "install", "demo")
	if err != nil {
		t.Fatalf("install error = %v", err)
	}
	if !strings.Contains(stdout, "DONE") {
		t.Errorf("install output lacks DONE:\n%s", stdout)
	}
	testutil.AssertExists(t, filepath.Join(e.cfg.Paths.BackendDir, "bin", "demo"))
	testutil.AssertExists(t, filepath.Join(e.cfg.Paths.FrontendDir, "index.html"))

	stdout, _, err = e.run(t, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(stdout, "demo") || !strings.Contains(stdout, "1.0.0") {
		t.Errorf("list output = %s", stdout)
	}

	if _, _, err := e.run(t, "uninstall", "demo"); err != nil {
		t.Fatalf("uninstall error = %v", err)
	}
	testutil.AssertNotExists(t, filepath.Join(e.cfg.Paths.BackendDir, "bin", "demo"))
	testutil.AssertNotExists(t, filepath.Join(e.cfg.Paths.StateDir, "demo"))
}

func TestUninstallInterruptedRunsToCompletion(t *testing.T) {
	t.Parallel()
	testutil.SkipIfNoShell(t)

	e := newCLIEnv(t)
	started := filepath.Join(e.root, "uninstall-started")
	desc := e.publish(t, "demo", "1.0.0", map[string]testutil.ZipEntry{
		"backend/demo.py": {Body: "print()"},
		"preuninst":       {Body: testutil.Script(fmt.Sprintf("touch %q\nsleep 1", started)), Mode: 0o755},
	})
	e.writeCatalog(t, desc)
	if _, _, err := e.run(t, "install", "demo"); err != nil {
		t.Fatalf("install error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		for deadline := time.Now().Add(10 * time.Second); time.Now().Before(deadline); {
			if _, err := os.Stat(started); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	// Uninstall cannot be cancelled, so the interrupt only ends the wait.
	if _, _, err := e.runContext(ctx, t, "uninstall", "demo"); err != nil {
		t.Fatalf("uninstall error = %v (exit %d), want success", err, exitCode(err))
	}
	testutil.AssertNotExists(t, filepath.Join(e.cfg.Paths.BackendDir, "demo.py"))
	testutil.AssertNotExists(t, filepath.Join(e.cfg.Paths.StateDir, "demo"))
}

func TestInterruptExit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status installer.Status
		want   int
	}{
		{status: installer.StatusCanceled, want: interruptedExitCode},
		{status: installer.StatusDone, want: -1},
		{status: installer.StatusError, want: -1},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			exit := interruptExit(installer.Report{Status: tt.status, Kind: job.KindUninstall})
			got := -1
			if exit != nil {
				got = exit.Code
			}
			if got != tt.want {
				t.Errorf("interruptExit(%s) code = %d, want %d", tt.status, got, tt.want)
			}
		})
	}
}

func TestInstallJSONReport(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t)
	desc := e.publish(t, "demo", "1.0.0", map[string]testutil.ZipEntry{"backend/a": {Body: "a"}})
	e.writeCatalog(t, desc)

	stdout, _, err := e.run(t, "--json", "install", "demo")
	if err != nil {
		t.Fatalf("install error = %v", err)
	}

	var rep installer.Report
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("output is not a JSON report: %v\n%s", err, stdout)
	}
	if rep.Status != installer.StatusDone || rep.Snapshot.Module != "demo" || rep.Snapshot.Status != "INSTALLED" {
		t.Errorf("report = %+v", rep)
	}
}

func TestInstallFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		module    string
		corrupt   bool
		wantIssue issue.Id
	}{
		{name: "unknown module", module: "missing", wantIssue: issue.ModuleNotFoundId},
		{name: "checksum mismatch", module: "demo", corrupt: true, wantIssue: issue.ChecksumMismatchId},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newCLIEnv(t)
			desc := e.publish(t, "demo", "1.0.0", map[string]testutil.ZipEntry{"backend/a": {Body: "a"}})
			if tt.corrupt {
				desc.Checksum = strings.Repeat("0", 64)
			}
			e.writeCatalog(t, desc)

			_, stderr, err := e.run(t, "install", tt.module)
			if exitCode(err) != 1 {
				t.Fatalf("install error = %v, want exit code 1", err)
			}
			if got := issueOf(err); got != tt.wantIssue {
				t.Errorf("issue = %d, want %d", got, tt.wantIssue)
			}
			if stderr == "" {
				t.Error("no help text rendered")
			}
			testutil.AssertNotExists(t, filepath.Join(e.cfg.Paths.BackendDir, "a"))
		})
	}
}

func TestUpdateAllAndOutdated(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t)
	v1 := e.publish(t, "demo", "1.0.0", map[string]testutil.ZipEntry{"backend/v1": {Body: "1"}})
	e.writeCatalog(t, v1)
	if _, _, err := e.run(t, "install", "demo"); err != nil {
		t.Fatalf("install error = %v", err)
	}

	v2 := e.publish(t, "demo", "1.1.0", map[string]testutil.ZipEntry{"backend/v2": {Body: "2"}})
	e.writeCatalog(t, v2)

	stdout, _, err := e.run(t, "outdated")
	if err != nil {
		t.Fatalf("outdated error = %v", err)
	}
	if !strings.Contains(stdout, "1.0.0") || !strings.Contains(stdout, "1.1.0") {
		t.Errorf("outdated output = %s", stdout)
	}

	if _, _, err := e.run(t, "update", "--all"); err != nil {
		t.Fatalf("update --all error = %v", err)
	}
	testutil.AssertNotExists(t, filepath.Join(e.cfg.Paths.BackendDir, "v1"))
	testutil.AssertExists(t, filepath.Join(e.cfg.Paths.BackendDir, "v2"))

	stdout, _, err = e.run(t, "outdated")
	if err != nil || !strings.Contains(stdout, "up to date") {
		t.Errorf("outdated after update = %q, %v", stdout, err)
	}
}

func TestUpdateArgs(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t)
	if _, _, err := e.run(t, "update"); err == nil {
		t.Error("update without module or --all succeeded")
	}
	if _, _, err := e.run(t, "update", "--all", "demo"); err == nil {
		t.Error("update --all with a module succeeded")
	}
}

func TestExtractCommand(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t)
	src, _ := testutil.WriteZip(t, e.root, "bundle.zip", map[string]testutil.ZipEntry{"docs/readme.txt": {Body: "hi"}})
	dest := filepath.Join(e.root, "out")

	if _, _, err := e.run(t, "extract", src, dest); err != nil {
		t.Fatalf("extract error = %v", err)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "docs", "readme.txt")); got != "hi" {
		t.Errorf("extracted file = %q", got)
	}

	_, _, err := e.run(t, "extract", filepath.Join(e.root, "nope.zip"), dest)
	if exitCode(err) != 1 || issueOf(err) != issue.ArchiveCorruptId {
		t.Fatalf("extract of missing archive error = %v (issue %d)", err, issueOf(err))
	}
}

func TestPackageInstall(t *testing.T) {
	t.Parallel()
	testutil.SkipIfNoShell(t)

	e := newCLIEnv(t)
	e.cfg.Packages.Install = "sh -c 'echo installing $0' $PKG"
	e.cfg.Packages.Uninstall = "sh -c 'exit 3' $PKG"
	e.writeConfig(t)

	stdout, _, err := e.run(t, "--verbose", "pkg", "install", "local.deb")
	if err != nil {
		t.Fatalf("pkg install error = %v", err)
	}
	if !strings.Contains(stdout, "installing local.deb") {
		t.Errorf("package manager output missing:\n%s", stdout)
	}

	_, _, err = e.run(t, "pkg", "uninstall", "local")
	if exitCode(err) != 1 || issueOf(err) != issue.PackageManagerFailedId {
		t.Fatalf("pkg uninstall error = %v (issue %d)", err, issueOf(err))
	}
}

func TestMissingConfigFile(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t)
	e.cfgPath = filepath.Join(e.root, "absent.cue")

	_, _, err := e.run(t, "list")
	if exitCode(err) != 1 || issueOf(err) != issue.ConfigLoadFailedId {
		t.Fatalf("list error = %v (issue %d)", err, issueOf(err))
	}
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t)
	stdout, _, err := e.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{e.cfgPath, e.cfg.Paths.StateDir, e.cfg.Catalog, "libc.so*"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("config show lacks %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = e.run(t, "config", "dump")
	if err != nil || !strings.Contains(stdout, "state_dir") {
		t.Errorf("config dump = %q, %v", stdout, err)
	}
}

func TestConfigInit(t *testing.T) {
	// Not parallel: overrides the package-level config directory.
	dir := t.TempDir()
	config.SetConfigDirOverride(dir)
	t.Cleanup(config.Reset)

	var out bytes.Buffer
	app := NewApp(Dependencies{Stdout: &out, Stderr: &out})
	root := newRootCommand(app)
	root.SetArgs([]string{"config", "init"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	testutil.AssertExists(t, filepath.Join(dir, "config.cue"))
	if !strings.Contains(out.String(), filepath.Join(dir, "config.cue")) {
		t.Errorf("output = %s", out.String())
	}
}
