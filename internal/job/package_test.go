// SPDX-License-Identifier: MPL-2.0

package job

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/moduled/moduled/internal/testutil"
)

func TestPackageJob_InstallLocalFile(t *testing.T) {
	t.Parallel()
	testutil.SkipIfNoShell(t)

	e := newTestEnv(t)
	pkg := filepath.Join(t.TempDir(), "tool.deb")
	testutil.MustWriteFile(t, pkg, []byte("deb"), 0o644)

	pr := runJob(t, NewPackageInstall(e.deps, pkg)).(PackageResult)
	if pr.State != TaskDone || pr.Action != PackageInstall {
		t.Fatalf("result = %+v", pr)
	}
	if pr.ReturnCode == nil || *pr.ReturnCode != 0 {
		t.Errorf("returncode = %v", pr.ReturnCode)
	}
	if !slices.Equal(pr.Snap.PreScript.Stdout, []string{"installing " + pkg}) {
		t.Errorf("stdout = %q", pr.Snap.PreScript.Stdout)
	}
}

func TestPackageJob_InstallFromURL(t *testing.T) {
	t.Parallel()
	testutil.SkipIfNoShell(t)

	e := newTestEnv(t)
	testutil.MustWriteFile(t, filepath.Join(e.served, "tool.deb"), []byte("deb"), 0o644)

	pr := runJob(t, NewPackageInstall(e.deps, e.srv.URL+"/tool.deb")).(PackageResult)
	if pr.State != TaskDone {
		t.Fatalf("state = %s; progress %q", pr.State, pr.Snap.Progress)
	}
	out := pr.Snap.PreScript.Stdout
	if len(out) != 1 || !strings.HasPrefix(out[0], "installing "+e.layout.CacheDir) {
		t.Errorf("stdout = %q, want the downloaded file", out)
	}
	e.assertCacheEmpty()
}

func TestPackageJob_UninstallFailure(t *testing.T) {
	t.Parallel()
	testutil.SkipIfNoShell(t)

	e := newTestEnv(t)
	e.deps.Packages.Uninstall = `sh -c "echo no such package $PKG >&2; exit 100"`

	pr := runJob(t, NewPackageUninstall(e.deps, "tool")).(PackageResult)
	if pr.State != TaskError || pr.ReturnCode == nil || *pr.ReturnCode != 100 {
		t.Fatalf("result = %+v", pr)
	}
	if !slices.Equal(pr.Snap.PreScript.Stderr, []string{"no such package tool"}) {
		t.Errorf("stderr = %q", pr.Snap.PreScript.Stderr)
	}
}

func TestPackageJob_CanceledBeforePackageManager(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	j := NewPackageUninstall(e.deps, "tool")
	if !j.Cancel() {
		t.Fatal("Cancel() = false before start")
	}
	pr := runJob(t, j).(PackageResult)
	if pr.State != TaskCanceled || pr.ReturnCode != nil {
		t.Fatalf("result = %+v", pr)
	}
}

func TestPackageJob_NotCancelableOncePackageManagerRuns(t *testing.T) {
	t.Parallel()
	testutil.SkipIfNoShell(t)

	e := newTestEnv(t)
	e.deps.Packages.Uninstall = `sh -c "echo started; sleep 1; echo finished"`

	var j *PackageJob
	var once sync.Once
	accepted := true
	j = NewPackageUninstall(e.deps, "tool", WithCallback(func(s Snapshot) {
		if slices.Contains(s.PreScript.Stdout, "started") {
			once.Do(func() { accepted = j.Cancel() })
		}
	}))

	pr := runJob(t, j).(PackageResult)
	if accepted {
		t.Error("Cancel() accepted while the package manager was running")
	}
	if pr.State != TaskDone || !slices.Contains(pr.Snap.PreScript.Stdout, "finished") {
		t.Fatalf("result = %s, stdout %q", pr.State, pr.Snap.PreScript.Stdout)
	}
}

func TestPackageJob_BadTemplate(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	e.deps.Packages.Uninstall = `apt-get remove "$PKG`

	pr := runJob(t, NewPackageUninstall(e.deps, "tool")).(PackageResult)
	if pr.State != TaskError {
		t.Fatalf("state = %s", pr.State)
	}
}

func TestExtractJob(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	src, _ := testutil.WriteZip(t, t.TempDir(), "bundle.zip", map[string]testutil.ZipEntry{
		"docs/readme.txt": file("hello"),
	})
	dest := filepath.Join(t.TempDir(), "out")

	er := runJob(t, NewExtract(e.deps, src, dest)).(ExtractResult)
	if er.State != TaskDone || er.Dest != dest {
		t.Fatalf("result = %+v", er)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "docs", "readme.txt")); got != "hello" {
		t.Errorf("extracted = %q", got)
	}
}

func TestExtractJob_Failures(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	unsupported := filepath.Join(t.TempDir(), "file.7z")
	testutil.MustWriteFile(t, unsupported, []byte("x"), 0o644)

	er := runJob(t, NewExtract(e.deps, unsupported, t.TempDir())).(ExtractResult)
	if er.State != TaskError {
		t.Errorf("unsupported format state = %s", er.State)
	}

	src, _ := testutil.WriteZip(t, t.TempDir(), "bundle.zip", map[string]testutil.ZipEntry{"a": file("a")})
	j := NewExtract(e.deps, src, t.TempDir())
	j.Cancel()
	if er := runJob(t, j).(ExtractResult); er.State != TaskCanceled {
		t.Errorf("canceled extract state = %s", er.State)
	}
}
