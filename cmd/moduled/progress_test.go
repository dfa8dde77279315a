// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/moduled/moduled/internal/installer"
	"github.com/moduled/moduled/internal/issue"
	"github.com/moduled/moduled/internal/job"
)

func TestProgressPrinter_PrintsOnlyNewLines(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	p := newProgressPrinter(&out, &errOut, false)

	snap := job.Snapshot{Module: "demo", Progress: []string{"downloading"}}
	p.report(installer.Report{Status: installer.StatusProcessing, Snapshot: snap})
	snap.Progress = append(snap.Progress, "running preinst")
	snap.PreScript.Stdout = []string{"hidden unless verbose"}
	snap.PreScript.Stderr = []string{"script complained"}
	p.report(installer.Report{Status: installer.StatusProcessing, Snapshot: snap})

	got := out.String()
	if strings.Count(got, "downloading") != 1 {
		t.Errorf("repeated line printed more than once:\n%s", got)
	}
	for _, want := range []string{"running preinst", "[pre]", "script complained"} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "hidden unless verbose") {
		t.Errorf("stdout of script printed without --verbose:\n%s", got)
	}
}

func TestProgressPrinter_UpdateScopes(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newProgressPrinter(&out, &bytes.Buffer{}, true)

	p.report(installer.Report{Snapshot: job.Snapshot{
		Module:    "demo",
		Uninstall: &job.Snapshot{Progress: []string{"removed 3 files"}},
		Install:   &job.Snapshot{PreScript: job.ScriptOutput{Stdout: []string{"hello"}}},
	}})

	got := out.String()
	for _, want := range []string{"[uninstall] removed 3 files", "[install/pre]", "hello"} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestProgressPrinter_DownloadBar(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	p := newProgressPrinter(&out, &errOut, false)

	snap := job.Snapshot{Progress: []string{"downloaded 50% (512 of 1024 bytes)"}}
	p.report(installer.Report{Snapshot: snap})
	if p.bar == nil {
		t.Fatal("download line did not start the progress bar")
	}
	snap.Progress = append(snap.Progress, "downloaded 100% (1024 of 1024 bytes)")
	p.report(installer.Report{Snapshot: snap})

	if p.bar != nil {
		t.Error("progress bar still active after the download completed")
	}
	if strings.Contains(out.String(), "downloaded") {
		t.Errorf("download lines leaked into stdout:\n%s", out.String())
	}
	if errOut.Len() == 0 {
		t.Error("progress bar rendered nothing")
	}
}

func TestProgressPrinter_Summary(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newProgressPrinter(&out, &bytes.Buffer{}, false)
	p.summary(installer.Report{Status: installer.StatusCanceled, Kind: job.KindInstall, Snapshot: job.Snapshot{Module: "demo"}})

	got := out.String()
	if !strings.Contains(got, "install") || !strings.Contains(got, "demo") || !strings.Contains(got, "CANCELED") {
		t.Errorf("summary = %q", got)
	}
}

func TestIssueForResult(t *testing.T) {
	t.Parallel()

	checksum := job.Snapshot{Progress: []string{"download failed (checksum mismatch): digest differs"}}

	tests := []struct {
		name string
		res  job.Result
		want issue.Id
	}{
		{"installed", job.InstallResult{State: job.Installed}, 0},
		{"download", job.InstallResult{State: job.InstallErrorDownload}, issue.DownloadFailedId},
		{"checksum", job.InstallResult{State: job.InstallErrorDownload, Snap: checksum}, issue.ChecksumMismatchId},
		{"extract", job.InstallResult{State: job.InstallErrorExtract}, issue.ArchiveCorruptId},
		{"preinst", job.InstallResult{State: job.InstallErrorPreinst}, issue.HookFailedId},
		{"copy", job.InstallResult{State: job.InstallErrorCopy}, issue.CopyFailedId},
		{"postuninst", job.UninstallResult{State: job.UninstalledErrorPostuninst}, issue.HookFailedId},
		{"remove", job.UninstallResult{State: job.UninstalledErrorRemove}, issue.PermissionDeniedId},
		{"update install", job.UpdateResult{State: job.UpdateError, Install: job.InstallResult{State: job.InstallErrorPostinst}}, issue.HookFailedId},
		{"update never installed", job.UpdateResult{State: job.UpdateError}, 0},
		{"package", job.PackageResult{State: job.TaskError}, issue.PackageManagerFailedId},
		{"extract job", job.ExtractResult{State: job.TaskError}, issue.ArchiveCorruptId},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := issueForResult(tt.res); got != tt.want {
				t.Errorf("issueForResult() = %d, want %d", got, tt.want)
			}
		})
	}
}
