// SPDX-License-Identifier: MPL-2.0

package job

// Result is the terminal outcome of a job. It is one of InstallResult,
// UninstallResult, UpdateResult, PackageResult or ExtractResult; callers
// switch on the concrete type.
type Result interface {
	Kind() Kind
	// Snapshot is the final status payload, including cleanup progress.
	Snapshot() Snapshot
	withSnapshot(Snapshot) Result
}

type (
	// InstallResult is produced by InstallJob.
	InstallResult struct {
		State InstallState
		// Files is the number of files copied and recorded in the manifest.
		Files int
		Snap  Snapshot
	}

	// UninstallResult is produced by UninstallJob.
	UninstallResult struct {
		State UninstallState
		// Suppressed holds the failure state a forced uninstall reported as
		// UNINSTALLED instead. Empty when nothing failed.
		Suppressed UninstallState
		Removed    int
		Snap       Snapshot
	}

	// UpdateResult is produced by UpdateJob.
	UpdateResult struct {
		State     UpdateState
		Uninstall UninstallResult
		// Install is the zero value when the install phase never ran.
		Install InstallResult
		Snap    Snapshot
	}

	// PackageResult is produced by PackageJob.
	PackageResult struct {
		State  TaskState
		Action PackageAction
		Target string
		// ReturnCode of the package manager, nil when it never ran.
		ReturnCode *int
		Snap       Snapshot
	}

	// ExtractResult is produced by ExtractJob.
	ExtractResult struct {
		State TaskState
		Dest  string
		Snap  Snapshot
	}
)

func (InstallResult) Kind() Kind   { return KindInstall }
func (UninstallResult) Kind() Kind { return KindUninstall }
func (UpdateResult) Kind() Kind    { return KindUpdate }
func (PackageResult) Kind() Kind   { return KindPackage }
func (ExtractResult) Kind() Kind   { return KindExtract }

func (r InstallResult) Snapshot() Snapshot   { return r.Snap }
func (r UninstallResult) Snapshot() Snapshot { return r.Snap }
func (r UpdateResult) Snapshot() Snapshot    { return r.Snap }
func (r PackageResult) Snapshot() Snapshot   { return r.Snap }
func (r ExtractResult) Snapshot() Snapshot   { return r.Snap }

func (r InstallResult) withSnapshot(s Snapshot) Result   { r.Snap = s; return r }
func (r UninstallResult) withSnapshot(s Snapshot) Result { r.Snap = s; return r }
func (r UpdateResult) withSnapshot(s Snapshot) Result    { r.Snap = s; return r }
func (r PackageResult) withSnapshot(s Snapshot) Result   { r.Snap = s; return r }
func (r ExtractResult) withSnapshot(s Snapshot) Result   { r.Snap = s; return r }
