// SPDX-License-Identifier: MPL-2.0

package job

const (
	InstallIdle          InstallState = "IDLE"
	Installing           InstallState = "INSTALLING"
	Installed            InstallState = "INSTALLED"
	InstallCanceled      InstallState = "CANCELED"
	InstallErrorInternal InstallState = "ERROR_INTERNAL"
	InstallErrorDownload InstallState = "ERROR_DOWNLOAD"
	InstallErrorExtract  InstallState = "ERROR_EXTRACT"
	InstallErrorPreinst  InstallState = "ERROR_PREINST"
	InstallErrorCopy     InstallState = "ERROR_COPY"
	InstallErrorPostinst InstallState = "ERROR_POSTINST"
)

const (
	UninstallIdle              UninstallState = "IDLE"
	Uninstalling               UninstallState = "UNINSTALLING"
	Uninstalled                UninstallState = "UNINSTALLED"
	UninstalledErrorPreuninst  UninstallState = "UNINSTALLED_ERROR_PREUNINST"
	UninstalledErrorRemove     UninstallState = "UNINSTALLED_ERROR_REMOVE"
	UninstalledErrorPostuninst UninstallState = "UNINSTALLED_ERROR_POSTUNINST"
	UninstallErrorInternal     UninstallState = "ERROR_INTERNAL"
)

const (
	UpdateIdle  UpdateState = "IDLE"
	Updating    UpdateState = "UPDATING"
	Updated     UpdateState = "UPDATED"
	UpdateError UpdateState = "ERROR"
)

// Task states are shared by the package and extract jobs.
const (
	TaskIdle     TaskState = "IDLE"
	TaskRunning  TaskState = "RUNNING"
	TaskDone     TaskState = "DONE"
	TaskCanceled TaskState = "CANCELED"
	TaskError    TaskState = "ERROR"
)

type (
	// InstallState is the state of an InstallJob.
	InstallState string
	// UninstallState is the state of an UninstallJob.
	UninstallState string
	// UpdateState is the state of an UpdateJob.
	UpdateState string
	// TaskState is the state of a PackageJob or ExtractJob.
	TaskState string
)

func (s InstallState) String() string   { return string(s) }
func (s UninstallState) String() string { return string(s) }
func (s UpdateState) String() string    { return string(s) }
func (s TaskState) String() string      { return string(s) }

// IsTerminal reports whether no further transitions follow s.
func (s InstallState) IsTerminal() bool {
	return s != InstallIdle && s != Installing
}

// IsTerminal reports whether no further transitions follow s.
func (s UninstallState) IsTerminal() bool {
	return s != UninstallIdle && s != Uninstalling
}

// IsTerminal reports whether no further transitions follow s.
func (s UpdateState) IsTerminal() bool {
	return s == Updated || s == UpdateError
}

// IsTerminal reports whether no further transitions follow s.
func (s TaskState) IsTerminal() bool {
	return s == TaskDone || s == TaskCanceled || s == TaskError
}
