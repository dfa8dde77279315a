// SPDX-License-Identifier: MPL-2.0

// Package installer is the single entry point for module lifecycle
// operations.
//
// An Installer runs at most one job at a time and reports every job kind in
// one status vocabulary (IDLE, PROCESSING, ERROR, DONE, CANCELED). Storage is
// made writable for the duration of each operation through a
// fsguard.WriteToggle. In blocking mode every operation waits for its job and
// returns whether it ended DONE; otherwise progress is delivered through the
// callback.
package installer
