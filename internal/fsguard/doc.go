// SPDX-License-Identifier: MPL-2.0

// Package fsguard is the single path through which installer jobs mutate the
// filesystem.
//
// Helper wraps an afero.Fs so tests can run against a memory filesystem.
// WriteToggle is the capability that makes normally read-only storage
// writable for the duration of one operation; it is passed explicitly to
// whoever needs it instead of living in global state.
package fsguard
