// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv),
// file operations (MustMkdirAll, MustWriteFile, MustReadFile), module archive
// fixtures (WriteZip, FileSHA256) and lifecycle script fixtures (WriteScript).
package testutil
