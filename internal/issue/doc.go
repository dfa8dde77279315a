// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the module or path involved
// and remediation hints. The issue catalog holds Markdown troubleshooting
// pages, rendered for the terminal with glamour, that the CLI prints after
// an operation fails.
package issue
