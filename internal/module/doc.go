// SPDX-License-Identifier: MPL-2.0

// Package module holds the data shared by every installer job: the module
// descriptor, the on-disk layout of installed modules, the policy protecting
// system libraries, the TOML catalog of available modules and the record
// written after a successful install.
package module
