// SPDX-License-Identifier: MPL-2.0

// Package config handles moduled configuration using Viper with CUE as the file format.
//
// Configuration is loaded from an explicit --config path, from
// $XDG_CONFIG_HOME/moduled/config.cue (defaulting to ~/.config/moduled/config.cue),
// or from /etc/moduled/config.cue, in that order. Missing files fall back to
// DefaultConfig. Files are validated against the embedded config_schema.cue.
package config
