// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates moduled configuration files against embedded
// CUE schemas.
//
// Unify consolidates the CUE validation pattern used for configuration files:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify it with a schema definition
//  3. Validate, formatting any error with file and JSON-path context
//
// # Usage
//
//	//go:embed config_schema.cue
//	var schema string
//
//	value, err := cueutil.Unify(schema, data, "#Config", "config.cue")
//	if err != nil {
//	    return err // "config.cue: download.retries: conflicting values ..."
//	}
//	var m map[string]any
//	err = value.Decode(&m)
package cueutil
