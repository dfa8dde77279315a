// SPDX-License-Identifier: MPL-2.0

package module

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDescriptor is the sentinel wrapped by InvalidDescriptorError.
var ErrInvalidDescriptor = errors.New("invalid module descriptor")

type (
	// Descriptor identifies one version of a module and where to fetch it.
	Descriptor struct {
		Name     string `toml:"name" json:"name"`
		URL      string `toml:"url" json:"url,omitempty"`
		Checksum string `toml:"checksum" json:"checksum,omitempty"`
		Version  string `toml:"version" json:"version,omitempty"`
		// Local modules ship with the firmware; jobs on them succeed without
		// touching the filesystem.
		Local bool `toml:"local" json:"local,omitempty"`
	}

	// InvalidDescriptorError lists the problems found by Validate.
	InvalidDescriptorError struct {
		Name     string
		Problems []string
	}
)

// Error implements the error interface.
func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidDescriptor, e.Name, strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrInvalidDescriptor.
func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }

// Validate checks that the descriptor can be used by installer jobs.
func (d Descriptor) Validate() error {
	var problems []string

	switch {
	case d.Name == "":
		problems = append(problems, "name is empty")
	case d.Name == "." || d.Name == ".." || strings.ContainsAny(d.Name, `/\`) || strings.Contains(d.Name, ".."):
		problems = append(problems, "name must not contain path separators or '..'")
	}

	if !d.Local {
		if d.URL == "" {
			problems = append(problems, "url is empty")
		}
		if !validChecksum(d.Checksum) {
			problems = append(problems, "checksum must be 64 hex characters (SHA-256)")
		}
	}

	if len(problems) > 0 {
		return &InvalidDescriptorError{Name: d.Name, Problems: problems}
	}
	return nil
}

// String returns name@version, or just the name when unversioned.
func (d Descriptor) String() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + "@" + d.Version
}

func validChecksum(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
