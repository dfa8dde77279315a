// SPDX-License-Identifier: MPL-2.0

package module

import "path/filepath"

// Policy decides which destination paths must never be overwritten or
// deleted by installer jobs.
type Policy struct {
	patterns []string
}

// NewPolicy builds a Policy from glob patterns (path.Match syntax) matched
// against a destination's base name. Malformed patterns are rejected.
func NewPolicy(patterns []string) (Policy, error) {
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return Policy{}, &InvalidPatternError{Pattern: p, Err: err}
		}
	}
	return Policy{patterns: append([]string(nil), patterns...)}, nil
}

// Protected reports whether path matches one of the policy's patterns.
func (p Policy) Protected(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range p.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// InvalidPatternError reports a malformed protection pattern.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return "protected library pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }
