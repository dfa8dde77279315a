// SPDX-License-Identifier: MPL-2.0

package download

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures and non-200 responses.
	ErrTransport = errors.New("transport error")

	// ErrSizeMismatch indicates the body length differs from Content-Length.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrChecksumMismatch indicates the computed SHA256 hash does not match the expected hash.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

type (
	// HTTPStatusError reports a non-200 response. It wraps ErrTransport.
	HTTPStatusError struct {
		URL        string
		StatusCode int
	}

	// SizeError reports a truncated or oversized body. It wraps ErrSizeMismatch.
	SizeError struct {
		URL      string
		Expected int64
		Got      int64
	}

	// ChecksumError provides details about a checksum verification failure.
	// It wraps ErrChecksumMismatch so callers can use errors.Is for classification.
	ChecksumError struct {
		URL      string
		Expected string
		Got      string
	}
)

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected HTTP status %d", e.URL, e.StatusCode)
}

// Unwrap returns ErrTransport.
func (e *HTTPStatusError) Unwrap() error { return ErrTransport }

// Retryable reports whether the server may succeed on a later attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("download of %s: expected %d bytes, got %d", e.URL, e.Expected, e.Got)
}

// Unwrap returns ErrSizeMismatch.
func (e *SizeError) Unwrap() error { return ErrSizeMismatch }

// Error returns a human-readable description of the checksum mismatch,
// showing both expected and actual hash values for debugging.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.URL, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }
