// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError names the operation that failed and the module, file
	// or URL it touched, and carries hints the operator can act on.
	ActionableError struct {
		Operation   string
		Resource    string
		Suggestions []string
		Cause       error
	}

	// ErrorContext assembles an ActionableError step by step:
	//
	//	return issue.NewErrorContext().
	//		WithOperation("load module catalog").
	//		WithResource(path).
	//		WithSuggestion("Check the TOML syntax").
	//		Wrap(err).
	//		BuildError()
	ErrorContext struct {
		ae ActionableError
	}
)

// Wrap attaches an operation and resource to err. It returns nil for a nil err.
func Wrap(err error, operation, resource string) *ActionableError {
	if err == nil {
		return nil
	}
	return &ActionableError{Operation: operation, Resource: resource, Cause: err}
}

// Error renders "failed to <operation>: <resource>: <cause>", omitting
// empty parts.
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// HasSuggestions reports whether e carries any hints.
func (e *ActionableError) HasSuggestions() bool {
	return len(e.Suggestions) > 0
}

// Format renders the message followed by one bulleted line per suggestion.
// Verbose output also numbers every error in the cause chain.
func (e *ActionableError) Format(verbose bool) string {
	var sb strings.Builder
	sb.WriteString(e.Error())

	if e.HasSuggestions() {
		sb.WriteString("\n")
		for _, s := range e.Suggestions {
			sb.WriteString("\n  • " + s)
		}
	}

	if verbose && e.Cause != nil {
		sb.WriteString("\n\nError chain:")
		for i, err := 1, e.Cause; err != nil; i, err = i+1, errors.Unwrap(err) {
			fmt.Fprintf(&sb, "\n  %d. %s", i, err)
		}
	}
	return sb.String()
}

// NewErrorContext starts an empty ErrorContext.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WithOperation sets the verb phrase, such as "install module".
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.ae.Operation = op
	return c
}

// WithResource sets the module, path or URL involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.ae.Resource = res
	return c
}

// WithSuggestion appends hints. It may be called repeatedly.
func (c *ErrorContext) WithSuggestion(hints ...string) *ErrorContext {
	c.ae.Suggestions = append(c.ae.Suggestions, hints...)
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.ae.Cause = err
	return c
}

// BuildError returns the assembled *ActionableError, or nil when no
// operation was set.
func (c *ErrorContext) BuildError() error {
	if c.ae.Operation == "" {
		return nil
	}
	ae := c.ae
	ae.Suggestions = append([]string(nil), c.ae.Suggestions...)
	return &ae
}
