// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ErrFileTooLarge is wrapped by CheckFileSize.
var ErrFileTooLarge = errors.New("file too large")

// FormatError rewrites a CUE error as "<file>: <field>: <message>", one line
// per problem, so an operator can find the offending config key:
//
//	/etc/moduled/config.cue: download.retries: invalid value 11 (out of bound <=10)
//	/etc/moduled/config.cue: protected_libraries[1]: invalid value "" (out of bound !="")
//
// Errors that did not come from CUE are prefixed with the file name only.
func FormatError(err error, filename string) error {
	if err == nil {
		return nil
	}

	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filename, err)
	}

	lines := make([]string, 0, len(list))
	for _, e := range list {
		lines = append(lines, describe(e))
	}
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filename, lines[0])
	}
	return fmt.Errorf("%s: %d problems:\n  %s", filename, len(lines), strings.Join(lines, "\n  "))
}

// describe renders one CUE error with its field path, dropping the path CUE
// sometimes repeats at the start of the message.
func describe(e cueerrors.Error) string {
	field := formatPath(cueerrors.Path(e))
	msg := e.Error()
	if field == "" {
		return msg
	}
	if rest, ok := strings.CutPrefix(msg, field); ok {
		msg = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	}
	return field + ": " + msg
}

// formatPath joins CUE path selectors into config-key notation; list
// indices become brackets, so ["protected_libraries", "1"] reads
// "protected_libraries[1]".
func formatPath(path []string) string {
	var sb strings.Builder
	for i, sel := range path {
		if _, err := strconv.Atoi(sel); err == nil && i > 0 {
			sb.WriteString("[" + sel + "]")
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(sel)
	}
	return sb.String()
}

// CheckFileSize rejects data larger than maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if size := int64(len(data)); size > maxSize {
		return fmt.Errorf("%s is %d bytes, over the %d byte limit: %w", filename, size, maxSize, ErrFileTooLarge)
	}
	return nil
}
