// SPDX-License-Identifier: MPL-2.0

package hook

import (
	"fmt"
	"os"

	"mvdan.cc/sh/v3/shell"
)

// ExpandCommand splits a shell-like command template into argv, expanding
// $NAME and ${NAME} from vars first and the process environment second.
// Quotes are honored and an unquoted expansion is split on whitespace, so
// "$PKG" keeps a value with spaces in one argument. No command substitution
// is performed.
func ExpandCommand(template string, vars map[string]string) ([]string, error) {
	argv, err := shell.Fields(template, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", template, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("expand %q: %w", template, ErrEmptyCommand)
	}
	return argv, nil
}
