// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/moduled/moduled/cmd/moduled"

func main() {
	cmd.Execute()
}
