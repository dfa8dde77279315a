// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for moduled.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "moduled",
		Short: "Install, update and remove device modules",
		Long: TitleStyle.Render("moduled") + SubtitleStyle.Render(" - module lifecycle installer") + `

moduled downloads module archives listed in a catalog, verifies their
SHA-256 checksum and installs their backend and frontend files. Every
installed file is recorded so the module can be removed cleanly again.
Modules may ship preinst, postinst, preuninst and postuninst scripts.

` + SubtitleStyle.Render("Examples:") + `
  moduled list                 List catalog modules and what is installed
  moduled install demo         Install the 'demo' module
  moduled update --all         Update every module with a newer version
  moduled uninstall demo       Remove the 'demo' module
  moduled config show          Show current configuration`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is $HOME/.config/moduled/config.cue)")
	flags.StringVar(&app.flags.catalogPath, "catalog", "", "module catalog file (overrides the configured catalog)")
	flags.BoolVar(&app.flags.jsonOutput, "json", false, "print the final status snapshot as JSON")

	rootCmd.AddCommand(
		newInstallCommand(app),
		newUninstallCommand(app),
		newUpdateCommand(app),
		newListCommand(app),
		newOutdatedCommand(app),
		newPackageCommand(app),
		newExtractCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() {
	rootCmd := newRootCommand(NewApp(Dependencies{}))

	// fang.WithNotifySignal cancels the command context on interrupt, which
	// cancels the running job and lets it roll back before we exit.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
