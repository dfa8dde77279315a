// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/moduled/moduled/internal/installer"
)

func newPackageCommand(app *App) *cobra.Command {
	pkgCmd := &cobra.Command{
		Use:     "package",
		Aliases: []string{"pkg"},
		Short:   "Install or remove OS packages with the configured package manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pkgCmd.AddCommand(&cobra.Command{
		Use:   "install <file-or-url>",
		Short: "Install a package file; URLs are downloaded first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runOperation(cmd.Context(), func(ctx context.Context, _ *session, inst *installer.Installer) (bool, error) {
				return inst.InstallPackage(ctx, args[0])
			})
		},
	})

	pkgCmd.AddCommand(&cobra.Command{
		Use:   "uninstall <name>",
		Short: "Remove an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runOperation(cmd.Context(), func(ctx context.Context, _ *session, inst *installer.Installer) (bool, error) {
				return inst.UninstallPackage(ctx, args[0])
			})
		},
	})

	return pkgCmd
}

func newExtractCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <archive> <dest>",
		Short: "Extract an archive into a directory",
		Long: `Extract an archive into a directory.

Any format the archive library understands is accepted (zip, tar, tar.gz,
tar.xz and others). The destination is created when missing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runOperation(cmd.Context(), func(ctx context.Context, _ *session, inst *installer.Installer) (bool, error) {
				return inst.Extract(ctx, args[0], args[1])
			})
		},
	}
}
