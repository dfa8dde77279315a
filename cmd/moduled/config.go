// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moduled/moduled/internal/config"
	"github.com/moduled/moduled/internal/issue"
)

// newConfigCommand creates the `moduled config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage moduled configuration",
		Long: `Manage moduled configuration.

Configuration is read from the first file found:
  - the --config flag
  - ~/.config/moduled/config.cue (or $XDG_CONFIG_HOME/moduled/config.cue)
  - /etc/moduled/config.cue

Every key can be overridden with a MODULED_ environment variable,
for example MODULED_DOWNLOAD_RETRIES=5.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showConfig(cmd.Context())
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: app.flags.configPath})
			if err != nil {
				return app.fail(newServiceError(err, issue.ConfigLoadFailedId, ""))
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func (a *App) showConfig(ctx context.Context) error {
	cfg, source, err := a.Config.LoadWithSource(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return a.fail(newServiceError(err, issue.ConfigLoadFailedId, ""))
	}
	if a.flags.jsonOutput {
		return writeJSON(a.stdout, cfg)
	}

	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	out := a.stdout

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	if source == "" {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), source)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s:\n", keyStyle.Render("paths"))
	fmt.Fprintf(out, "  state_dir:    %s\n", valueStyle.Render(cfg.Paths.StateDir))
	fmt.Fprintf(out, "  backend_dir:  %s\n", valueStyle.Render(cfg.Paths.BackendDir))
	fmt.Fprintf(out, "  frontend_dir: %s\n", valueStyle.Render(cfg.Paths.FrontendDir))
	fmt.Fprintf(out, "  cache_dir:    %s\n", valueStyle.Render(cfg.Paths.CacheDir))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("catalog"), valueStyle.Render(cfg.Catalog))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("protected_libraries"))
	if len(cfg.ProtectedLibraries) == 0 {
		fmt.Fprintf(out, "  %s\n", SubtitleStyle.Render("(none configured)"))
	}
	for _, pattern := range cfg.ProtectedLibraries {
		fmt.Fprintf(out, "  - %s\n", valueStyle.Render(pattern))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("download"))
	fmt.Fprintf(out, "  retries: %s\n", valueStyle.Render(fmt.Sprint(cfg.Download.Retries)))
	fmt.Fprintf(out, "  timeout: %s\n", valueStyle.Render(cfg.Download.Timeout.String()))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("packages"))
	fmt.Fprintf(out, "  install:   %s\n", valueStyle.Render(cfg.Packages.Install))
	fmt.Fprintf(out, "  uninstall: %s\n", valueStyle.Render(cfg.Packages.Uninstall))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("storage"))
	fmt.Fprintf(out, "  read_only:  %s\n", valueStyle.Render(fmt.Sprint(cfg.Storage.ReadOnly)))
	if cfg.Storage.ReadOnly {
		fmt.Fprintf(out, "  remount_rw: %s\n", valueStyle.Render(cfg.Storage.RemountRW))
		fmt.Fprintf(out, "  remount_ro: %s\n", valueStyle.Render(cfg.Storage.RemountRO))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("log"))
	fmt.Fprintf(out, "  level: %s\n", valueStyle.Render(string(cfg.Log.Level)))
	if strings.TrimSpace(cfg.Log.File) != "" {
		fmt.Fprintf(out, "  file:  %s\n", valueStyle.Render(cfg.Log.File))
	}
	return nil
}

func (a *App) initConfig() error {
	dir, err := config.ConfigDir()
	if err != nil {
		return a.fail(newServiceError(err, 0, ""))
	}

	path, err := config.CreateDefaultConfig(dir)
	if err != nil {
		return a.fail(newServiceError(err, 0, ""))
	}
	fmt.Fprintf(a.stdout, "%s Configuration file: %s\n", successIcon, CmdStyle.Render(path))
	return nil
}
