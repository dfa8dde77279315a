// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moduled/moduled/internal/download"
	"github.com/moduled/moduled/internal/installer"
	"github.com/moduled/moduled/internal/issue"
	"github.com/moduled/moduled/internal/job"
	"github.com/moduled/moduled/internal/module"
)

func newInstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "install <module>",
		Short: "Download and install a module from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runOperation(cmd.Context(), func(ctx context.Context, s *session, inst *installer.Installer) (bool, error) {
				desc, err := app.lookup(s, args[0])
				if err != nil {
					return false, err
				}
				return inst.Install(ctx, desc)
			})
		},
	}
}

func newUninstallCommand(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "uninstall <module>",
		Short: "Remove an installed module",
		Long: `Remove an installed module.

Every file listed in the module's install manifest is removed. The module's
preuninst and postuninst scripts run before and after removal. With --force
script and removal failures are logged but the module is reported as
uninstalled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runOperation(cmd.Context(), func(ctx context.Context, s *session, inst *installer.Installer) (bool, error) {
				return inst.Uninstall(ctx, app.installedDescriptor(s, args[0]), force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "report success even when scripts or removal fail")
	return cmd
}

func newUpdateCommand(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "update [module]",
		Short: "Replace an installed module with the catalog version",
		Long: `Replace an installed module with the catalog version.

The installed module is uninstalled (forced) and the catalog version is
installed in its place. With --all every installed module that has a newer
catalog version is updated, one after another.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return app.updateAll(cmd.Context())
			}
			return app.runOperation(cmd.Context(), func(ctx context.Context, s *session, inst *installer.Installer) (bool, error) {
				desc, err := app.lookup(s, args[0])
				if err != nil {
					return false, err
				}
				return inst.Update(ctx, desc)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "update every module with a newer catalog version")
	return cmd
}

// updateAll updates outdated modules in name order and stops at the first
// failure.
func (a *App) updateAll(ctx context.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return a.fail(err)
	}
	cat, err := a.catalog(s)
	if err != nil {
		_ = s.Close()
		return a.fail(err)
	}
	inst := installer.New(s.deps, installer.WithLogger(s.logger))
	updates, err := inst.Updates(cat)
	_ = s.Close()
	if err != nil && len(updates) == 0 {
		return a.fail(newServiceError(err, issue.CatalogLoadFailedId, ""))
	}
	if len(updates) == 0 {
		fmt.Fprintf(a.stdout, "%s All modules are up to date\n", successIcon)
		return nil
	}

	for _, u := range updates {
		candidate := u.Candidate
		uerr := a.runOperation(ctx, func(ctx context.Context, _ *session, inst *installer.Installer) (bool, error) {
			return inst.Update(ctx, candidate)
		})
		if uerr != nil {
			return uerr
		}
	}
	return nil
}

func newListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog modules and their install state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.list(cmd.Context())
		},
	}
}

// moduleListing is the --json shape of list.
type moduleListing struct {
	Name      string `json:"name"`
	Available string `json:"available,omitempty"`
	Installed string `json:"installed,omitempty"`
	Local     bool   `json:"local"`
}

func (a *App) list(ctx context.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = s.Close() }() // Log file close error is non-critical at exit.

	cat, err := a.catalog(s)
	if err != nil {
		return a.fail(err)
	}
	records, err := module.ListRecords(s.deps.FS, s.deps.Layout)
	if err != nil {
		return a.fail(classify(err))
	}

	installed := make(map[string]module.Record, len(records))
	for _, rec := range records {
		installed[rec.Name] = rec
	}

	var listing []moduleListing
	for _, desc := range cat.All() {
		entry := moduleListing{Name: desc.Name, Available: desc.Version, Local: desc.Local}
		if rec, ok := installed[desc.Name]; ok {
			entry.Installed = rec.Version
			delete(installed, desc.Name)
		}
		listing = append(listing, entry)
	}
	// Installed modules that left the catalog are still listed.
	for _, rec := range records {
		if _, ok := installed[rec.Name]; ok {
			listing = append(listing, moduleListing{Name: rec.Name, Installed: rec.Version})
		}
	}

	if a.flags.jsonOutput {
		return writeJSON(a.stdout, listing)
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Modules"))
	if len(listing) == 0 {
		fmt.Fprintf(a.stdout, "%s No modules found in %s\n", infoIcon, CmdStyle.Render(cat.Path()))
		return nil
	}
	for _, m := range listing {
		switch {
		case m.Installed == "":
			fmt.Fprintf(a.stdout, "%s %s %s\n", infoIcon, m.Name, SubtitleStyle.Render(versionLabel(m.Available)))
		case m.Available == "":
			fmt.Fprintf(a.stdout, "%s %s %s %s\n", warningIcon, m.Name, SuccessStyle.Render(versionLabel(m.Installed)), SubtitleStyle.Render("(not in catalog)"))
		default:
			fmt.Fprintf(a.stdout, "%s %s %s\n", successIcon, m.Name, SuccessStyle.Render(versionLabel(m.Installed)))
		}
	}
	return nil
}

func newOutdatedCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "outdated",
		Short: "List installed modules with a newer catalog version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.outdated(cmd.Context())
		},
	}
}

func (a *App) outdated(ctx context.Context) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = s.Close() }() // Log file close error is non-critical at exit.

	cat, err := a.catalog(s)
	if err != nil {
		return a.fail(err)
	}
	updates, err := installer.New(s.deps, installer.WithLogger(s.logger)).Updates(cat)
	if err != nil {
		// Partial results are still useful; unparsable versions are only logged.
		s.logger.Warn("some versions could not be compared", "error", err)
	}

	if a.flags.jsonOutput {
		return writeJSON(a.stdout, updates)
	}
	if len(updates) == 0 {
		fmt.Fprintf(a.stdout, "%s All modules are up to date\n", successIcon)
		return nil
	}
	for _, u := range updates {
		fmt.Fprintf(a.stdout, "%s %s %s → %s\n",
			infoIcon,
			u.Installed.Name,
			SubtitleStyle.Render(versionLabel(u.Installed.Version)),
			SuccessStyle.Render(versionLabel(u.Candidate.Version)))
	}
	return nil
}

func versionLabel(v string) string {
	if v == "" {
		return "(unversioned)"
	}
	return v
}

// issueForResult picks the help text for a failed job.
func issueForResult(res job.Result) issue.Id {
	switch r := res.(type) {
	case job.InstallResult:
		switch r.State {
		case job.InstallErrorDownload:
			if checksumFailed(r.Snap) {
				return issue.ChecksumMismatchId
			}
			return issue.DownloadFailedId
		case job.InstallErrorExtract:
			return issue.ArchiveCorruptId
		case job.InstallErrorPreinst, job.InstallErrorPostinst:
			return issue.HookFailedId
		case job.InstallErrorCopy:
			return issue.CopyFailedId
		}
	case job.UninstallResult:
		switch r.State {
		case job.UninstalledErrorPreuninst, job.UninstalledErrorPostuninst:
			return issue.HookFailedId
		case job.UninstalledErrorRemove:
			return issue.PermissionDeniedId
		}
	case job.UpdateResult:
		return issueForResult(r.Install)
	case job.PackageResult:
		if r.State == job.TaskError {
			return issue.PackageManagerFailedId
		}
	case job.ExtractResult:
		if r.State == job.TaskError {
			return issue.ArchiveCorruptId
		}
	}
	return 0
}

// checksumFailed reports whether the download step failed verification.
func checksumFailed(s job.Snapshot) bool {
	return slices.ContainsFunc(s.Progress, func(line string) bool {
		return strings.HasPrefix(line, "download failed") &&
			strings.Contains(line, download.StatusChecksumMismatch.String())
	})
}
