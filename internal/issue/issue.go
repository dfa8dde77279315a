// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	ModuleNotFoundId Id = iota + 1
	CatalogLoadFailedId
	ConfigLoadFailedId
	DownloadFailedId
	ChecksumMismatchId
	ArchiveCorruptId
	HookFailedId
	CopyFailedId
	ReadOnlyFilesystemId
	InstallerBusyId
	PackageManagerFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal Markdown using the given glamour style
// ("dark", "light", "notty", or a path to a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also:\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found!

The module you asked for is not listed in the catalog.

## Things you can try:
- List the modules the catalog knows about:
~~~
$ moduled list
~~~
- Point moduled at a different catalog:
~~~
$ moduled --catalog /path/to/catalog.toml install <name>
~~~`,
	}

	catalogLoadFailedIssue = &Issue{
		id: CatalogLoadFailedId,
		mdMsg: `
# Failed to load the module catalog!

The catalog file is missing or is not valid TOML.

## Expected format:
~~~toml
[[module]]
name = "demo"
url = "https://example.com/demo-1.0.0.zip"
checksum = "<sha256 hex>"
version = "1.0.0"
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Print the effective configuration:
~~~
$ moduled config show
~~~
- Write a fresh default configuration:
~~~
$ moduled config init
~~~`,
	}

	downloadFailedIssue = &Issue{
		id: DownloadFailedId,
		mdMsg: `
# Download failed!

The module archive could not be fetched.

## Things you can try:
- Check that the device has network access
- Check that the URL in the catalog is reachable
- Increase ` + "`download.retries`" + ` or ` + "`download.timeout`" + ` in your config`,
	}

	checksumMismatchIssue = &Issue{
		id: ChecksumMismatchId,
		mdMsg: `
# Checksum mismatch!

The downloaded archive does not match the SHA-256 checksum listed in the catalog.
Nothing was installed.

## Things you can try:
- Make sure the catalog entry was updated together with the archive
- Compute the checksum yourself:
~~~
$ sha256sum module.zip
~~~`,
	}

	archiveCorruptIssue = &Issue{
		id: ArchiveCorruptId,
		mdMsg: `
# Archive could not be extracted!

The archive is corrupt, truncated, or contains entries that would escape the
extraction directory.`,
	}

	hookFailedIssue = &Issue{
		id: HookFailedId,
		mdMsg: `
# A lifecycle script failed!

One of the module's ` + "`preinst`, `postinst`, `preuninst` or `postuninst`" + ` scripts
exited with a non-zero status or was killed. Its output is printed above.

## Things you can try:
- Re-run with ` + "`--verbose`" + ` to see the full script output
- Contact the module vendor with the captured output`,
	}

	copyFailedIssue = &Issue{
		id: CopyFailedId,
		mdMsg: `
# Copying module files failed!

All files copied so far have been removed again.

## Things you can try:
- Check free space on the device
- Check that the backend and frontend directories in your config are writable`,
	}

	readOnlyFilesystemIssue = &Issue{
		id: ReadOnlyFilesystemId,
		mdMsg: `
# The filesystem could not be made writable!

moduled remounts storage read-write for the duration of each operation.

## Things you can try:
- Check the ` + "`storage.remount_rw`" + ` command in your config
- Run moduled as a user allowed to remount the filesystem`,
	}

	installerBusyIssue = &Issue{
		id: InstallerBusyId,
		mdMsg: `
# Another operation is in progress!

Only one install, uninstall, update or package operation can run at a time.
Wait for it to finish and try again.`,
	}

	packageManagerFailedIssue = &Issue{
		id: PackageManagerFailedId,
		mdMsg: `
# The system package manager failed!

## Things you can try:
- Check the ` + "`packages.install`" + ` and ` + "`packages.uninstall`" + ` commands in your config
- Run the package manager manually to see the full error`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

## Things you can try:
- Run moduled as a user that owns the module state directory
- Check the permissions of the backend and frontend directories`,
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():       moduleNotFoundIssue,
		catalogLoadFailedIssue.Id():    catalogLoadFailedIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		downloadFailedIssue.Id():       downloadFailedIssue,
		checksumMismatchIssue.Id():     checksumMismatchIssue,
		archiveCorruptIssue.Id():       archiveCorruptIssue,
		hookFailedIssue.Id():           hookFailedIssue,
		copyFailedIssue.Id():           copyFailedIssue,
		readOnlyFilesystemIssue.Id():   readOnlyFilesystemIssue,
		installerBusyIssue.Id():        installerBusyIssue,
		packageManagerFailedIssue.Id(): packageManagerFailedIssue,
		permissionDeniedIssue.Id():     permissionDeniedIssue,
	}
)

func Values() []*Issue {
	return slices.Collect(maps.Values(issues))
}

func Get(id Id) *Issue {
	return issues[id]
}
