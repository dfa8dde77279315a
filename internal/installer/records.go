// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/moduled/moduled/internal/module"
)

// Available pairs an installed module with a newer catalog entry.
type Available struct {
	Installed module.Record
	Candidate module.Descriptor
}

// Installed lists the records of every installed module.
func (i *Installer) Installed() ([]module.Record, error) {
	return module.ListRecords(i.deps.FS, i.deps.Layout)
}

// Updates compares installed modules with the catalog. Modules missing from
// the catalog are skipped. Version parse errors are collected and returned
// with the updates that could be determined.
func (i *Installer) Updates(catalog *module.Catalog) ([]Available, error) {
	records, err := i.Installed()
	if err != nil {
		return nil, err
	}

	var out []Available
	var errs *multierror.Error
	for _, rec := range records {
		desc, err := catalog.Lookup(rec.Name)
		if errors.Is(err, module.ErrModuleNotFound) {
			continue
		}
		newer, err := module.UpdateAvailable(rec, desc)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if newer {
			out = append(out, Available{Installed: rec, Candidate: desc})
		}
	}
	return out, errs.ErrorOrNil()
}
