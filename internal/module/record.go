// SPDX-License-Identifier: MPL-2.0

package module

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/pelletier/go-toml/v2"

	"github.com/moduled/moduled/internal/fsguard"
)

// Record is written to the module directory after a successful install.
type Record struct {
	Name        string    `toml:"name" json:"name"`
	Version     string    `toml:"version" json:"version,omitempty"`
	URL         string    `toml:"url" json:"url,omitempty"`
	Checksum    string    `toml:"checksum" json:"checksum,omitempty"`
	InstalledAt time.Time `toml:"installed_at" json:"installedAt"`
	Files       int       `toml:"files" json:"files"`
}

// NewRecord builds the record for a freshly installed descriptor.
func NewRecord(d Descriptor, files int, at time.Time) Record {
	return Record{
		Name:        d.Name,
		Version:     d.Version,
		URL:         d.URL,
		Checksum:    d.Checksum,
		InstalledAt: at.UTC().Truncate(time.Second),
		Files:       files,
	}
}

// Descriptor describes the installed module as it was installed.
func (r Record) Descriptor() Descriptor {
	return Descriptor{Name: r.Name, URL: r.URL, Checksum: r.Checksum, Version: r.Version}
}

// WriteRecord stores r at path.
func WriteRecord(h *fsguard.Helper, path string, r Record) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := h.WriteFile(path, data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// ReadRecord loads the record at path.
func ReadRecord(h *fsguard.Helper, path string) (Record, error) {
	data, err := h.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	var r Record
	if err := toml.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", path, err)
	}
	return r, nil
}

// ListRecords returns the records of every installed module under the
// layout's state directory, sorted by name. Module directories without a
// record (a failed install that could not clean up) are skipped.
func ListRecords(h *fsguard.Helper, l Layout) ([]Record, error) {
	entries, err := h.ReadDir(l.StateDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list installed modules: %w", err)
	}

	var records []Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r, err := ReadRecord(h, l.RecordPath(e.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b Record) int { return strings.Compare(a.Name, b.Name) })
	return records, nil
}

// UpdateAvailable reports whether the catalog descriptor is newer than the
// installed record. Versions are compared with semantic versioning rules.
func UpdateAvailable(installed Record, available Descriptor) (bool, error) {
	if available.Local || available.Version == "" {
		return false, nil
	}
	if installed.Version == "" {
		return true, nil
	}

	current, err := goversion.NewVersion(installed.Version)
	if err != nil {
		return false, fmt.Errorf("installed version of %s: %w", installed.Name, err)
	}
	candidate, err := goversion.NewVersion(available.Version)
	if err != nil {
		return false, fmt.Errorf("catalog version of %s: %w", available.Name, err)
	}
	return candidate.GreaterThan(current), nil
}
