// SPDX-License-Identifier: MPL-2.0

package module

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

// ErrModuleNotFound is returned by Catalog.Lookup for unknown names.
var ErrModuleNotFound = errors.New("module not found in catalog")

type (
	// Catalog lists the modules available for installation.
	Catalog struct {
		path    string
		modules map[string]Descriptor
	}

	catalogFile struct {
		Modules []Descriptor `toml:"module"`
	}
)

// LoadCatalog reads a TOML catalog of [[module]] tables from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.path = path
	return c, nil
}

// ParseCatalog decodes catalog TOML. Every entry must pass
// Descriptor.Validate and names must be unique.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("parse catalog at line %d, column %d: %w", row, col, err)
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{modules: make(map[string]Descriptor, len(file.Modules))}
	for _, d := range file.Modules {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.modules[d.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", d.Name)
		}
		c.modules[d.Name] = d
	}
	return c, nil
}

// Path returns the file the catalog was loaded from, if any.
func (c *Catalog) Path() string {
	return c.path
}

// Lookup returns the descriptor named name.
func (c *Catalog) Lookup(name string) (Descriptor, error) {
	d, ok := c.modules[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return d, nil
}

// All returns every descriptor sorted by name.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, 0, len(c.modules))
	for _, name := range slices.Sorted(maps.Keys(c.modules)) {
		out = append(out, c.modules[name])
	}
	return out
}
