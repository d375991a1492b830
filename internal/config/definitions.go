package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/prudhvinik1/crmsync/internal/models"
)

// Definitions holds the declared sync configuration per local type.
type Definitions struct {
	Models map[string]*models.SyncDefinition `yaml:"models"`
}

// LoadDefinitions reads model definitions from a YAML file. An empty path
// yields an empty set.
func LoadDefinitions(path string) (*Definitions, error) {
	if path == "" {
		return &Definitions{Models: map[string]*models.SyncDefinition{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model definitions: %w", err)
	}
	defs, err := ParseDefinitions(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseDefinitions decodes model definitions and validates their shape.
func ParseDefinitions(r io.Reader) (*Definitions, error) {
	var defs Definitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode model definitions: %w", err)
	}
	if defs.Models == nil {
		defs.Models = map[string]*models.SyncDefinition{}
	}
	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Validate checks structural problems that would otherwise only surface
// mid-sync.
func (d *Definitions) Validate() error {
	for _, name := range d.Names() {
		def := d.Models[name]
		if def == nil {
			return fmt.Errorf("model %q: empty definition", name)
		}
		seen := make(map[string]bool)
		for i, m := range def.Mappings {
			if m.Provider == "" {
				return fmt.Errorf("model %q: mapping %d has no provider", name, i)
			}
			if seen[m.Provider] {
				return fmt.Errorf("model %q: provider %q mapped twice", name, m.Provider)
			}
			seen[m.Provider] = true
		}
		for i, rule := range def.AssociateRules {
			if rule.Accessor == "" {
				return fmt.Errorf("model %q: associate rule %d has no accessor", name, i)
			}
		}
	}
	return nil
}

// Lookup returns the definition for a local type, or nil.
func (d *Definitions) Lookup(localType string) *models.SyncDefinition {
	if d == nil {
		return nil
	}
	return d.Models[localType]
}

// Names returns the defined local types in sorted order.
func (d *Definitions) Names() []string {
	names := make([]string, 0, len(d.Models))
	for name := range d.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
