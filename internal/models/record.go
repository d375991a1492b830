package models

// Record is the local domain object being synced.
type Record interface {
	// LocalType is the table or kind of the record, e.g. "user".
	LocalType() string
	// LocalID is the stable primary key in string form.
	LocalID() string
	// Field reads the current value of a named field.
	Field(name string) (any, bool)
	// Related resolves a relation by accessor name.
	Related(accessor string) (Record, bool)
	// SyncDefinition returns the record's declared sync configuration, or
	// nil when the record is not synced.
	SyncDefinition() *SyncDefinition
}

// SyncDefinition is the static sync configuration declared for a local type.
type SyncDefinition struct {
	Environments     []string                  `yaml:"environments" json:"environments,omitempty"`
	Mappings         []ProviderMapping         `yaml:"mappings" json:"mappings"`
	UniqueSearch     map[string]FieldMap       `yaml:"unique_search" json:"unique_search,omitempty"`
	RemoteObjectType string                    `yaml:"remote_object_type" json:"remote_object_type,omitempty"`
	DeleteRules      DeleteRules               `yaml:"delete_rules" json:"delete_rules"`
	ActiveRules      map[string]map[string]any `yaml:"active_rules" json:"active_rules,omitempty"`
	AssociateRules   []AssociationRule         `yaml:"associate_rules" json:"associate_rules,omitempty"`
}

// FieldMap maps local field names to remote property names.
type FieldMap map[string]string

// ProviderMapping holds the field mapping for one provider. Mappings are
// kept in a slice so providers are processed in declaration order.
type ProviderMapping struct {
	Provider string   `yaml:"provider" json:"provider"`
	Fields   FieldMap `yaml:"fields" json:"fields"`
}

// DeleteRules holds the per-provider rules for both delete modes.
type DeleteRules struct {
	Hard map[string]DeleteRule `yaml:"hard_delete" json:"hard_delete,omitempty"`
	Soft map[string]DeleteRule `yaml:"soft_delete" json:"soft_delete,omitempty"`
}

// DeleteRule describes what a delete does remotely. A disabled rule makes
// the delete a no-op; Properties are the overrides applied by a soft delete.
type DeleteRule struct {
	Disabled   bool           `yaml:"disabled" json:"disabled,omitempty"`
	Properties map[string]any `yaml:"properties" json:"properties,omitempty"`
}

// AssociationRule declares a link from this record to a related one.
type AssociationRule struct {
	Accessor         string                       `yaml:"accessor" json:"accessor"`
	TargetObjectType string                       `yaml:"target_object_type" json:"target_object_type,omitempty"`
	Providers        map[string][]AssociationSpec `yaml:"providers" json:"providers"`
}

// AssociationSpec is one typed label an association must carry.
type AssociationSpec struct {
	Category string `yaml:"category" json:"category"`
	TypeID   int    `yaml:"type_id" json:"type_id"`
}

// Mapping returns the field mapping for provider, if declared.
func (d *SyncDefinition) Mapping(provider string) (FieldMap, bool) {
	if d == nil {
		return nil, false
	}
	for _, m := range d.Mappings {
		if m.Provider == provider {
			return m.Fields, len(m.Fields) > 0
		}
	}
	return nil, false
}

// HasMappings reports whether at least one provider declares fields.
func (d *SyncDefinition) HasMappings() bool {
	if d == nil {
		return false
	}
	for _, m := range d.Mappings {
		if len(m.Fields) > 0 {
			return true
		}
	}
	return false
}

// DeleteRule returns the rule for provider in the requested mode.
func (d *SyncDefinition) DeleteRule(provider string, soft bool) (DeleteRule, bool) {
	if d == nil {
		return DeleteRule{}, false
	}
	rules := d.DeleteRules.Hard
	if soft {
		rules = d.DeleteRules.Soft
	}
	rule, ok := rules[provider]
	return rule, ok
}
