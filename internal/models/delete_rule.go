package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts the short forms used in model definitions:
//
//	hubspot: disabled          # no-op delete
//	hubspot: false             # same as disabled
//	hubspot: true              # enabled, no overrides
//	hubspot: {lifecyclestage: other}
//	hubspot: {properties: {...}, disabled: false}
func (r *DeleteRule) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch strings.ToLower(strings.TrimSpace(node.Value)) {
		case "disabled", "false", "off", "":
			*r = DeleteRule{Disabled: true}
		case "true", "on", "enabled":
			*r = DeleteRule{}
		default:
			return fmt.Errorf("line %d: invalid delete rule %q", node.Line, node.Value)
		}
		return nil
	case yaml.MappingNode:
		var raw map[string]any
		if err := node.Decode(&raw); err != nil {
			return err
		}
		_, hasProps := raw["properties"]
		_, hasDisabled := raw["disabled"]
		if hasProps || hasDisabled {
			type plain DeleteRule
			var p plain
			if err := node.Decode(&p); err != nil {
				return err
			}
			*r = DeleteRule(p)
			return nil
		}
		*r = DeleteRule{Properties: raw}
		return nil
	default:
		return fmt.Errorf("line %d: delete rule must be a scalar or a mapping", node.Line)
	}
}
