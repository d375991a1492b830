package orchestrator

import (
	"fmt"
	"strings"
)

// Actions is a set of sync actions.
type Actions uint8

const (
	ActionCreate Actions = 1 << iota
	ActionUpdate
	ActionDelete
	ActionRestore
)

// ActionPatch is create-or-update, the default.
const ActionPatch = ActionCreate | ActionUpdate

var actionNames = []struct {
	action Actions
	name   string
}{
	{ActionCreate, "create"},
	{ActionUpdate, "update"},
	{ActionDelete, "delete"},
	{ActionRestore, "restore"},
}

// Has reports whether every action in other is in a.
func (a Actions) Has(other Actions) bool {
	return other != 0 && a&other == other
}

func (a Actions) IsPatch() bool {
	return a.Has(ActionPatch)
}

func (a Actions) Empty() bool {
	return a == 0
}

func (a Actions) String() string {
	if a == 0 {
		return "none"
	}
	var names []string
	for _, n := range actionNames {
		if a&n.action != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseActions parses action names. "patch" expands to create and update.
// An empty list yields ActionPatch.
func ParseActions(names ...string) (Actions, error) {
	if len(names) == 0 {
		return ActionPatch, nil
	}
	var out Actions
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			switch name {
			case "":
				continue
			case "patch":
				out |= ActionPatch
				continue
			}
			found := false
			for _, n := range actionNames {
				if n.name == name {
					out |= n.action
					found = true
					break
				}
			}
			if !found {
				return 0, fmt.Errorf("unknown sync action %q", name)
			}
		}
	}
	if out == 0 {
		return ActionPatch, nil
	}
	return out, nil
}
