package crm

import (
	"sort"

	"github.com/prudhvinik1/crmsync/internal/models"
)

// Plan is the set of association changes needed toward one target.
type Plan struct {
	// Remove lists the remote ids whose links must be archived.
	Remove []string
	// Create is set when a link to the target with the desired specs has to
	// be created.
	Create bool
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Remove) == 0 && !p.Create
}

// Reconcile compares the links currently reported for the loaded item with
// the desired specs toward targetID.
//
// A link to targetID whose specs equal desired as a set satisfies the
// association. A link to targetID with different specs is removed and
// recreated. Links to any other id are removed, since only one object of the
// target type may be linked.
func Reconcile(current []AssociatedObject, targetID string, desired []models.AssociationSpec) Plan {
	var plan Plan
	satisfied := false

	for _, obj := range current {
		if obj.ID != targetID {
			plan.Remove = append(plan.Remove, obj.ID)
			continue
		}
		if SpecsEqual(obj.Specs, desired) {
			satisfied = true
			continue
		}
		plan.Remove = append(plan.Remove, obj.ID)
	}

	plan.Create = !satisfied
	return plan
}

// SpecsEqual compares two spec lists ignoring order. Duplicates count.
func SpecsEqual(a, b []models.AssociationSpec) bool {
	if len(a) != len(b) {
		return false
	}
	as := sortedSpecs(a)
	bs := sortedSpecs(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortedSpecs(specs []models.AssociationSpec) []models.AssociationSpec {
	out := make([]models.AssociationSpec, len(specs))
	copy(out, specs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].TypeID < out[j].TypeID
	})
	return out
}
