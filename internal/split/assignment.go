// Package split computes per-person owed amounts for one receipt's items.
// Everything here is pure and synchronous; callers own any locking.
package split

import "fmt"

// Person is one member of the fixed group eligible for a split session.
type Person struct {
	ID   string
	Name string
}

// Item is one receipt line item as the engine sees it. A nil price means
// the value could not be read at extraction time.
type Item struct {
	ID    string
	Name  string
	Price *float64
}

// Assignments holds explicit item-to-people assignments for one receipt's
// split session. An item with no entry (or an emptied one) falls back to
// the default: split evenly across everyone eligible.
//
// Assignment order is preserved so labels can name whoever was picked first.
type Assignments struct {
	byItem map[string][]string
}

// NewAssignments returns an empty assignment set.
func NewAssignments() *Assignments {
	return &Assignments{byItem: make(map[string][]string)}
}

// Toggle flips one person's membership for one item: assigned becomes
// unassigned and vice versa. It is its own inverse. Emptying the set
// reverts the item to the everyone default.
func (a *Assignments) Toggle(itemID, personID string) {
	current := a.byItem[itemID]
	for i, id := range current {
		if id == personID {
			a.byItem[itemID] = append(current[:i:i], current[i+1:]...)
			if len(a.byItem[itemID]) == 0 {
				delete(a.byItem, itemID)
			}
			return
		}
	}
	a.byItem[itemID] = append(current, personID)
}

// AssignEveryone clears the explicit set for an item, re-establishing the
// split-among-everyone default.
func (a *Assignments) AssignEveryone(itemID string) {
	delete(a.byItem, itemID)
}

// Assigned returns the explicit person IDs for an item in assignment order.
// An empty result means the everyone default applies.
func (a *Assignments) Assigned(itemID string) []string {
	current := a.byItem[itemID]
	out := make([]string, len(current))
	copy(out, current)
	return out
}

// Describe renders the human-readable assignment label for an item:
// "Everyone" when the default applies, the sole assignee's name, or
// "<first assigned> +<n-1>" for larger sets.
func (a *Assignments) Describe(itemID string, people []Person) string {
	assigned := a.byItem[itemID]
	if len(assigned) == 0 {
		return "Everyone"
	}

	first := assigned[0]
	name := first
	for _, p := range people {
		if p.ID == first {
			name = p.Name
			break
		}
	}

	if len(assigned) == 1 {
		return name
	}
	return fmt.Sprintf("%s +%d", name, len(assigned)-1)
}
