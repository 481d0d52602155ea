package perception

import (
	"fmt"

	"github.com/v0xg/deskagent/internal/failure"
)

// ElementMap resolves element ids from one snapshot to their boxes.
type ElementMap map[int]BBox

// BuildElementMap derives the id -> bbox lookup for snap. It has no side
// effects and returns an equal map for equal snapshots. Colliding ids are
// reported as PerceptionMalformed instead of letting a later element shadow an
// earlier one.
func BuildElementMap(snap Snapshot) (ElementMap, error) {
	m := make(ElementMap, len(snap.Elements))
	for _, el := range snap.Elements {
		if _, dup := m[el.ID]; dup {
			return nil, failure.New(failure.PerceptionMalformed, fmt.Sprintf("duplicate element id %d", el.ID))
		}
		m[el.ID] = el.BBox
	}
	return m, nil
}

// ElementMap lets a Snapshot stand in wherever an element source is accepted.
func (s Snapshot) ElementMap() (ElementMap, error) {
	return BuildElementMap(s)
}

// ElementMap returns m itself.
func (m ElementMap) ElementMap() (ElementMap, error) {
	return m, nil
}

// Lookup returns the box for id.
func (m ElementMap) Lookup(id int) (BBox, bool) {
	b, ok := m[id]
	return b, ok
}
