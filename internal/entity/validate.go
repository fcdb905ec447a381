package entity

import (
	"errors"
	"fmt"
)

var ErrInvalidEntity = errors.New("invalid entity")

func invalid(e Entity, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s: %s", ErrInvalidEntity, e.Kind, e.ID, fmt.Sprintf(format, args...))
}

// Validate checks the variant shape of e and of all its descendants.
func (e Entity) Validate() error {
	if e.ID == NoID {
		return invalid(e, "missing id")
	}
	if e.ClassID == "" {
		return invalid(e, "missing class id")
	}

	switch e.Kind {
	case KindWorld, KindPlacedWorld, KindGlobalRoot:
		if e.Transform == nil {
			return invalid(e, "missing transform")
		}
		if e.Pipe != nil || e.Slot != "" {
			return invalid(e, "unexpected variant fields")
		}
	case KindOxygenPipe:
		if e.Transform == nil {
			return invalid(e, "missing transform")
		}
		if e.Pipe == nil || e.Pipe.RootPipeID == NoID || e.Pipe.ParentPipeID == NoID {
			return invalid(e, "missing pipe chain references")
		}
	case KindInventoryItem:
		if e.Transform != nil {
			return invalid(e, "inventory items have no transform")
		}
		if !e.HasParent() {
			return invalid(e, "inventory items need a container")
		}
	case KindPrefabChild:
		if e.Transform != nil || len(e.Children) > 0 {
			return invalid(e, "prefab children carry neither transform nor children")
		}
		if !e.HasParent() {
			return invalid(e, "prefab children need a parent")
		}
		if e.ComponentIndex < 0 {
			return invalid(e, "negative component index")
		}
	case KindInstalledModule:
		if e.Slot == "" {
			return invalid(e, "missing slot")
		}
		if !e.HasParent() {
			return invalid(e, "installed modules need an equipment parent")
		}
	default:
		return invalid(e, "unknown kind")
	}

	if e.Transform != nil && e.Transform.Space == SpaceLocal && !e.HasParent() {
		return invalid(e, "local transform without parent")
	}

	next := map[string]int{}
	for _, c := range e.Children {
		if c.ParentID != e.ID {
			return invalid(e, "child %s points at parent %s", c.ID, c.ParentID)
		}
		if c.Kind == KindPrefabChild {
			if c.ComponentIndex != next[c.ClassID] {
				return invalid(e, "child %s of class %s has index %d, want %d", c.ID, c.ClassID, c.ComponentIndex, next[c.ClassID])
			}
			next[c.ClassID]++
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTree checks that every parent reference in the tree resolves,
// either to an id inside the tree or to one known reports as existing.
// The same id may not appear twice.
func ValidateTree(root Entity, known func(ID) bool) error {
	if err := root.Validate(); err != nil {
		return err
	}
	inTree := map[ID]bool{}
	var dup error
	Walk(root, func(n Entity) bool {
		if inTree[n.ID] && dup == nil {
			dup = invalid(n, "duplicate id in tree")
		}
		inTree[n.ID] = true
		return true
	})
	if dup != nil {
		return dup
	}
	var err error
	Walk(root, func(n Entity) bool {
		if err != nil || !n.HasParent() {
			return err == nil
		}
		if inTree[n.ParentID] {
			return true
		}
		if known == nil || !known(n.ParentID) {
			err = invalid(n, "dangling parent %s", n.ParentID)
		}
		return err == nil
	})
	return err
}
