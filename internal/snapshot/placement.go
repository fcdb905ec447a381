package snapshot

import (
	"fmt"

	"worldsync/internal/entity"
	"worldsync/internal/host"
)

// Dropped snapshots an object released into the world. In priority order:
//
//   - a global object becomes a GlobalRoot entity;
//   - a pickupable dropped into an enclosure with an id becomes a GlobalRoot
//     parented to the enclosure, relative to it;
//   - a pipe segment becomes an OxygenPipe entity tied to its chain;
//   - anything else is a World entity owned by its spatial cell.
func (b *Builder) Dropped(obj host.Object, tech entity.TechType) (entity.Entity, error) {
	if IsGlobal(obj) {
		return b.Build(obj, entity.KindGlobalRoot, entity.SpaceWorld, entity.NoID, tech)
	}
	if _, ok := obj.(host.Pickupable); ok {
		if parentID, ok := b.enclosureID(obj.Parent()); ok {
			return b.Build(obj, entity.KindGlobalRoot, entity.SpaceLocal, parentID, tech)
		}
	}
	if pipe, ok := obj.(host.PipeSegment); ok {
		return b.pipe(pipe, tech)
	}
	return b.Build(obj, entity.KindWorld, entity.SpaceWorld, entity.NoID, tech)
}

// Placed snapshots an object put down with a placement tool (figures,
// posters, lights). Objects inside the player's current structure follow it;
// the rest are remembered as placed world entities.
func (b *Builder) Placed(obj host.Object, tech entity.TechType, player host.Player) (entity.Entity, error) {
	if !host.IsAlive(obj) {
		return entity.Entity{}, fmt.Errorf("placed object %s is gone", nameOf(obj))
	}
	if IsGlobal(obj) {
		return b.Build(obj, entity.KindGlobalRoot, entity.SpaceWorld, entity.NoID, tech)
	}
	if host.IsAlive(player) {
		if sub := player.CurrentContainer(); host.IsAlive(sub) {
			if parentID, ok := b.ids.Lookup(sub); ok {
				return b.Build(obj, entity.KindGlobalRoot, entity.SpaceLocal, parentID, tech)
			}
		}
	}
	return b.Build(obj, entity.KindPlacedWorld, entity.SpaceWorld, entity.NoID, tech)
}

func (b *Builder) pipe(pipe host.PipeSegment, tech entity.TechType) (entity.Entity, error) {
	parent := pipe.GhostParent()
	if parent == nil || !host.IsAlive(parent.Object()) {
		return entity.Entity{}, fmt.Errorf("%w: pipe %s has no parent pipe", ErrMissingStructuralReference, pipe.Name())
	}
	parentID, ok := b.ids.Lookup(parent.Object())
	if !ok {
		return entity.Entity{}, fmt.Errorf("%w: parent pipe of %s has no id", ErrMissingStructuralReference, pipe.Name())
	}
	root := parent.Root()
	if root == nil || !host.IsAlive(root.Object()) {
		return entity.Entity{}, fmt.Errorf("%w: pipe %s has no root pipe", ErrMissingStructuralReference, pipe.Name())
	}
	rootID, ok := b.ids.Lookup(root.Object())
	if !ok {
		return entity.Entity{}, fmt.Errorf("%w: root pipe of %s has no id", ErrMissingStructuralReference, pipe.Name())
	}

	classID := pipe.ClassID()
	if classID == "" {
		return entity.Entity{}, fmt.Errorf("%w: %s", ErrNotIdentifiable, pipe.Name())
	}

	// Point the local segment at the replicated ids so later snapshots and
	// remote peers agree on the chain.
	pipe.SetChainIDs(rootID, parentID)

	id := b.ids.GetOrCreate(pipe)
	md, _ := b.meta.Extract(pipe)
	children := b.PrefabChildren(pipe, id)
	refs := entity.PipeRefs{RootPipeID: rootID, ParentPipeID: parentID, AttachPoint: parent.AttachPoint()}
	return entity.NewOxygenPipe(pipe.WorldTransform(), 0, classID, false, id, tech, md, entity.NoID, children, refs), nil
}

// IsGlobal reports whether obj is relevant regardless of loaded cells.
func IsGlobal(obj host.Object) bool {
	return obj != nil && obj.CellLevel() == host.CellGlobal
}

// EnclosureOf finds the enclosure a dropped item sits in. Items dropped into
// an enclosure live under <enclosure>/items_root/, so the enclosure is two
// levels above the item.
func EnclosureOf(parent host.Object) (host.Enclosure, bool) {
	if parent == nil {
		return nil, false
	}
	gp := parent.Parent()
	if gp == nil {
		return nil, false
	}
	e, ok := gp.(host.Enclosure)
	return e, ok
}

func (b *Builder) enclosureID(parent host.Object) (entity.ID, bool) {
	e, ok := EnclosureOf(parent)
	if !ok {
		return entity.NoID, false
	}
	return b.ids.Lookup(e)
}

func nameOf(obj host.Object) string {
	if obj == nil {
		return "<nil>"
	}
	return obj.Name()
}
