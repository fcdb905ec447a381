// Package snapshot converts live engine objects into entity records.
//
// Snapshots are deterministic: the same object graph always produces the same
// records, children included, so unchanged state replays byte for byte.
package snapshot

import (
	"errors"
	"fmt"

	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/identity"
	"worldsync/internal/metadata"
)

var (
	// ErrMissingStructuralReference means a linked structure's parent or
	// chain root has no id; the structure cannot be rebuilt remotely.
	ErrMissingStructuralReference = errors.New("missing structural reference")
	// ErrNotIdentifiable means the object has no class tag.
	ErrNotIdentifiable = errors.New("object has no class id")
	ErrNotPickupable   = errors.New("object is not pickupable")
)

type Builder struct {
	ids  *identity.Registry
	meta *metadata.Registry
}

func NewBuilder(ids *identity.Registry, meta *metadata.Registry) *Builder {
	return &Builder{ids: ids, meta: meta}
}

// PrefabChildren records the notable descendants of obj: objects with a
// class tag and extractable metadata (a battery inside a flashlight).
// Children are grouped by class in first-seen order and indexed per group.
func (b *Builder) PrefabChildren(obj host.Object, parentID entity.ID) []entity.Entity {
	type group struct {
		classID string
		objs    []host.Object
	}
	var groups []*group
	byClass := map[string]*group{}
	for _, d := range host.Descendants(obj) {
		cid := d.ClassID()
		if cid == "" {
			continue
		}
		g, ok := byClass[cid]
		if !ok {
			g = &group{classID: cid}
			byClass[cid] = g
			groups = append(groups, g)
		}
		g.objs = append(g.objs, d)
	}

	out := []entity.Entity{}
	for _, g := range groups {
		index := 0
		for _, d := range g.objs {
			// The id is created before extraction even when the child ends
			// up skipped; extractors may depend on it.
			id := b.ids.GetOrCreate(d)
			md, ok := b.meta.Extract(d)
			if !ok {
				continue
			}
			out = append(out, entity.NewPrefabChild(id, g.classID, techOf(d), index, md, parentID))
			index++
		}
	}
	return out
}

// Build snapshots obj as a positioned entity of the given kind.
func (b *Builder) Build(obj host.Object, kind entity.Kind, space entity.Space, parentID entity.ID, tech entity.TechType) (entity.Entity, error) {
	classID := obj.ClassID()
	if classID == "" {
		return entity.Entity{}, fmt.Errorf("%w: %s", ErrNotIdentifiable, obj.Name())
	}
	id := b.ids.GetOrCreate(obj)
	md, _ := b.meta.Extract(obj)
	children := b.PrefabChildren(obj, id)
	t := transformIn(obj, space)
	spawnedByServer := kind != entity.KindWorld && kind != entity.KindOxygenPipe

	switch kind {
	case entity.KindWorld:
		return entity.NewWorld(t, 0, classID, spawnedByServer, id, tech, md, parentID, children), nil
	case entity.KindPlacedWorld:
		return entity.NewPlacedWorld(t, 0, classID, spawnedByServer, id, tech, md, parentID, children), nil
	case entity.KindGlobalRoot:
		return entity.NewGlobalRoot(t, 0, classID, spawnedByServer, id, tech, md, parentID, children), nil
	}
	return entity.Entity{}, fmt.Errorf("snapshot: %s is not a positioned kind", kind)
}

// InventoryItem snapshots a pickupable held by containerID.
func (b *Builder) InventoryItem(obj host.Object, containerID entity.ID) (entity.Entity, error) {
	classID := obj.ClassID()
	if classID == "" {
		return entity.Entity{}, fmt.Errorf("%w: %s", ErrNotIdentifiable, obj.Name())
	}
	if _, ok := obj.(host.Pickupable); !ok {
		return entity.Entity{}, fmt.Errorf("%w: %s", ErrNotPickupable, obj.Name())
	}
	id := b.ids.GetOrCreate(obj)
	md, _ := b.meta.Extract(obj)
	children := b.PrefabChildren(obj, id)
	children = b.withInstalledBattery(obj, id, children)
	return entity.NewInventoryItem(id, classID, techOf(obj), md, containerID, children), nil
}

// withInstalledBattery makes sure a battery-powered item carries its battery
// as a child even if the battery was not found by the descendant walk.
func (b *Builder) withInstalledBattery(obj host.Object, id entity.ID, children []entity.Entity) []entity.Entity {
	holder, ok := obj.(host.BatteryHolder)
	if !ok {
		return children
	}
	battery := holder.InstalledBattery()
	if !host.IsAlive(battery) || battery.ClassID() == "" {
		return children
	}
	batteryID := b.ids.GetOrCreate(battery)
	for _, c := range children {
		if c.ID == batteryID {
			return children
		}
	}
	md, ok := b.meta.Extract(battery)
	if !ok {
		return children
	}
	index := 0
	for _, c := range children {
		if c.Kind == entity.KindPrefabChild && c.ClassID == battery.ClassID() {
			index++
		}
	}
	return append(children, entity.NewPrefabChild(batteryID, battery.ClassID(), techOf(battery), index, md, id))
}

// EquipmentModules snapshots every occupied slot of equipment, in slot order.
func (b *Builder) EquipmentModules(eq host.Equipment, equipmentID entity.ID) ([]entity.Entity, error) {
	out := []entity.Entity{}
	for _, slot := range eq.Slots() {
		if slot.Item == nil || !slot.Item.Alive() {
			continue
		}
		item := slot.Item
		classID := item.ClassID()
		if classID == "" {
			return nil, fmt.Errorf("%w: module in slot %s", ErrNotIdentifiable, slot.Name)
		}
		id := b.ids.GetOrCreate(item)
		md, _ := b.meta.Extract(item)
		children := b.PrefabChildren(item, id)
		out = append(out, entity.NewInstalledModule(slot.Name, classID, id, techOf(item), md, equipmentID, children))
	}
	return out, nil
}

func techOf(obj host.Object) entity.TechType {
	if t := obj.TechType(); t != "" {
		return t
	}
	return entity.TechTypeNone
}

func transformIn(obj host.Object, space entity.Space) entity.Transform {
	if space == entity.SpaceLocal {
		return obj.LocalTransform()
	}
	return obj.WorldTransform()
}
