package snapshot

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/host/scene"
	"worldsync/internal/identity"
	"worldsync/internal/metadata"
)

func newBuilder() (*scene.Scene, *identity.Registry, *Builder) {
	s := scene.New()
	ids := identity.NewRegistry()
	return s, ids, NewBuilder(ids, metadata.Defaults())
}

// flashlight with two batteries and a plant, plus an untagged mount node.
func gadget(s *scene.Scene) *scene.Tool {
	tool := s.NewTool("flashlight", "class-flashlight", "FLASHLIGHT")
	mount := s.NewNode("mount", "", entity.TechTypeNone)
	s.Attach(tool, mount)
	s.Attach(mount, s.NewBattery("battery_a", "class-battery", "BATTERY", 10, 100))
	s.Attach(tool, s.NewPlant("moss", "class-moss", "MOSS", 0.3))
	s.Attach(tool, s.NewBattery("battery_b", "class-battery", "BATTERY", 20, 100))
	s.Attach(tool, s.NewNode("lens", "class-lens", "LENS"))
	return tool
}

func TestPrefabChildrenGroupedAndIndexed(t *testing.T) {
	s, ids, b := newBuilder()
	tool := gadget(s)
	parentID := ids.GetOrCreate(tool)

	children := b.PrefabChildren(tool, parentID)
	if len(children) != 3 {
		t.Fatalf("expected 3 notable children, got %d: %v", len(children), children)
	}
	want := []struct {
		class string
		index int
	}{
		{"class-battery", 0},
		{"class-battery", 1},
		{"class-moss", 0},
	}
	for i, w := range want {
		c := children[i]
		if c.Kind != entity.KindPrefabChild || c.ClassID != w.class || c.ComponentIndex != w.index {
			t.Fatalf("child %d: got %s", i, c)
		}
		if c.ParentID != parentID {
			t.Fatalf("child %d: parent %s, want %s", i, c.ParentID, parentID)
		}
	}

	// The lens has no metadata and is skipped, but it still got an id.
	if _, ok := ids.Lookup(tool.Child("lens")); !ok {
		t.Fatalf("expected skipped child to be assigned an id")
	}
	for _, c := range children {
		if c.ID == parentID {
			t.Fatalf("root object must not be its own child")
		}
	}
}

func TestSnapshotIsIdempotent(t *testing.T) {
	s, ids, b := newBuilder()
	tool := gadget(s)

	first, err := b.InventoryItem(tool, ids.GetOrCreate(s.LocalPlayer()))
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	second, err := b.InventoryItem(tool, ids.GetOrCreate(s.LocalPlayer()))
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshots differ:\n%s\n%s", first, second)
	}
	a, _ := json.Marshal(first)
	c, _ := json.Marshal(second)
	if string(a) != string(c) {
		t.Fatalf("encoded snapshots differ:\n%s\n%s", a, c)
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestChildOrderSurvivesRebuild(t *testing.T) {
	s, ids, b := newBuilder()
	tool := gadget(s)
	id := ids.GetOrCreate(tool)

	before := b.PrefabChildren(tool, id)
	// A fresh builder over the same registry restarts the traversal.
	again := NewBuilder(ids, metadata.Defaults()).PrefabChildren(tool, id)
	if !reflect.DeepEqual(before, again) {
		t.Fatalf("child order changed across builders")
	}
}

func TestInventoryItemAddsInstalledBattery(t *testing.T) {
	s, ids, b := newBuilder()
	tool := s.NewTool("scanner", "class-scanner", "SCANNER")
	s.Attach(tool, s.NewBattery("battery", "class-battery", "BATTERY", 50, 100))

	e, err := b.InventoryItem(tool, ids.GetOrCreate(s.LocalPlayer()))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(e.Children) != 1 || e.Children[0].ClassID != "class-battery" {
		t.Fatalf("expected one battery child, got %v", e.Children)
	}
	if e.Kind != entity.KindInventoryItem || e.Transform != nil {
		t.Fatalf("unexpected inventory record: %s", e)
	}
}

func TestInventoryItemRejectsNonPickupable(t *testing.T) {
	s, ids, b := newBuilder()
	rock := s.NewNode("rock", "class-rock", "ROCK")
	if _, err := b.InventoryItem(rock, ids.GetOrCreate(s.LocalPlayer())); !errors.Is(err, ErrNotPickupable) {
		t.Fatalf("expected ErrNotPickupable, got %v", err)
	}
	untagged := s.NewItem("thing", "", "THING")
	if _, err := b.InventoryItem(untagged, ids.GetOrCreate(s.LocalPlayer())); !errors.Is(err, ErrNotIdentifiable) {
		t.Fatalf("expected ErrNotIdentifiable, got %v", err)
	}
}

func TestDroppedGlobalInOpenSpace(t *testing.T) {
	s, _, b := newBuilder()
	figure := s.NewItem("figure", "class-figure", "FIGURE")
	figure.SetCellLevel(host.CellGlobal)
	figure.SetPosition(entity.Vec3{4, 5, 6})

	e, err := b.Dropped(figure, "FIGURE")
	if err != nil {
		t.Fatalf("dropped: %v", err)
	}
	if e.Kind != entity.KindGlobalRoot {
		t.Fatalf("expected global root, got %s", e)
	}
	if e.Transform.Space != entity.SpaceWorld || e.Transform.Position != (entity.Vec3{4, 5, 6}) {
		t.Fatalf("expected world transform, got %+v", e.Transform)
	}
	if e.HasParent() {
		t.Fatalf("expected no parent, got %s", e.ParentID)
	}
}

func TestDroppedIntoWaterPark(t *testing.T) {
	s, ids, b := newBuilder()
	park := s.NewWaterPark("park", "class-waterpark", "WATER_PARK")
	park.SetPosition(entity.Vec3{100, 0, 0})
	parkID := ids.GetOrCreate(park)

	fish := s.NewCreature("fish", "class-fish", "FISH", 2)
	s.Attach(park.ItemsRoot(), fish)
	fish.SetPosition(entity.Vec3{1, 2, 3})

	e, err := b.Dropped(fish, "FISH")
	if err != nil {
		t.Fatalf("dropped: %v", err)
	}
	if e.Kind != entity.KindGlobalRoot || e.ParentID != parkID {
		t.Fatalf("expected global root under park, got %s", e)
	}
	if e.Transform.Space != entity.SpaceLocal || e.Transform.Position != (entity.Vec3{1, 2, 3}) {
		t.Fatalf("expected local transform, got %+v", e.Transform)
	}
	if err := entity.ValidateTree(e, func(id entity.ID) bool { return id == parkID }); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDroppedIntoUnknownWaterParkFallsBack(t *testing.T) {
	s, _, b := newBuilder()
	park := s.NewWaterPark("park", "class-waterpark", "WATER_PARK")
	fish := s.NewCreature("fish", "class-fish", "FISH", 2)
	s.Attach(park.ItemsRoot(), fish)

	e, err := b.Dropped(fish, "FISH")
	if err != nil {
		t.Fatalf("dropped: %v", err)
	}
	if e.Kind != entity.KindWorld || e.HasParent() {
		t.Fatalf("expected plain world entity, got %s", e)
	}
}

func TestDroppedPipe(t *testing.T) {
	s, ids, b := newBuilder()
	root := s.NewPipe("root", "class-pipe", "PIPE")
	mid := s.NewPipe("mid", "class-pipe", "PIPE")
	mid.ConnectTo(root)
	placed := s.NewPipe("new", "class-pipe", "PIPE")
	placed.SetGhostParent(mid)

	if _, err := b.Dropped(placed, "PIPE"); !errors.Is(err, ErrMissingStructuralReference) {
		t.Fatalf("expected missing reference without ids, got %v", err)
	}
	if placed.RootUID != "" {
		t.Fatalf("failed snapshot must not touch the pipe")
	}
	if _, ok := ids.Lookup(placed); ok {
		t.Fatalf("failed snapshot must not assign an id")
	}

	midID := ids.GetOrCreate(mid)
	if _, err := b.Dropped(placed, "PIPE"); !errors.Is(err, ErrMissingStructuralReference) {
		t.Fatalf("expected missing root reference, got %v", err)
	}

	rootID := ids.GetOrCreate(root)
	e, err := b.Dropped(placed, "PIPE")
	if err != nil {
		t.Fatalf("dropped: %v", err)
	}
	if e.Kind != entity.KindOxygenPipe || e.Pipe.RootPipeID != rootID || e.Pipe.ParentPipeID != midID {
		t.Fatalf("unexpected pipe entity: %s %+v", e, e.Pipe)
	}
	if placed.RootUID != rootID.String() || placed.ParentUID != midID.String() {
		t.Fatalf("pipe chain references not rewritten")
	}
}

func TestPlacedInsideStructure(t *testing.T) {
	s, ids, b := newBuilder()
	base := s.NewStructure("base", "class-base", "BASE", 100)
	baseID := ids.GetOrCreate(base)
	s.LocalPlayer().Enter(base)

	poster := s.NewSign("poster", "class-poster", "POSTER", "hi")
	s.Attach(base, poster)

	e, err := b.Placed(poster, "POSTER", s.Player())
	if err != nil {
		t.Fatalf("placed: %v", err)
	}
	if e.Kind != entity.KindGlobalRoot || e.ParentID != baseID || e.Transform.Space != entity.SpaceLocal {
		t.Fatalf("expected local global root under base, got %s", e)
	}
	if e.Metadata == nil || e.Metadata.Type != metadata.TypeSign {
		t.Fatalf("expected sign metadata, got %+v", e.Metadata)
	}
}

func TestPlacedInOpenWater(t *testing.T) {
	s, _, b := newBuilder()
	light := s.NewNode("light", "class-light", "LED_LIGHT")
	e, err := b.Placed(light, "LED_LIGHT", s.Player())
	if err != nil {
		t.Fatalf("placed: %v", err)
	}
	if e.Kind != entity.KindPlacedWorld || e.HasParent() || e.Transform.Space != entity.SpaceWorld {
		t.Fatalf("expected placed world entity, got %s", e)
	}
	if !e.SpawnedByServer {
		t.Fatalf("placed entities are tracked as spawned")
	}
}

func TestEquipmentModules(t *testing.T) {
	s, ids, b := newBuilder()
	eq := s.NewEquipment("modules", "class-modules", "slot1", "slot2", "slot3")
	eqID := ids.GetOrCreate(eq)
	eq.Equip("slot3", s.NewItem("armor", "class-armor", "ARMOR"))
	eq.Equip("slot1", s.NewBattery("cell", "class-cell", "POWER_CELL", 5, 200))

	mods, err := b.EquipmentModules(eq, eqID)
	if err != nil {
		t.Fatalf("modules: %v", err)
	}
	if len(mods) != 2 || mods[0].Slot != "slot1" || mods[1].Slot != "slot3" {
		t.Fatalf("unexpected modules: %v", mods)
	}
	for _, m := range mods {
		if err := m.Validate(); err != nil {
			t.Fatalf("validate %s: %v", m, err)
		}
	}
}
