package items_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"worldsync/internal/entities"
	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/host/scene"
	"worldsync/internal/identity"
	"worldsync/internal/items"
	"worldsync/internal/metadata"
	"worldsync/internal/protocol"
	"worldsync/internal/snapshot"
	"worldsync/internal/synctest"
)

func spawned(t *testing.T, p protocol.Packet) *protocol.EntitySpawnedByClient {
	t.Helper()
	m, ok := p.(*protocol.EntitySpawnedByClient)
	if !ok {
		t.Fatalf("expected ENTITY_SPAWNED_BY_CLIENT, got %T", p)
	}
	if !m.IsAdditive {
		t.Fatalf("drops and placements are additive")
	}
	return m
}

func TestPickupByPlayer(t *testing.T) {
	h := synctest.New(t)
	knife := h.Scene.NewItem("knife", "class-knife", "KNIFE")
	knife.MarkRemoteControlled()

	h.Scene.Pickup(h.Ctx(), knife, nil)

	if h.Sent.Len() != 1 {
		t.Fatalf("expected one packet, got %d", h.Sent.Len())
	}
	msg, ok := h.Sent.Last().(*protocol.PickupItem)
	if !ok {
		t.Fatalf("expected PICKUP_ITEM, got %T", h.Sent.Last())
	}
	e := msg.Entity
	if e.Kind != entity.KindInventoryItem || e.ParentID != h.RT.PlayerID() || e.Transform != nil {
		t.Fatalf("unexpected inventory record %s", e)
	}
	if id, _ := h.RT.IDs.Lookup(knife); id != e.ID {
		t.Fatalf("record id does not match the object's")
	}
	if knife.RemoteControlled() {
		t.Fatalf("pickup must take the item over from remote control")
	}
	if h.RT.Entities.Origin(e.ID) != entities.OriginLocal {
		t.Fatalf("expected item marked as spawned locally")
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("invalid record: %v", err)
	}
}

func TestPickupIntoContainer(t *testing.T) {
	h := synctest.New(t)
	locker := h.Scene.NewLocker("locker", "class-locker", "LOCKER")
	lockerID := h.Bind(locker)
	battery := h.Scene.NewBattery("battery", "class-battery", "BATTERY", 40, 100)

	h.Scene.Pickup(h.Ctx(), battery, locker)

	e := h.Sent.Last().(*protocol.PickupItem).Entity
	if e.ParentID != lockerID {
		t.Fatalf("expected parent %s, got %s", lockerID, e.ParentID)
	}
	md, err := metadata.Decode[metadata.BatteryMetadata](e.Metadata, metadata.TypeBattery)
	if err != nil || md.Charge != 40 {
		t.Fatalf("expected battery metadata, got %+v %v", md, err)
	}
}

func TestPickupIntoUnknownContainerSendsNothing(t *testing.T) {
	h := synctest.New(t)
	locker := h.Scene.NewLocker("locker", "class-locker", "LOCKER")
	knife := h.Scene.NewItem("knife", "class-knife", "KNIFE")

	h.Scene.Pickup(h.Ctx(), knife, locker)

	if h.Sent.Len() != 0 {
		t.Fatalf("expected nothing sent for an unknown container")
	}
	if !strings.Contains(h.Logs.String(), items.ErrNoContainer.Error()) {
		t.Fatalf("expected the failure logged, logs: %s", h.Logs.String())
	}
}

type reporter struct {
	it   *items.Items
	rec  *synctest.Recorder
	logs *bytes.Buffer
	s    *scene.Scene
	ids  *identity.Registry
}

func newReporter() *reporter {
	s := scene.New()
	ids := identity.NewRegistry()
	rec := &synctest.Recorder{}
	logs := &bytes.Buffer{}
	it := items.New(rec, s, ids, entities.NewRegistry(), snapshot.NewBuilder(ids, metadata.Defaults()), log.New(logs, "", 0))
	return &reporter{it: it, rec: rec, logs: logs, s: s, ids: ids}
}

func TestPickupWithoutPlayerIDLogsOnce(t *testing.T) {
	r := newReporter()
	knife := r.s.NewItem("knife", "class-knife", "KNIFE")
	for i := 0; i < 3; i++ {
		if err := r.it.PickedUpByPlayer(context.Background(), knife, "KNIFE"); !errors.Is(err, items.ErrNoPlayerID) {
			t.Fatalf("expected ErrNoPlayerID, got %v", err)
		}
	}
	if n := strings.Count(r.logs.String(), "player has no id"); n != 1 {
		t.Fatalf("expected the error logged once, got %d", n)
	}
	if r.rec.Len() != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestPickingUpMarkerIsScopedToTheCall(t *testing.T) {
	r := newReporter()
	knife := r.s.NewItem("knife", "class-knife", "KNIFE")
	var seen host.Object
	r.rec.OnSend = func(ctx context.Context, p protocol.Packet) {
		seen, _ = items.PickingUp(ctx)
	}
	ctx := context.Background()
	if err := r.it.PickedUp(ctx, knife, "KNIFE", entity.NewID()); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if seen != host.Object(knife) {
		t.Fatalf("expected the marker visible while sending, got %v", seen)
	}
	if _, ok := items.PickingUp(ctx); ok {
		t.Fatalf("marker leaked into the caller's context")
	}
}

func TestPickupRecoversPanic(t *testing.T) {
	r := newReporter()
	knife := r.s.NewItem("knife", "class-knife", "KNIFE")
	r.rec.OnSend = func(ctx context.Context, p protocol.Packet) { panic("transport exploded") }

	err := r.it.PickedUp(context.Background(), knife, "KNIFE", entity.NewID())
	if !errors.Is(err, items.ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}

	r.rec.OnSend = nil
	if err := r.it.PickedUp(context.Background(), knife, "KNIFE", entity.NewID()); err != nil {
		t.Fatalf("a failed pickup must not poison the next one: %v", err)
	}
	if r.rec.Len() != 1 {
		t.Fatalf("expected the second pickup sent")
	}
}

func TestPickupWarnsOnTechMismatch(t *testing.T) {
	r := newReporter()
	knife := r.s.NewItem("knife", "class-knife", "KNIFE")
	if err := r.it.PickedUp(context.Background(), knife, "HEATBLADE", entity.NewID()); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if !strings.Contains(r.logs.String(), "differs") {
		t.Fatalf("expected a tech type warning, logs: %s", r.logs.String())
	}
	if r.rec.Len() != 1 {
		t.Fatalf("a mismatch is only a warning")
	}
}

func TestPickupNonPickupableFails(t *testing.T) {
	r := newReporter()
	rock := r.s.NewNode("rock", "class-rock", "ROCK")
	err := r.it.PickedUp(context.Background(), rock, "ROCK", entity.NewID())
	if !errors.Is(err, snapshot.ErrNotPickupable) {
		t.Fatalf("expected ErrNotPickupable, got %v", err)
	}
	if r.rec.Len() != 0 {
		t.Fatalf("expected nothing sent")
	}
}

type watcher struct{ stopped []entity.ID }

func (w *watcher) StopWatching(id entity.ID) { w.stopped = append(w.stopped, id) }

func TestPickupStopsPositionBroadcast(t *testing.T) {
	r := newReporter()
	w := &watcher{}
	r.it.SetPositionWatcher(w)
	knife := r.s.NewItem("knife", "class-knife", "KNIFE")
	if err := r.it.PickedUp(context.Background(), knife, "KNIFE", entity.NewID()); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	id, _ := r.ids.Lookup(knife)
	if len(w.stopped) != 1 || w.stopped[0] != id {
		t.Fatalf("expected watcher stopped for %s, got %v", id, w.stopped)
	}
}

func TestRefusedSendIsNotAnError(t *testing.T) {
	r := newReporter()
	r.rec.Refuse = true
	knife := r.s.NewItem("knife", "class-knife", "KNIFE")
	if err := r.it.PickedUp(context.Background(), knife, "KNIFE", entity.NewID()); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if strings.Contains(r.logs.String(), "picked up item") {
		t.Fatalf("only accepted packets are logged as sent")
	}
}

func TestDropGlobalInOpenSpace(t *testing.T) {
	h := synctest.New(t)
	figure := h.Scene.NewItem("figure", "class-figure", "FIGURE")
	figure.SetCellLevel(host.CellGlobal)
	figure.MarkRemoteControlled()

	h.Scene.Drop(h.Ctx(), figure, entity.Vec3{5, -2, 9}, nil)

	e := spawned(t, h.Sent.Last()).Entity
	if e.Kind != entity.KindGlobalRoot || e.HasParent() {
		t.Fatalf("expected parentless global root, got %s", e)
	}
	if e.Transform.Space != entity.SpaceWorld || e.Transform.Position != (entity.Vec3{5, -2, 9}) {
		t.Fatalf("expected world transform at the drop point, got %+v", e.Transform)
	}
	if figure.RemoteControlled() {
		t.Fatalf("drop must take the object over from remote control")
	}
}

func TestDropIntoWaterPark(t *testing.T) {
	h := synctest.New(t)
	park := h.Scene.NewWaterPark("park", "class-waterpark", "WATERPARK")
	park.SetPosition(entity.Vec3{100, 0, 100})
	parkID := h.Bind(park)
	fish := h.Scene.NewCreature("peeper", "class-peeper", "PEEPER", 2)

	h.Scene.Drop(h.Ctx(), fish, entity.Vec3{1, 0.5, -1}, park)

	e := spawned(t, h.Sent.Last()).Entity
	if e.Kind != entity.KindGlobalRoot || e.ParentID != parkID {
		t.Fatalf("expected global root under the park, got %s", e)
	}
	if e.Transform.Space != entity.SpaceLocal || e.Transform.Position != (entity.Vec3{1, 0.5, -1}) {
		t.Fatalf("expected transform relative to the park, got %+v", e.Transform)
	}
	if fish.ManagedUpdates() != 1 {
		t.Fatalf("expected one managed update before extraction, got %d", fish.ManagedUpdates())
	}
	md, err := metadata.Decode[metadata.CreatureMetadata](e.Metadata, metadata.TypeCreature)
	if err != nil || !md.Mature || md.NextBreedTime == 0 {
		t.Fatalf("expected refreshed creature metadata, got %+v %v", md, err)
	}
}

func TestDropPipeFailsClosed(t *testing.T) {
	h := synctest.New(t)
	root := h.Scene.NewPipe("root", "class-pipe", "PIPE")
	mid := h.Scene.NewPipe("mid", "class-pipe", "PIPE")
	mid.ConnectTo(root)
	seg := h.Scene.NewPipe("seg", "class-pipe", "PIPE")
	seg.SetGhostParent(mid)
	h.Bind(mid)

	h.Scene.Drop(h.Ctx(), seg, entity.Vec3{0, 0, 1}, nil)

	if h.Sent.Len() != 0 {
		t.Fatalf("expected nothing sent with an unresolved chain root")
	}
	if seg.RootUID != "" || seg.ParentUID != "" {
		t.Fatalf("a failed drop must not touch the pipe")
	}
	if !strings.Contains(h.Logs.String(), snapshot.ErrMissingStructuralReference.Error()) {
		t.Fatalf("expected the failure logged, logs: %s", h.Logs.String())
	}

	rootID := h.Bind(root)
	h.Scene.Drop(h.Ctx(), seg, entity.Vec3{0, 0, 1}, nil)
	e := spawned(t, h.Sent.Last()).Entity
	if e.Kind != entity.KindOxygenPipe || e.Pipe.RootPipeID != rootID {
		t.Fatalf("expected pipe tied to its chain, got %s", e)
	}
}

func TestPlaceInsideStructure(t *testing.T) {
	h := synctest.New(t)
	base := h.Scene.NewStructure("base", "class-base", "BASE", 100)
	baseID := h.Bind(base)
	h.Scene.LocalPlayer().Enter(base)
	poster := h.Scene.NewSign("poster", "class-poster", "POSTER", "welcome")

	h.Scene.Place(h.Ctx(), poster, entity.Vec3{0, 2, 0}, base)

	e := spawned(t, h.Sent.Last()).Entity
	if e.Kind != entity.KindGlobalRoot || e.ParentID != baseID || e.Transform.Space != entity.SpaceLocal {
		t.Fatalf("expected local global root in the base, got %s", e)
	}
}

func TestPlaceInOpenWater(t *testing.T) {
	h := synctest.New(t)
	light := h.Scene.NewNode("light", "class-led", "LED")

	h.Scene.Place(h.Ctx(), light, entity.Vec3{3, -20, 3}, nil)

	e := spawned(t, h.Sent.Last()).Entity
	if e.Kind != entity.KindPlacedWorld || e.HasParent() || e.Transform.Space != entity.SpaceWorld {
		t.Fatalf("expected placed world entity, got %s", e)
	}
	if !e.SpawnedByServer {
		t.Fatalf("placed objects are flagged spawned by server")
	}
}

func TestPlanted(t *testing.T) {
	h := synctest.New(t)
	planter := h.Scene.NewNode("planter", "class-planter", "PLANTER")
	planterID := h.Bind(planter)
	seed := h.Scene.NewPlant("seed", "class-seed", "SEED", 0.3)

	h.Scene.Plant(h.Ctx(), seed, planter)

	e := spawned(t, h.Sent.Last()).Entity
	if e.Kind != entity.KindInventoryItem || e.ParentID != planterID {
		t.Fatalf("expected inventory item in the planter, got %s", e)
	}
}

func TestPlantedIntoUnknownPlanterSendsNothing(t *testing.T) {
	h := synctest.New(t)
	planter := h.Scene.NewNode("planter", "class-planter", "PLANTER")
	seed := h.Scene.NewPlant("seed", "class-seed", "SEED", 0.3)
	h.Scene.Plant(h.Ctx(), seed, planter)
	if h.Sent.Len() != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestClawUse(t *testing.T) {
	h := synctest.New(t)
	suit := h.Scene.NewVehicle("exosuit", "class-exosuit", "EXOSUIT", "")
	arm := h.Scene.NewClawArm(suit, host.ArmLeft)

	h.Scene.UseClaw(h.Ctx(), arm, 2)
	if h.Sent.Len() != 0 {
		t.Fatalf("an exosuit without id cannot be reported")
	}

	id := h.Bind(suit)
	h.Scene.UseClaw(h.Ctx(), arm, 2)
	msg, ok := h.Sent.Last().(*protocol.ExosuitArmAction)
	if !ok || msg.ExosuitID != id || msg.Arm != "LEFT" || msg.Action != protocol.ArmActionClawUse || msg.Cooldown != 2 {
		t.Fatalf("unexpected arm action %+v", h.Sent.Last())
	}
}

func TestDestroyedUnknownObjectIsSilent(t *testing.T) {
	r := newReporter()
	rock := r.s.NewNode("rock", "class-rock", "ROCK")
	if err := r.it.Destroyed(context.Background(), rock); err != nil {
		t.Fatalf("destroyed: %v", err)
	}
	if r.rec.Len() != 0 {
		t.Fatalf("never replicated, nothing to report")
	}
}

type explodingExtractor struct{}

func (explodingExtractor) Type() string { return "EXPLODING" }

func (explodingExtractor) Extract(obj host.Object) (entity.Metadata, bool) {
	panic("extractor blew up")
}

func newExplodingReporter() *reporter {
	s := scene.New()
	ids := identity.NewRegistry()
	rec := &synctest.Recorder{}
	logs := &bytes.Buffer{}
	meta := metadata.Defaults()
	meta.Register(explodingExtractor{})
	it := items.New(rec, s, ids, entities.NewRegistry(), snapshot.NewBuilder(ids, meta), log.New(logs, "", 0))
	return &reporter{it: it, rec: rec, logs: logs, s: s, ids: ids}
}

func TestReportersRecoverPanics(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		report func(r *reporter) error
	}{
		{"drop", func(r *reporter) error {
			return r.it.Dropped(ctx, r.s.NewNode("rock", "class-rock", "ROCK"), "")
		}},
		{"place", func(r *reporter) error {
			return r.it.Placed(ctx, r.s.NewNode("figure", "class-figure", "FIGURE"), "")
		}},
		{"plant", func(r *reporter) error {
			return r.it.Planted(ctx, r.s.NewItem("seed", "class-seed", "SEED"), entity.NewID())
		}},
		{"pickup", func(r *reporter) error {
			return r.it.PickedUp(ctx, r.s.NewItem("knife", "class-knife", "KNIFE"), "KNIFE", entity.NewID())
		}},
	}
	for _, tc := range cases {
		r := newExplodingReporter()
		err := tc.report(r)
		if !errors.Is(err, items.ErrPanic) {
			t.Fatalf("%s: expected ErrPanic, got %v", tc.name, err)
		}
		if r.rec.Len() != 0 {
			t.Fatalf("%s: nothing may be sent after a panic, got %d", tc.name, r.rec.Len())
		}
		if !strings.Contains(r.logs.String(), "extractor blew up") {
			t.Fatalf("%s: expected the panic logged, got %q", tc.name, r.logs.String())
		}
	}
}

func TestSendPanicsAreRecovered(t *testing.T) {
	ctx := context.Background()
	r := newReporter()
	r.rec.OnSend = func(ctx context.Context, p protocol.Packet) { panic("transport exploded") }

	suit := r.s.NewVehicle("exosuit", "class-exosuit", "EXOSUIT", "")
	r.ids.GetOrCreate(suit)
	arm := r.s.NewClawArm(suit, host.ArmRight)
	if err := r.it.ClawUsed(ctx, arm, 1); !errors.Is(err, items.ErrPanic) {
		t.Fatalf("claw use: expected ErrPanic, got %v", err)
	}

	rock := r.s.NewNode("rock", "class-rock", "ROCK")
	r.ids.GetOrCreate(rock)
	if err := r.it.Destroyed(ctx, rock); !errors.Is(err, items.ErrPanic) {
		t.Fatalf("destroy: expected ErrPanic, got %v", err)
	}
	if r.rec.Len() != 0 {
		t.Fatalf("expected nothing recorded")
	}
}
