package entities

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/host/scene"
	"worldsync/internal/identity"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func flashlight(parent entity.ID) entity.Entity {
	id := entity.NewID()
	battery := entity.NewPrefabChild(entity.NewID(), "class-battery", "BATTERY", 0, nil, id)
	return entity.NewWorld(
		entity.WorldTransform(entity.Vec3{4, 0, 2}, entity.IdentityQuat, entity.Vec3{1, 1, 1}),
		0, "class-flashlight", false, id, "FLASHLIGHT", nil, parent, []entity.Entity{battery})
}

func TestMarksAreRecursive(t *testing.T) {
	r := NewRegistry()
	e := flashlight(entity.NoID)
	r.MarkAsSpawned(e)
	for _, id := range entity.IDs(e) {
		if r.Origin(id) != OriginLocal {
			t.Fatalf("expected %s local, got %s", id, r.Origin(id))
		}
	}
	r.MarkReplicated(e)
	if r.Origin(e.Children[0].ID) != OriginReplicated {
		t.Fatalf("expected child replicated")
	}
	r.RemoveEntity(e.ID)
	if r.IsKnown(e.ID) {
		t.Fatalf("expected root removed")
	}
	if !r.IsKnown(e.Children[0].ID) {
		t.Fatalf("child bookkeeping is removed by its own destroy")
	}
}

func TestPendingDeletion(t *testing.T) {
	r := NewRegistry()
	id := entity.NewID()
	r.MarkForDeletion(id)
	r.MarkForDeletion(id)
	if !r.WasMarkedForDeletion(id) || r.PendingDeletions() != 1 {
		t.Fatalf("expected one pending deletion")
	}
	if !r.ConsumeDeletion(id) {
		t.Fatalf("expected consume to report the marker")
	}
	if r.ConsumeDeletion(id) || r.WasMarkedForDeletion(id) {
		t.Fatalf("marker should be gone after consume")
	}
}

func TestSpawnBindsTree(t *testing.T) {
	s := scene.New()
	ids := identity.NewRegistry()
	reg := NewRegistry()
	sp := NewSpawner(s, ids, reg, quiet())

	e := flashlight(entity.NoID)
	obj, err := sp.Spawn(context.Background(), e)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if got, ok := ids.Lookup(obj); !ok || got != e.ID {
		t.Fatalf("expected root bound to %s, got %s", e.ID, got)
	}
	kids := obj.Children()
	if len(kids) != 1 {
		t.Fatalf("expected one child, got %d", len(kids))
	}
	if got, _ := ids.Lookup(kids[0]); got != e.Children[0].ID {
		t.Fatalf("child id not bound")
	}
	if reg.Origin(e.ID) != OriginReplicated {
		t.Fatalf("expected replicated origin")
	}

	again, err := sp.Spawn(context.Background(), e)
	if err != nil || again != obj {
		t.Fatalf("expected second spawn to return the existing object, err=%v", err)
	}
}

func TestSpawnNeedsParent(t *testing.T) {
	s := scene.New()
	sp := NewSpawner(s, identity.NewRegistry(), NewRegistry(), quiet())
	item := entity.NewInventoryItem(entity.NewID(), "class-knife", "KNIFE", nil, entity.NewID(), nil)
	if _, err := sp.Spawn(context.Background(), item); !errors.Is(err, ErrParentMissing) {
		t.Fatalf("expected ErrParentMissing, got %v", err)
	}
}

func TestArrivalAfterRemoteDestroyIsCancelled(t *testing.T) {
	s := scene.New()
	reg := NewRegistry()
	ids := identity.NewRegistry()
	sp := NewSpawner(s, ids, reg, quiet())

	e := flashlight(entity.NoID)
	reg.MarkForDeletion(e.ID)
	obj, err := sp.Spawn(context.Background(), e)
	if !errors.Is(err, ErrCancelled) || obj != nil {
		t.Fatalf("expected cancelled arrival, got %v %v", obj, err)
	}
	if len(s.Roots()) != 1 {
		t.Fatalf("expected only the player in the scene, got %d roots", len(s.Roots()))
	}
	if reg.WasMarkedForDeletion(e.ID) {
		t.Fatalf("marker should be consumed")
	}
}

func TestCancelledChildIsSkipped(t *testing.T) {
	s := scene.New()
	reg := NewRegistry()
	ids := identity.NewRegistry()
	sp := NewSpawner(s, ids, reg, quiet())

	e := flashlight(entity.NoID)
	reg.MarkForDeletion(e.Children[0].ID)
	obj, err := sp.Spawn(context.Background(), e)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if len(obj.Children()) != 0 {
		t.Fatalf("expected cancelled child to be skipped")
	}
}

func TestObjectLoaded(t *testing.T) {
	s := scene.New()
	reg := NewRegistry()
	ids := identity.NewRegistry()
	sp := NewSpawner(s, ids, reg, quiet())
	ctx := context.Background()

	kept := s.NewNode("rock", "class-rock", "ROCK")
	keptID := entity.NewID()
	if !sp.ObjectLoaded(ctx, kept, keptID) {
		t.Fatalf("expected object to load")
	}
	if obj, ok := ids.TryResolve(keptID); !ok || obj != host.Object(kept) {
		t.Fatalf("expected id bound on load")
	}

	gone := s.NewNode("crate", "class-crate", "CRATE")
	goneID := entity.NewID()
	reg.MarkForDeletion(goneID)
	if sp.ObjectLoaded(ctx, gone, goneID) {
		t.Fatalf("expected pending deletion to remove the object")
	}
	if gone.Alive() {
		t.Fatalf("expected immediate removal, not end of frame")
	}
	if _, ok := ids.TryResolve(goneID); ok {
		t.Fatalf("removed object must not be resolvable")
	}
}

func TestDestroyPolicy(t *testing.T) {
	s := scene.New()
	ctx := context.Background()
	later := s.NewNode("a", "class-a", "A")
	now := s.NewNode("b", "class-b", "B")

	DestroyObject(ctx, s, later, DestroyDeferred)
	DestroyObject(ctx, s, now, DestroyNow)
	if !later.Alive() || s.PendingDestroys() != 1 {
		t.Fatalf("deferred destroy should wait for the end of the frame")
	}
	if now.Alive() {
		t.Fatalf("DestroyNow should remove immediately")
	}
	s.EndFrame(ctx)
	if later.Alive() {
		t.Fatalf("expected deferred destroy at end of frame")
	}
}
