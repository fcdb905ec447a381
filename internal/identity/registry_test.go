package identity

import (
	"context"
	"errors"
	"testing"

	"worldsync/internal/entity"
	"worldsync/internal/host/scene"
)

func TestGetOrCreateIsStable(t *testing.T) {
	s := scene.New()
	obj := s.NewNode("rock", "class-rock", "ROCK")
	r := NewRegistry()

	a := r.GetOrCreate(obj)
	b := r.GetOrCreate(obj)
	if a != b {
		t.Fatalf("expected same id, got %s and %s", a, b)
	}
	if a == entity.NoID {
		t.Fatalf("expected non-zero id")
	}
	if got, ok := r.Lookup(obj); !ok || got != a {
		t.Fatalf("lookup: got %s ok=%v", got, ok)
	}
}

func TestTryResolveSoftFailures(t *testing.T) {
	s := scene.New()
	obj := s.NewNode("rock", "class-rock", "ROCK")
	r := NewRegistry()

	if _, ok := r.TryResolve(entity.NewID()); ok {
		t.Fatalf("unknown id resolved")
	}
	id := r.GetOrCreate(obj)
	if got, ok := r.TryResolve(id); !ok || got != obj {
		t.Fatalf("expected to resolve live object")
	}

	s.DestroyNow(context.Background(), obj)
	if _, ok := r.TryResolve(id); ok {
		t.Fatalf("dead object should not resolve")
	}
	if _, err := r.Resolve(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTryResolveDropsDeadBindings(t *testing.T) {
	s := scene.New()
	obj := s.NewNode("rock", "class-rock", "ROCK")
	r := NewRegistry()
	id := r.GetOrCreate(obj)

	s.DestroyNow(context.Background(), obj)
	if r.Len() != 1 {
		t.Fatalf("binding dropped before it was looked at")
	}
	if _, ok := r.TryResolve(id); ok {
		t.Fatalf("dead object should not resolve")
	}
	if r.Len() != 0 {
		t.Fatalf("expected the dead binding pruned, len=%d", r.Len())
	}
	if _, ok := r.Lookup(obj); ok {
		t.Fatalf("expected the back reference pruned too")
	}
}

func TestAssignMovesID(t *testing.T) {
	s := scene.New()
	first := s.NewNode("a", "class-a", "A")
	second := s.NewNode("b", "class-b", "B")
	r := NewRegistry()

	id := entity.NewID()
	r.Assign(first, id)
	r.Assign(second, id)

	if _, ok := r.Lookup(first); ok {
		t.Fatalf("previous holder kept the id")
	}
	if got, _ := r.TryResolve(id); got != second {
		t.Fatalf("id should resolve to the new holder")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 mapping, got %d", r.Len())
	}
}

func TestForget(t *testing.T) {
	s := scene.New()
	obj := s.NewNode("rock", "class-rock", "ROCK")
	r := NewRegistry()
	id := r.GetOrCreate(obj)

	r.Forget(id)
	r.Forget(id)
	if _, ok := r.TryResolve(id); ok {
		t.Fatalf("forgotten id resolved")
	}
	if _, ok := r.Lookup(obj); ok {
		t.Fatalf("forgotten object kept its id")
	}
	if again := r.GetOrCreate(obj); again == id {
		t.Fatalf("expected a fresh id after forget")
	}
}
