package entities

import (
	"context"
	"errors"
	"fmt"
	"log"

	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/identity"
)

var (
	// ErrCancelled is returned when an arriving entity had already been
	// destroyed remotely.
	ErrCancelled     = errors.New("entity was destroyed before it arrived")
	ErrParentMissing = errors.New("parent entity is not loaded")
)

// DestroyPolicy says whether an object goes away now or at the end of the
// frame. The host defers by default; side effects that must happen inside a
// suppression window need DestroyNow.
type DestroyPolicy int

const (
	DestroyDeferred DestroyPolicy = iota
	DestroyNow
)

func (p DestroyPolicy) String() string {
	if p == DestroyNow {
		return "now"
	}
	return "deferred"
}

// DestroyObject removes obj from world according to policy.
func DestroyObject(ctx context.Context, world host.World, obj host.Object, policy DestroyPolicy) {
	if !host.IsAlive(obj) {
		return
	}
	switch policy {
	case DestroyNow:
		world.DestroyNow(ctx, obj)
	default:
		world.Destroy(obj)
	}
}

// Spawner materializes entity trees received from the authority.
type Spawner struct {
	world    host.World
	ids      *identity.Registry
	registry *Registry
	logger   *log.Logger
}

func NewSpawner(world host.World, ids *identity.Registry, registry *Registry, logger *log.Logger) *Spawner {
	if logger == nil {
		logger = log.Default()
	}
	return &Spawner{world: world, ids: ids, registry: registry, logger: logger}
}

// Spawn creates e and its children in the local world and binds their ids.
// An entity whose id is already held by a live object is not spawned twice;
// the existing object is returned.
func (s *Spawner) Spawn(ctx context.Context, e entity.Entity) (host.Object, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	var parent host.Object
	if e.HasParent() {
		p, ok := s.ids.TryResolve(e.ParentID)
		if !ok {
			return nil, fmt.Errorf("spawn %s: %w: %s", e, ErrParentMissing, e.ParentID)
		}
		parent = p
	}
	return s.spawn(ctx, e, parent)
}

func (s *Spawner) spawn(ctx context.Context, e entity.Entity, parent host.Object) (host.Object, error) {
	if s.registry.ConsumeDeletion(e.ID) {
		s.logger.Printf("cancelled arrival of %s: destroyed remotely", e)
		return nil, fmt.Errorf("spawn %s: %w", e, ErrCancelled)
	}
	if obj, ok := s.ids.TryResolve(e.ID); ok {
		return obj, nil
	}
	obj, err := s.world.Spawn(ctx, e, parent)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", e, err)
	}
	s.ids.Assign(obj, e.ID)
	s.registry.known[e.ID] = OriginReplicated

	for _, c := range e.Children {
		if _, err := s.spawn(ctx, c, obj); err != nil {
			if errors.Is(err, ErrCancelled) {
				continue
			}
			s.logger.Printf("child of %s: %v", e.ID, err)
		}
	}
	return obj, nil
}

// ObjectLoaded is called when the engine streams in a saved object that
// carries id. It reports false when the object was pending deletion and has
// been removed instead.
func (s *Spawner) ObjectLoaded(ctx context.Context, obj host.Object, id entity.ID) bool {
	if s.registry.ConsumeDeletion(id) {
		DestroyObject(ctx, s.world, obj, DestroyNow)
		s.logger.Printf("removed %s on load: destroyed remotely", id)
		return false
	}
	s.ids.Assign(obj, id)
	if !s.registry.IsKnown(id) {
		s.registry.known[id] = OriginReplicated
	}
	return true
}
