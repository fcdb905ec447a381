// Package hooks connects the engine's event feed to the reporters.
//
// Every event is checked against the suppression guard for the packet type
// it would produce; events raised while a remote instruction of that type is
// being applied are swallowed.
package hooks

import (
	"context"
	"fmt"
	"log"

	"worldsync/internal/entities"
	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/identity"
	"worldsync/internal/items"
	"worldsync/internal/protocol"
	"worldsync/internal/suppress"
)

type Bus struct {
	guard   *suppress.Guard
	ids     *identity.Registry
	items   *items.Items
	spawner *entities.Spawner
	logger  *log.Logger

	// Swallowed counts suppressed events by packet type.
	Swallowed map[string]int
}

func NewBus(guard *suppress.Guard, ids *identity.Registry, it *items.Items, spawner *entities.Spawner, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		guard:     guard,
		ids:       ids,
		items:     it,
		spawner:   spawner,
		logger:    logger,
		Swallowed: map[string]int{},
	}
}

func (b *Bus) suppressed(ctx context.Context, category string) bool {
	if b.guard.IsSuppressed(category) || suppress.IsSuppressed(ctx, category) {
		b.Swallowed[category]++
		return true
	}
	return false
}

func (b *Bus) report(what string, err error) {
	if err != nil {
		b.logger.Printf("%s not replicated: %v", what, err)
	}
}

func (b *Bus) containerID(container host.Object) (entity.ID, error) {
	id, ok := b.ids.Lookup(container)
	if !ok {
		return entity.NoID, fmt.Errorf("%w: %s", items.ErrNoContainer, container.Name())
	}
	return id, nil
}

func (b *Bus) OnPickedUp(ctx context.Context, obj host.Pickupable, container host.Object) {
	if b.suppressed(ctx, protocol.TypePickupItem) {
		return
	}
	// A pickup report in flight for obj already covers this notification.
	if cur, ok := items.PickingUp(ctx); ok && cur == host.Object(obj) {
		return
	}
	if container == nil {
		b.report("pickup", b.items.PickedUpByPlayer(ctx, obj, obj.TechType()))
		return
	}
	id, err := b.containerID(container)
	if err != nil {
		b.report("pickup", err)
		return
	}
	b.report("pickup", b.items.PickedUp(ctx, obj, obj.TechType(), id))
}

func (b *Bus) OnDropped(ctx context.Context, obj host.Object) {
	if b.suppressed(ctx, protocol.TypeEntitySpawnedByClient) {
		return
	}
	b.report("drop", b.items.Dropped(ctx, obj, ""))
}

func (b *Bus) OnPlaced(ctx context.Context, obj host.Object) {
	if b.suppressed(ctx, protocol.TypeEntitySpawnedByClient) {
		return
	}
	b.report("place", b.items.Placed(ctx, obj, ""))
}

func (b *Bus) OnPlanted(ctx context.Context, obj host.Pickupable, planter host.Object) {
	if b.suppressed(ctx, protocol.TypeEntitySpawnedByClient) {
		return
	}
	id, err := b.containerID(planter)
	if err != nil {
		b.report("plant", err)
		return
	}
	b.report("plant", b.items.Planted(ctx, obj, id))
}

func (b *Bus) OnDestroyRequested(ctx context.Context, obj host.Object) {
	if b.suppressed(ctx, protocol.TypeEntityDestroyed) {
		return
	}
	b.report("destroy", b.items.Destroyed(ctx, obj))
}

func (b *Bus) OnClawUsed(ctx context.Context, arm host.ClawArm, cooldown float64) {
	if b.suppressed(ctx, protocol.TypeExosuitArmAction) {
		return
	}
	b.report("claw use", b.items.ClawUsed(ctx, arm, cooldown))
}

// OnObjectLoaded is bookkeeping, not a report, so it is never suppressed.
func (b *Bus) OnObjectLoaded(ctx context.Context, obj host.Object, id entity.ID) {
	b.spawner.ObjectLoaded(ctx, obj, id)
}

var _ host.Events = (*Bus)(nil)
