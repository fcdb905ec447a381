package processors

import (
	"context"

	"worldsync/internal/entities"
	"worldsync/internal/host"
	"worldsync/internal/protocol"
)

// DamageTypeReplicatedDestroy is outside the engine's gameplay damage types.
// A structure's damage handler that sees it runs its destruction side
// effects once without treating the hit as new damage.
const DamageTypeReplicatedDestroy host.DamageType = 100

// EntityDestroyed applies ENTITY_DESTROYED. The object is matched against
// the categories below in order and only the first match is cleaned up:
//
//	vehicle     eject the local pilot, reset remote occupants, effect, deferred removal
//	structure   forced death, one take-damage call with the sentinel type
//	pickupable  OnDestroy now, deferred removal
//	anything    removal per DefaultPolicy
type EntityDestroyed struct {
	deps Deps
	// DefaultPolicy applies to objects with no special category.
	DefaultPolicy entities.DestroyPolicy
}

func NewEntityDestroyed(deps Deps) *EntityDestroyed {
	return &EntityDestroyed{deps: deps, DefaultPolicy: entities.DestroyDeferred}
}

func (*EntityDestroyed) Type() string { return protocol.TypeEntityDestroyed }

func (p *EntityDestroyed) Process(ctx context.Context, pkt protocol.Packet) error {
	msg, ok := pkt.(*protocol.EntityDestroyed)
	if !ok {
		return wrongPacket(p.Type(), pkt)
	}
	p.deps.Entities.RemoveEntity(msg.ID)

	obj, ok := p.deps.IDs.TryResolve(msg.ID)
	if !ok {
		p.deps.Entities.MarkForDeletion(msg.ID)
		p.deps.logger().Printf("WARN could not find entity %s to destroy", msg.ID)
		return nil
	}
	p.deps.IDs.Forget(msg.ID)

	return p.deps.Guard.Do(protocol.TypeEntityDestroyed, func() error {
		switch o := obj.(type) {
		case host.Vehicle:
			p.destroyVehicle(ctx, o)
		case host.Structure:
			p.destroyStructure(ctx, o)
		case host.Pickupable:
			p.destroyPickupable(ctx, o)
		default:
			p.forgetDescendants(obj)
			entities.DestroyObject(ctx, p.deps.World, obj, p.DefaultPolicy)
		}
		return nil
	})
}

func (p *EntityDestroyed) destroyVehicle(ctx context.Context, v host.Vehicle) {
	if v.Piloted() {
		v.EndPilotMode()
		if pl := p.deps.World.Player(); pl != nil && !pl.ExitToNormal(true) {
			pl.ExitToNormal(false)
			pl.Detach()
		}
	}

	if t, ok := v.(host.OccupantTracker); ok {
		t.ResetOccupant()
	}
	for _, d := range host.Descendants(v) {
		if t, ok := d.(host.OccupantTracker); ok {
			t.ResetOccupant()
		}
	}

	if !v.Alive() {
		return
	}
	if fx, ok := v.DestructionEffect(); ok {
		p.deps.World.SpawnEffect(fx, v.WorldTransform())
	}
	p.forgetDescendants(v)
	entities.DestroyObject(ctx, p.deps.World, v, entities.DestroyDeferred)
}

func (p *EntityDestroyed) destroyStructure(ctx context.Context, s host.Structure) {
	info := host.DamageInfo{Type: DamageTypeReplicatedDestroy}
	if s.Health() > 0 {
		// The handler takes its destruction branch only while the previous
		// health percentage is in [0, 0.25).
		s.SetOldHealthPercent(0)
		s.SetHealth(0)
		s.NotifyDamageReceivers(info)
		s.Kill()
	}
	s.OnTakeDamage(ctx, info)
}

// destroyPickupable runs OnDestroy inside the suppression window. Left to
// the deferred removal it would run after the guard is released, and an item
// in an equipment slot would report its own destruction back.
func (p *EntityDestroyed) destroyPickupable(ctx context.Context, it host.Pickupable) {
	it.OnDestroy(ctx)
	p.forgetDescendants(it)
	entities.DestroyObject(ctx, p.deps.World, it, entities.DestroyDeferred)
}

// forgetDescendants releases the ids of everything below obj. Those objects
// go with obj, possibly after the guard is released, and their destroy side
// effects must find nothing to report. The local player is never released.
func (p *EntityDestroyed) forgetDescendants(obj host.Object) {
	player := host.Object(p.deps.World.Player())
	for _, d := range host.Descendants(obj) {
		if d == player {
			continue
		}
		id, ok := p.deps.IDs.Lookup(d)
		if !ok {
			continue
		}
		p.deps.IDs.Forget(id)
		p.deps.Entities.RemoveEntity(id)
	}
}
