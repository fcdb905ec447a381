package processors

import (
	"context"
	"errors"

	"worldsync/internal/entities"
	"worldsync/internal/host"
	"worldsync/internal/protocol"
)

// EntitySpawned applies SPAWN_ENTITIES: entities another client dropped,
// placed or planted.
type EntitySpawned struct{ deps Deps }

func NewEntitySpawned(deps Deps) *EntitySpawned { return &EntitySpawned{deps: deps} }

func (*EntitySpawned) Type() string { return protocol.TypeSpawnEntities }

func (p *EntitySpawned) Process(ctx context.Context, pkt protocol.Packet) error {
	msg, ok := pkt.(*protocol.SpawnEntities)
	if !ok {
		return wrongPacket(p.Type(), pkt)
	}
	release := p.deps.Guard.Suppress(protocol.TypeEntitySpawnedByClient)
	defer release()

	var errs []error
	for _, e := range msg.Entities {
		if _, err := p.deps.Spawner.Spawn(ctx, e); err != nil {
			if errors.Is(err, entities.ErrCancelled) {
				continue
			}
			p.deps.logger().Printf("spawn %s: %v", e.ID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PickupItem applies PICKUP_ITEM: another player took an object into an
// inventory, so the world copy here disappears. The entity stays known as
// a replicated inventory item.
type PickupItem struct{ deps Deps }

func NewPickupItem(deps Deps) *PickupItem { return &PickupItem{deps: deps} }

func (*PickupItem) Type() string { return protocol.TypePickupItem }

func (p *PickupItem) Process(ctx context.Context, pkt protocol.Packet) error {
	msg, ok := pkt.(*protocol.PickupItem)
	if !ok {
		return wrongPacket(p.Type(), pkt)
	}
	p.deps.Entities.MarkReplicated(msg.Entity)

	obj, ok := p.deps.IDs.TryResolve(msg.Entity.ID)
	if !ok {
		return nil
	}
	p.deps.IDs.Forget(msg.Entity.ID)
	return p.deps.Guard.Do(protocol.TypePickupItem, func() error {
		// Removal has to finish inside the window: a deferred removal would
		// run the object's destroy side effects unsuppressed.
		entities.DestroyObject(ctx, p.deps.World, obj, entities.DestroyNow)
		return nil
	})
}

// ExosuitArmAction replays another player's claw use on the local copy of
// their exosuit.
type ExosuitArmAction struct{ deps Deps }

func NewExosuitArmAction(deps Deps) *ExosuitArmAction { return &ExosuitArmAction{deps: deps} }

func (*ExosuitArmAction) Type() string { return protocol.TypeExosuitArmAction }

func (p *ExosuitArmAction) Process(ctx context.Context, pkt protocol.Packet) error {
	msg, ok := pkt.(*protocol.ExosuitArmAction)
	if !ok {
		return wrongPacket(p.Type(), pkt)
	}
	if msg.Action != protocol.ArmActionClawUse {
		p.deps.logger().Printf("WARN unsupported arm action %q", msg.Action)
		return nil
	}
	exosuit, ok := p.deps.IDs.TryResolve(msg.ExosuitID)
	if !ok {
		p.deps.logger().Printf("WARN could not find exosuit %s", msg.ExosuitID)
		return nil
	}
	arm := findArm(exosuit, host.ArmSide(msg.Arm))
	if arm == nil {
		p.deps.logger().Printf("WARN exosuit %s has no %s arm", msg.ExosuitID, msg.Arm)
		return nil
	}
	return p.deps.Guard.Do(protocol.TypeExosuitArmAction, func() error {
		arm.PlayUse(ctx, msg.Cooldown)
		return nil
	})
}

func findArm(exosuit host.Object, side host.ArmSide) host.ClawArm {
	for _, d := range host.Descendants(exosuit) {
		if arm, ok := d.(host.ClawArm); ok && arm.Side() == side {
			return arm
		}
	}
	return nil
}
