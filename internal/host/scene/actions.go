package scene

import (
	"context"

	"worldsync/internal/entity"
	"worldsync/internal/host"
)

// The methods below are local simulation actions. They mutate the graph the
// way the engine would and then tell the subscribed event sink.

// Pickup moves item into container, or into the player's inventory when
// container is nil.
func (s *Scene) Pickup(ctx context.Context, item host.Pickupable, container host.Object) {
	if container == nil {
		s.Attach(s.player, item)
	} else {
		s.Attach(container, item)
	}
	if s.events != nil {
		s.events.OnPickedUp(ctx, item, container)
	}
}

// Drop releases obj at pos. A non-nil into is the object it lands in: for an
// enclosure that is the enclosure's items root.
func (s *Scene) Drop(ctx context.Context, obj host.Object, pos entity.Vec3, into host.Object) {
	if wp, ok := into.(*WaterPark); ok {
		into = wp.itemsRoot
	}
	s.Attach(into, obj)
	obj.(noder).node().pos = pos
	if s.events != nil {
		s.events.OnDropped(ctx, obj)
	}
}

// Place puts obj down with a placement tool inside into (nil for the world).
func (s *Scene) Place(ctx context.Context, obj host.Object, pos entity.Vec3, into host.Object) {
	s.Attach(into, obj)
	obj.(noder).node().pos = pos
	if s.events != nil {
		s.events.OnPlaced(ctx, obj)
	}
}

func (s *Scene) Plant(ctx context.Context, item host.Pickupable, planter host.Object) {
	s.Attach(planter, item)
	if s.events != nil {
		s.events.OnPlanted(ctx, item, planter)
	}
}

// RequestDestroy is local gameplay destroying obj (eaten, crafted away,
// blown up). The destruction itself happens at the end of the frame.
func (s *Scene) RequestDestroy(ctx context.Context, obj host.Object) {
	if s.events != nil {
		s.events.OnDestroyRequested(ctx, obj)
	}
	s.Destroy(obj)
}

func (s *Scene) UseClaw(ctx context.Context, arm *ClawArm, cooldown float64) {
	arm.PlayUse(ctx, cooldown)
}

// Load simulates a streamed cell bringing obj into existence with a saved id.
func (s *Scene) Load(ctx context.Context, obj host.Object, id entity.ID) {
	if s.events != nil {
		s.events.OnObjectLoaded(ctx, obj, id)
	}
}
