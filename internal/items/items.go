// Package items reports local inventory and placement actions to the
// authority. Each report builds a snapshot of the object and sends exactly
// one packet; when a required id cannot be resolved nothing is sent.
package items

import (
	"context"
	"errors"
	"fmt"
	"log"

	"worldsync/internal/entities"
	"worldsync/internal/entity"
	"worldsync/internal/host"
	"worldsync/internal/identity"
	"worldsync/internal/protocol"
	"worldsync/internal/snapshot"
)

var (
	ErrNoPlayerID  = errors.New("local player has no id")
	ErrNoContainer = errors.New("container has no id")
	ErrPanic       = errors.New("panic while reporting")
)

// PositionWatcher streams positions of objects this client simulates.
// Picking an object up ends that.
type PositionWatcher interface {
	StopWatching(id entity.ID)
}

type Items struct {
	sender   protocol.Sender
	world    host.World
	ids      *identity.Registry
	entities *entities.Registry
	builder  *snapshot.Builder
	watcher  PositionWatcher
	logger   *log.Logger

	loggedOnce map[string]bool
}

func New(sender protocol.Sender, world host.World, ids *identity.Registry, registry *entities.Registry, builder *snapshot.Builder, logger *log.Logger) *Items {
	if logger == nil {
		logger = log.Default()
	}
	return &Items{
		sender:     sender,
		world:      world,
		ids:        ids,
		entities:   registry,
		builder:    builder,
		logger:     logger,
		loggedOnce: map[string]bool{},
	}
}

func (it *Items) SetPositionWatcher(w PositionWatcher) { it.watcher = w }

func (it *Items) errorOnce(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if it.loggedOnce[msg] {
		return
	}
	it.loggedOnce[msg] = true
	it.logger.Print("ERROR " + msg)
}

// recoverReport turns a panic inside a reporter into an error. Nothing has
// been sent when the panic happens before the send.
func (it *Items) recoverReport(err *error, what string, obj host.Object) {
	r := recover()
	if r == nil {
		return
	}
	*err = fmt.Errorf("%w: %s of %s: %v", ErrPanic, what, nameOf(obj), r)
	it.logger.Printf("ERROR %v", *err)
}

type pickingUpKey struct{}

// WithPickingUp marks obj as the object being picked up for the calls made
// with the returned context.
func WithPickingUp(ctx context.Context, obj host.Object) context.Context {
	return context.WithValue(ctx, pickingUpKey{}, obj)
}

// PickingUp returns the object a pickup report is in flight for, if any.
// Hooks that fire during the report use it to tell a programmatic pickup
// from one the user started.
func PickingUp(ctx context.Context) (host.Object, bool) {
	obj, ok := ctx.Value(pickingUpKey{}).(host.Object)
	return obj, ok && obj != nil
}

// PickedUpByPlayer reports obj going into the local player's inventory.
func (it *Items) PickedUpByPlayer(ctx context.Context, obj host.Object, tech entity.TechType) error {
	playerID, ok := it.ids.Lookup(it.world.Player())
	if !ok {
		it.errorOnce("player has no id, could not set parent of picked up item %s", obj.Name())
		return ErrNoPlayerID
	}
	return it.PickedUp(ctx, obj, tech, playerID)
}

// PickedUp reports obj going into the inventory of containerID.
func (it *Items) PickedUp(ctx context.Context, obj host.Object, tech entity.TechType, containerID entity.ID) (err error) {
	ctx = WithPickingUp(ctx, obj)
	defer it.recoverReport(&err, "pickup", obj)

	e, err := it.inventoryEntity(obj, containerID)
	if err != nil {
		it.logger.Printf("ERROR pickup of %s: %v", obj.Name(), err)
		return err
	}
	if tech != "" && e.TechType != tech {
		it.logger.Printf("WARN provided tech type %s differs from %s attributed to %s", tech, e.TechType, obj.Name())
	}
	if it.sender.Send(ctx, protocol.NewPickupItem(e)) {
		it.logger.Printf("picked up item %s", e)
	}
	return nil
}

// Planted reports obj going into a planter. The authority adds it next to
// whatever the planter already holds.
func (it *Items) Planted(ctx context.Context, obj host.Object, planterID entity.ID) (err error) {
	defer it.recoverReport(&err, "planting", obj)
	e, err := it.inventoryEntity(obj, planterID)
	if err != nil {
		it.logger.Printf("ERROR planting %s: %v", obj.Name(), err)
		return err
	}
	if it.sender.Send(ctx, protocol.NewEntitySpawnedByClient(e, true)) {
		it.logger.Printf("planted item %s", e)
	}
	return nil
}

// inventoryEntity builds an inventory record and takes obj over from any
// remote simulation.
func (it *Items) inventoryEntity(obj host.Object, containerID entity.ID) (entity.Entity, error) {
	e, err := it.builder.InventoryItem(obj, containerID)
	if err != nil {
		return entity.Entity{}, err
	}
	// Objects created straight into an inventory (spawn commands, click to
	// spawn prefabs) are new to the authority too; the record registers them.
	it.entities.MarkAsSpawned(e)
	removeAnyRemoteControl(obj)
	if it.watcher != nil {
		it.watcher.StopWatching(e.ID)
	}
	return e, nil
}

// Dropped reports obj released into the world. An empty tech takes the
// object's own.
func (it *Items) Dropped(ctx context.Context, obj host.Object, tech entity.TechType) (err error) {
	defer it.recoverReport(&err, "drop", obj)
	if tech == "" {
		tech = obj.TechType()
	}
	// Creatures in a water park refresh maturity and breeding time only in
	// their managed update.
	if r, ok := obj.(host.Refresher); ok {
		r.ManagedUpdate()
	}
	e, err := it.builder.Dropped(obj, tech)
	if err != nil {
		it.logger.Printf("ERROR dropping %s: %v", obj.Name(), err)
		return err
	}
	removeAnyRemoteControl(obj)
	it.entities.MarkAsSpawned(e)
	if it.sender.Send(ctx, protocol.NewEntitySpawnedByClient(e, true)) {
		it.logger.Printf("dropping item %s", e)
	}
	return nil
}

// Placed reports obj put down with a placement tool.
func (it *Items) Placed(ctx context.Context, obj host.Object, tech entity.TechType) (err error) {
	defer it.recoverReport(&err, "placement", obj)
	if tech == "" {
		tech = obj.TechType()
	}
	e, err := it.builder.Placed(obj, tech, it.world.Player())
	if err != nil {
		it.logger.Printf("ERROR placing %s: %v", obj.Name(), err)
		return err
	}
	removeAnyRemoteControl(obj)
	it.entities.MarkAsSpawned(e)
	if it.sender.Send(ctx, protocol.NewEntitySpawnedByClient(e, true)) {
		it.logger.Printf("placed object %s", e)
	}
	return nil
}

// Destroyed reports local gameplay destroying obj. Objects that were never
// replicated have nothing to report.
func (it *Items) Destroyed(ctx context.Context, obj host.Object) (err error) {
	defer it.recoverReport(&err, "destroy", obj)
	id, ok := it.ids.Lookup(obj)
	if !ok {
		return nil
	}
	it.entities.RemoveEntity(id)
	it.ids.Forget(id)
	if it.sender.Send(ctx, protocol.NewEntityDestroyed(id)) {
		it.logger.Printf("destroyed %s (%s)", id, obj.Name())
	}
	return nil
}

// ClawUsed broadcasts a claw use of the local exosuit.
func (it *Items) ClawUsed(ctx context.Context, arm host.ClawArm, cooldown float64) (err error) {
	defer it.recoverReport(&err, "claw use", arm)
	id, ok := it.ids.Lookup(arm.Exosuit())
	if !ok {
		err := fmt.Errorf("claw use: exosuit %s: %w", nameOf(arm.Exosuit()), identity.ErrNotFound)
		it.logger.Printf("WARN %v", err)
		return err
	}
	it.sender.Send(ctx, protocol.NewExosuitArmAction(id, string(arm.Side()), protocol.ArmActionClawUse, cooldown))
	return nil
}

func removeAnyRemoteControl(obj host.Object) {
	if rc, ok := obj.(host.RemoteControllable); ok {
		rc.ClearRemoteControl()
	}
}

func nameOf(obj host.Object) string {
	if obj == nil {
		return "<nil>"
	}
	return obj.Name()
}
