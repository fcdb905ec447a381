// Package host describes the simulation engine the sync core runs inside.
//
// The engine owns the object graph, physics and gameplay. The core only sees
// it through these interfaces: a base Object plus optional capabilities that
// are discovered with type assertions, the way an engine exposes components.
package host

import (
	"context"

	"worldsync/internal/entity"
)

// CellLevel mirrors the engine's streaming level. Objects at CellGlobal are
// relevant everywhere and are never unloaded with their cell.
type CellLevel int

const (
	CellNear CellLevel = iota
	CellMedium
	CellFar
	CellGlobal
)

type Object interface {
	Name() string
	// Alive is false once the engine has destroyed the object.
	Alive() bool
	// ClassID is the prefab class tag, empty when the object has none.
	ClassID() string
	TechType() entity.TechType
	Parent() Object
	// Children returns direct children in the engine's stable order,
	// inactive ones included.
	Children() []Object
	LocalTransform() entity.Transform
	WorldTransform() entity.Transform
	CellLevel() CellLevel
}

// Pickupable objects can live in inventories. OnDestroy runs the engine's
// destruction side effects (equipment bookkeeping among them) and is a no-op
// after the first call.
type Pickupable interface {
	Object
	OnDestroy(ctx context.Context)
}

// RemoteControllable objects may carry a marker saying another peer drives
// their position.
type RemoteControllable interface {
	ClearRemoteControl()
}

// Refresher objects need one managed update before their state is read.
type Refresher interface {
	ManagedUpdate()
}

// Enclosure is a container items can be dropped into (a water park). Dropped
// items sit under <enclosure>/items_root/<item>.
type Enclosure interface {
	Object
	EnclosureCapacity() int
}

type PipeConnection interface {
	Object() Object
	Root() PipeConnection
	AttachPoint() entity.Vec3
}

// PipeSegment is a linked structure: it cannot be rebuilt remotely without
// its parent connection and the root of its chain.
type PipeSegment interface {
	Object
	// GhostParent is the connection the segment is being placed against.
	GhostParent() PipeConnection
	SetChainIDs(rootID, parentID entity.ID)
}

type BatteryHolder interface {
	InstalledBattery() Object
}

type EquipmentSlot struct {
	Name string
	Item Pickupable
}

type Equipment interface {
	Object
	Slots() []EquipmentSlot
}

type OccupantTracker interface {
	ResetOccupant()
}

// Vehicle is a pilotable object.
type Vehicle interface {
	Object
	Piloted() bool
	EndPilotMode()
	DestructionEffect() (classID string, ok bool)
}

type DamageType int

type DamageInfo struct {
	Type   DamageType
	Amount float64
}

// Structure is a large multi-room object with its own damage state machine.
type Structure interface {
	Object
	Health() float64
	SetHealth(float64)
	SetOldHealthPercent(float64)
	NotifyDamageReceivers(DamageInfo)
	Kill()
	OnTakeDamage(ctx context.Context, info DamageInfo)
}

type ArmSide string

const (
	ArmLeft  ArmSide = "LEFT"
	ArmRight ArmSide = "RIGHT"
)

type ClawArm interface {
	Object
	Exosuit() Object
	Side() ArmSide
	// PlayUse runs the claw. The engine reports every use through
	// Events.OnClawUsed, replays included.
	PlayUse(ctx context.Context, cooldown float64)
}

type Player interface {
	Object
	// CurrentContainer is the structure or vehicle the player is inside.
	CurrentContainer() Object
	// ExitToNormal leaves piloting/seated mode; graceful=false forces it.
	ExitToNormal(graceful bool) bool
	Detach()
}

// World is the engine surface the core mutates.
type World interface {
	Player() Player
	// Spawn materializes a single entity under parent (nil for the world root).
	Spawn(ctx context.Context, e entity.Entity, parent Object) (Object, error)
	// Destroy queues destruction for the end of the current frame.
	Destroy(obj Object)
	// DestroyNow removes the object synchronously.
	DestroyNow(ctx context.Context, obj Object)
	SpawnEffect(classID string, at entity.Transform)
}

// Events is what the engine adapter calls when local simulation does
// something worth replicating. The sync core registers one implementation at
// startup.
type Events interface {
	OnPickedUp(ctx context.Context, obj Pickupable, container Object)
	OnDropped(ctx context.Context, obj Object)
	OnPlaced(ctx context.Context, obj Object)
	OnPlanted(ctx context.Context, obj Pickupable, planter Object)
	OnDestroyRequested(ctx context.Context, obj Object)
	OnClawUsed(ctx context.Context, arm ClawArm, cooldown float64)
	OnObjectLoaded(ctx context.Context, obj Object, id entity.ID)
}

// Descendants returns every object below root in depth-first pre-order,
// root excluded.
func Descendants(root Object) []Object {
	var out []Object
	var walk func(Object)
	walk = func(o Object) {
		for _, c := range o.Children() {
			out = append(out, c)
			walk(c)
		}
	}
	walk(root)
	return out
}

// IsAlive treats a nil interface as dead.
func IsAlive(o Object) bool {
	return o != nil && o.Alive()
}
