package scene

import (
	"context"

	"worldsync/internal/entity"
	"worldsync/internal/host"
)

func (s *Scene) NewNode(name, classID string, tech entity.TechType) *Node {
	n := &Node{}
	s.init(n, n, name, classID, tech)
	return n
}

// Item is a pickupable object.
type Item struct {
	Node
	destroyCalls int
}

func (s *Scene) NewItem(name, classID string, tech entity.TechType) *Item {
	it := &Item{}
	s.init(&it.Node, it, name, classID, tech)
	return it
}

// OnDestroy mimics the engine: an item that sits in an equipment slot tells
// the equipment it is gone, which the adapter reports as a destroy request.
func (it *Item) OnDestroy(ctx context.Context) {
	if it.destroyCalls > 0 {
		return
	}
	it.destroyCalls++
	if eq, ok := it.parent.(*Equipment); ok {
		eq.unequip(it)
		if it.scene.events != nil {
			it.scene.events.OnDestroyRequested(ctx, it.self)
		}
	}
}

func (it *Item) DestroyCalls() int { return it.destroyCalls }

type Battery struct {
	Item
	charge, capacity float64
}

func (s *Scene) NewBattery(name, classID string, tech entity.TechType, charge, capacity float64) *Battery {
	b := &Battery{charge: charge, capacity: capacity}
	s.init(&b.Node, b, name, classID, tech)
	return b
}

func (b *Battery) Charge() float64   { return b.charge }
func (b *Battery) Capacity() float64 { return b.capacity }

// Tool is an item with a battery slot (a flashlight, a scanner).
type Tool struct {
	Item
}

func (s *Scene) NewTool(name, classID string, tech entity.TechType) *Tool {
	t := &Tool{}
	s.init(&t.Node, t, name, classID, tech)
	return t
}

func (t *Tool) InstalledBattery() host.Object {
	for _, c := range t.children {
		if _, ok := c.(*Battery); ok && c.Alive() {
			return c
		}
	}
	return nil
}

type Plant struct {
	Item
	growth float64
}

func (s *Scene) NewPlant(name, classID string, tech entity.TechType, growth float64) *Plant {
	p := &Plant{growth: growth}
	s.init(&p.Node, p, name, classID, tech)
	return p
}

func (p *Plant) GrowthProgress() float64 { return p.growth }

// Creature is a small pickupable animal that can live in a water park.
type Creature struct {
	Item
	age       float64
	mature    bool
	nextBreed float64
	updates   int
}

func (s *Scene) NewCreature(name, classID string, tech entity.TechType, age float64) *Creature {
	c := &Creature{age: age}
	s.init(&c.Node, c, name, classID, tech)
	return c
}

func (c *Creature) Age() float64           { return c.age }
func (c *Creature) Mature() bool           { return c.mature }
func (c *Creature) NextBreedTime() float64 { return c.nextBreed }
func (c *Creature) ManagedUpdates() int    { return c.updates }

// ManagedUpdate refreshes derived state the way the engine's first update does.
func (c *Creature) ManagedUpdate() {
	c.updates++
	c.mature = c.age >= 1
	if c.mature && c.nextBreed == 0 {
		c.nextBreed = c.age + 0.5
	}
}

type Sign struct {
	Node
	text  string
	scale int
}

func (s *Scene) NewSign(name, classID string, tech entity.TechType, text string) *Sign {
	sg := &Sign{text: text}
	s.init(&sg.Node, sg, name, classID, tech)
	return sg
}

func (sg *Sign) Text() string    { return sg.text }
func (sg *Sign) ScaleIndex() int { return sg.scale }

type Locker struct {
	Node
}

func (s *Scene) NewLocker(name, classID string, tech entity.TechType) *Locker {
	l := &Locker{}
	s.init(&l.Node, l, name, classID, tech)
	return l
}

func (l *Locker) StoredItems() []host.Object { return l.Children() }

// WaterPark is an enclosure; dropped items go under its items_root child.
type WaterPark struct {
	Node
	itemsRoot *Node
	capacity  int
}

func (s *Scene) NewWaterPark(name, classID string, tech entity.TechType) *WaterPark {
	w := &WaterPark{capacity: 10}
	s.init(&w.Node, w, name, classID, tech)
	w.itemsRoot = s.NewNode("items_root", "", entity.TechTypeNone)
	s.Attach(w, w.itemsRoot)
	return w
}

func (w *WaterPark) ItemsRoot() *Node        { return w.itemsRoot }
func (w *WaterPark) EnclosureCapacity() int { return w.capacity }

// Pipe is an oxygen pipe segment. Pipes connect to a parent pipe, the chain
// root has none.
type Pipe struct {
	Node
	connParent *Pipe
	ghost      host.PipeConnection

	RootUID   string
	ParentUID string
}

func (s *Scene) NewPipe(name, classID string, tech entity.TechType) *Pipe {
	p := &Pipe{}
	s.init(&p.Node, p, name, classID, tech)
	return p
}

// ConnectTo makes parent the pipe this one hangs from.
func (p *Pipe) ConnectTo(parent *Pipe) { p.connParent = parent }

// SetGhostParent sets the connection the placement ghost snapped to.
func (p *Pipe) SetGhostParent(c host.PipeConnection) { p.ghost = c }

func (p *Pipe) GhostParent() host.PipeConnection { return p.ghost }

func (p *Pipe) SetChainIDs(rootID, parentID entity.ID) {
	p.RootUID = rootID.String()
	p.ParentUID = parentID.String()
}

func (p *Pipe) Object() host.Object { return p }

func (p *Pipe) Root() host.PipeConnection {
	r := p
	for r.connParent != nil {
		r = r.connParent
	}
	return r
}

func (p *Pipe) AttachPoint() entity.Vec3 {
	return p.WorldTransform().Position
}

type Vehicle struct {
	Node
	piloted      bool
	effect       string
	endPilotRuns int
}

func (s *Scene) NewVehicle(name, classID string, tech entity.TechType, destructionEffect string) *Vehicle {
	v := &Vehicle{effect: destructionEffect}
	s.init(&v.Node, v, name, classID, tech)
	v.level = host.CellGlobal
	return v
}

func (v *Vehicle) Piloted() bool { return v.piloted }

func (v *Vehicle) EndPilotMode() {
	v.endPilotRuns++
	v.piloted = false
}

func (v *Vehicle) EndPilotRuns() int { return v.endPilotRuns }

func (v *Vehicle) DestructionEffect() (string, bool) {
	return v.effect, v.effect != ""
}

// Seat tracks a remote player sitting in a vehicle.
type Seat struct {
	Node
	occupied bool
	resets   int
}

func (s *Scene) NewSeat(name string) *Seat {
	st := &Seat{}
	s.init(&st.Node, st, name, "", entity.TechTypeNone)
	return st
}

func (st *Seat) Occupy()        { st.occupied = true }
func (st *Seat) Occupied() bool { return st.occupied }
func (st *Seat) Resets() int    { return st.resets }

func (st *Seat) ResetOccupant() {
	st.resets++
	st.occupied = false
}

// Structure is a base or a large vehicle with its own damage handling.
type Structure struct {
	Node
	health         float64
	maxHealth      float64
	oldHPPercent   float64
	dead           bool
	notified       []host.DamageInfo
	damageTaken    []host.DamageInfo
	killCalls      int
	HealthOnKill   float64
	PercentOnNotif float64
}

func (s *Scene) NewStructure(name, classID string, tech entity.TechType, health float64) *Structure {
	st := &Structure{health: health, maxHealth: health, oldHPPercent: 1}
	s.init(&st.Node, st, name, classID, tech)
	st.level = host.CellGlobal
	return st
}

func (st *Structure) Health() float64               { return st.health }
func (st *Structure) SetHealth(h float64)           { st.health = h }
func (st *Structure) SetOldHealthPercent(p float64) { st.oldHPPercent = p }
func (st *Structure) OldHealthPercent() float64     { return st.oldHPPercent }
func (st *Structure) Dead() bool                    { return st.dead }
func (st *Structure) KillCalls() int                { return st.killCalls }

func (st *Structure) NotifyDamageReceivers(info host.DamageInfo) {
	st.PercentOnNotif = st.oldHPPercent
	st.notified = append(st.notified, info)
}

func (st *Structure) Notified() []host.DamageInfo { return st.notified }

func (st *Structure) Kill() {
	st.killCalls++
	st.HealthOnKill = st.health
	st.dead = true
}

// OnTakeDamage records each call. The engine's handler branches on the
// previous health percentage: below 0.25 it runs the destruction branch.
func (st *Structure) OnTakeDamage(ctx context.Context, info host.DamageInfo) {
	st.damageTaken = append(st.damageTaken, info)
}

func (st *Structure) DamageTaken() []host.DamageInfo { return st.damageTaken }

// CriticalBranch reports which branch the engine's damage handler would take.
func (st *Structure) CriticalBranch() bool { return st.oldHPPercent < 0.25 }

// Equipment holds items in named slots, in slot declaration order.
type Equipment struct {
	Node
	slotNames []string
	slots     map[string]*Item
}

func (s *Scene) NewEquipment(name, classID string, slots ...string) *Equipment {
	eq := &Equipment{slotNames: slots, slots: map[string]*Item{}}
	s.init(&eq.Node, eq, name, classID, entity.TechTypeNone)
	return eq
}

// Equip puts an item (or any type embedding Item) into slot.
func (eq *Equipment) Equip(slot string, item host.Pickupable) {
	it := itemOf(item)
	if it == nil {
		return
	}
	eq.slots[slot] = it
	eq.scene.Attach(eq, item)
}

func (eq *Equipment) unequip(it *Item) {
	for k, v := range eq.slots {
		if v == it {
			delete(eq.slots, k)
		}
	}
}

func (eq *Equipment) Slots() []host.EquipmentSlot {
	out := make([]host.EquipmentSlot, 0, len(eq.slotNames))
	for _, name := range eq.slotNames {
		slot := host.EquipmentSlot{Name: name}
		if it, ok := eq.slots[name]; ok && it.Alive() {
			slot.Item = it.self.(host.Pickupable)
		}
		out = append(out, slot)
	}
	return out
}

func itemOf(p host.Pickupable) *Item {
	switch v := p.(type) {
	case *Item:
		return v
	case *Battery:
		return &v.Item
	case *Tool:
		return &v.Item
	case *Plant:
		return &v.Item
	case *Creature:
		return &v.Item
	}
	return nil
}

type ClawArm struct {
	Node
	exosuit host.Object
	side    host.ArmSide
	uses    []float64
}

func (s *Scene) NewClawArm(exosuit *Vehicle, side host.ArmSide) *ClawArm {
	a := &ClawArm{exosuit: exosuit, side: side}
	s.init(&a.Node, a, "claw_"+string(side), "", entity.TechTypeNone)
	s.Attach(exosuit, a)
	return a
}

func (a *ClawArm) Exosuit() host.Object { return a.exosuit }
func (a *ClawArm) Side() host.ArmSide   { return a.side }
func (a *ClawArm) PlayUse(ctx context.Context, cooldown float64) {
	a.uses = append(a.uses, cooldown)
	if a.scene.events != nil {
		a.scene.events.OnClawUsed(ctx, a, cooldown)
	}
}
func (a *ClawArm) Uses() []float64 { return a.uses }

type Player struct {
	Node
	container     host.Object
	piloting      *Vehicle
	FailGraceful  bool
	exitCalls     []bool
	detachedCalls int
}

// Enter puts the player inside a structure or vehicle.
func (p *Player) Enter(container host.Object) {
	p.container = container
	if container != nil {
		p.scene.Attach(container, p)
	}
}

// Pilot seats the player in v's pilot seat.
func (p *Player) Pilot(v *Vehicle) {
	p.Enter(v)
	p.piloting = v
	v.piloted = true
}

func (p *Player) CurrentContainer() host.Object {
	if !host.IsAlive(p.container) {
		return nil
	}
	return p.container
}

func (p *Player) ExitToNormal(graceful bool) bool {
	p.exitCalls = append(p.exitCalls, graceful)
	if graceful && p.FailGraceful {
		return false
	}
	if graceful && p.piloting != nil {
		p.container = nil
		p.scene.Attach(nil, p)
	}
	p.piloting = nil
	return true
}

func (p *Player) Detach() {
	p.detachedCalls++
	p.container = nil
	p.scene.Attach(nil, p)
}

func (p *Player) ExitCalls() []bool  { return p.exitCalls }
func (p *Player) DetachCalls() int   { return p.detachedCalls }
func (p *Player) Piloting() *Vehicle { return p.piloting }

var (
	_ host.Pickupable      = (*Item)(nil)
	_ host.Battery         = (*Battery)(nil)
	_ host.BatteryHolder   = (*Tool)(nil)
	_ host.Plantable       = (*Plant)(nil)
	_ host.Creature        = (*Creature)(nil)
	_ host.Refresher       = (*Creature)(nil)
	_ host.Sign            = (*Sign)(nil)
	_ host.Storage         = (*Locker)(nil)
	_ host.Enclosure       = (*WaterPark)(nil)
	_ host.PipeSegment     = (*Pipe)(nil)
	_ host.PipeConnection  = (*Pipe)(nil)
	_ host.Vehicle         = (*Vehicle)(nil)
	_ host.OccupantTracker = (*Seat)(nil)
	_ host.Structure       = (*Structure)(nil)
	_ host.Equipment       = (*Equipment)(nil)
	_ host.ClawArm         = (*ClawArm)(nil)
	_ host.Player          = (*Player)(nil)
)
