// Package scene is a headless, in-memory engine. It implements the host
// interfaces closely enough to drive the sync core from tests and from the
// demo client: an object graph, deferred end-of-frame destruction and an
// event feed for local actions.
package scene

import (
	"context"
	"fmt"

	"worldsync/internal/entity"
	"worldsync/internal/host"
)

type Effect struct {
	ClassID string
	At      entity.Transform
}

type Scene struct {
	roots   []noder
	player  *Player
	events  host.Events
	pending []noder

	Effects []Effect
}

func New() *Scene {
	s := &Scene{}
	p := &Player{}
	s.init(&p.Node, p, "Player", "player", "PLAYER")
	p.level = host.CellGlobal
	s.player = p
	return s
}

// Subscribe installs the sync core's event sink.
func (s *Scene) Subscribe(ev host.Events) { s.events = ev }

func (s *Scene) init(n *Node, self noder, name, classID string, tech entity.TechType) {
	n.scene = s
	n.self = self
	n.name = name
	n.classID = classID
	n.tech = tech
	n.alive = true
	n.rot = entity.IdentityQuat
	n.scale = entity.Vec3{1, 1, 1}
	n.level = host.CellNear
	s.roots = append(s.roots, self)
}

// Attach moves child under parent. A nil parent moves it to the world root.
func (s *Scene) Attach(parent, child host.Object) {
	c := child.(noder).node()
	c.detach()
	if parent == nil {
		s.roots = append(s.roots, c.self)
		return
	}
	p := parent.(noder).node()
	c.parent = p.self
	p.children = append(p.children, c.self)
}

// Roots lists live top-level objects.
func (s *Scene) Roots() []host.Object {
	out := make([]host.Object, 0, len(s.roots))
	for _, r := range s.roots {
		out = append(out, r)
	}
	return out
}

func (s *Scene) Player() host.Player { return s.player }

func (s *Scene) LocalPlayer() *Player { return s.player }

func (s *Scene) Spawn(ctx context.Context, e entity.Entity, parent host.Object) (host.Object, error) {
	if e.ClassID == "" {
		return nil, fmt.Errorf("spawn %s: missing class id", e.ID)
	}
	if parent != nil && !parent.Alive() {
		return nil, fmt.Errorf("spawn %s: parent %s is gone", e.ID, parent.Name())
	}
	var obj noder
	switch e.Kind {
	case entity.KindInventoryItem, entity.KindInstalledModule, entity.KindPrefabChild:
		obj = s.NewItem(e.ClassID, e.ClassID, e.TechType)
	default:
		obj = s.NewNode(e.ClassID, e.ClassID, e.TechType)
	}
	n := obj.node()
	if e.Transform != nil {
		n.pos = e.Transform.Position
		n.rot = e.Transform.Rotation
		n.scale = e.Transform.Scale
	}
	if e.Kind == entity.KindGlobalRoot {
		n.level = host.CellGlobal
	}
	rec := e
	rec.Children = nil
	n.SpawnedFrom = &rec
	if parent != nil {
		s.Attach(parent, obj)
	}
	return obj, nil
}

func (s *Scene) Destroy(obj host.Object) {
	if !host.IsAlive(obj) {
		return
	}
	s.pending = append(s.pending, obj.(noder))
}

func (s *Scene) DestroyNow(ctx context.Context, obj host.Object) {
	if !host.IsAlive(obj) {
		return
	}
	s.remove(ctx, obj.(noder))
}

// EndFrame runs destruction queued during the frame.
func (s *Scene) EndFrame(ctx context.Context) {
	pending := s.pending
	s.pending = nil
	for _, o := range pending {
		if o.Alive() {
			s.remove(ctx, o)
		}
	}
}

// PendingDestroys reports how many objects wait for the end of the frame.
func (s *Scene) PendingDestroys() int { return len(s.pending) }

func (s *Scene) remove(ctx context.Context, o noder) {
	children := append([]noder(nil), o.node().children...)
	for _, c := range children {
		if c.Alive() {
			s.remove(ctx, c)
		}
	}
	if p, ok := o.(host.Pickupable); ok {
		p.OnDestroy(ctx)
	}
	n := o.node()
	n.alive = false
	n.detach()
}

func (s *Scene) SpawnEffect(classID string, at entity.Transform) {
	s.Effects = append(s.Effects, Effect{ClassID: classID, At: at})
}

var _ host.World = (*Scene)(nil)
