package scene

import (
	"worldsync/internal/entity"
	"worldsync/internal/host"
)

type noder interface {
	host.Object
	node() *Node
}

// Node is a plain engine object. Every other scene type embeds it.
type Node struct {
	scene *Scene
	self  noder

	name     string
	classID  string
	tech     entity.TechType
	parent   noder
	children []noder
	alive    bool
	level    host.CellLevel

	pos   entity.Vec3
	rot   entity.Quat
	scale entity.Vec3

	remoteControlled bool

	// SpawnedFrom is the entity this node was materialized from, if any.
	SpawnedFrom *entity.Entity
}

func (n *Node) node() *Node { return n }

func (n *Node) Name() string              { return n.name }
func (n *Node) Alive() bool               { return n.alive }
func (n *Node) ClassID() string           { return n.classID }
func (n *Node) TechType() entity.TechType { return n.tech }
func (n *Node) CellLevel() host.CellLevel { return n.level }

func (n *Node) Parent() host.Object {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) Children() []host.Object {
	out := make([]host.Object, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

func (n *Node) LocalTransform() entity.Transform {
	return entity.LocalTransform(n.pos, n.rot, n.scale)
}

func (n *Node) WorldTransform() entity.Transform {
	pos := n.pos
	for p := n.parent; p != nil; p = p.node().parent {
		pp := p.node().pos
		pos = entity.Vec3{pos[0] + pp[0], pos[1] + pp[1], pos[2] + pp[2]}
	}
	return entity.WorldTransform(pos, n.rot, n.scale)
}

func (n *Node) SetCellLevel(l host.CellLevel) { n.level = l }

func (n *Node) SetPosition(p entity.Vec3) { n.pos = p }

func (n *Node) SetRotation(q entity.Quat) { n.rot = q }

func (n *Node) MarkRemoteControlled()  { n.remoteControlled = true }
func (n *Node) RemoteControlled() bool { return n.remoteControlled }
func (n *Node) ClearRemoteControl()    { n.remoteControlled = false }
func (n *Node) Scene() *Scene          { return n.scene }

// Child returns the first direct child with the given name.
func (n *Node) Child(name string) host.Object {
	for _, c := range n.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func (n *Node) detach() {
	if n.parent != nil {
		p := n.parent.node()
		for i, c := range p.children {
			if c == n.self {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
		n.parent = nil
		return
	}
	s := n.scene
	for i, c := range s.roots {
		if c == n.self {
			s.roots = append(s.roots[:i], s.roots[i+1:]...)
			break
		}
	}
}
