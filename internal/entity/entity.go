package entity

import (
	"fmt"
	"strings"
)

// Kind is the variant discriminant of an Entity.
type Kind uint8

const (
	KindWorld Kind = iota + 1
	KindPlacedWorld
	KindGlobalRoot
	KindInventoryItem
	KindOxygenPipe
	KindPrefabChild
	KindInstalledModule
)

var kindNames = map[Kind]string{
	KindWorld:           "WORLD",
	KindPlacedWorld:     "PLACED_WORLD",
	KindGlobalRoot:      "GLOBAL_ROOT",
	KindInventoryItem:   "INVENTORY_ITEM",
	KindOxygenPipe:      "OXYGEN_PIPE",
	KindPrefabChild:     "PREFAB_CHILD",
	KindInstalledModule: "INSTALLED_MODULE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("invalid entity kind %d", k)
	}
	return []byte(s), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("invalid entity kind %q", b)
}

// Positioned reports whether entities of this kind carry their own transform.
func (k Kind) Positioned() bool {
	switch k {
	case KindWorld, KindPlacedWorld, KindGlobalRoot, KindOxygenPipe:
		return true
	}
	return false
}

// AlwaysVisible reports whether the entity is materialized regardless of
// which spatial cells are loaded.
func (k Kind) AlwaysVisible() bool {
	return k == KindGlobalRoot
}

// PipeRefs ties an oxygen pipe segment to its chain.
type PipeRefs struct {
	RootPipeID   ID   `json:"root_pipe_id"`
	ParentPipeID ID   `json:"parent_pipe_id"`
	AttachPoint  Vec3 `json:"attach_point"`
}

// Entity is the network record for a replicated object. It is built fresh
// for every snapshot and never mutated after it has been handed out.
type Entity struct {
	Kind            Kind       `json:"kind"`
	ID              ID         `json:"id"`
	ClassID         string     `json:"class_id"`
	TechType        TechType   `json:"tech_type"`
	Transform       *Transform `json:"transform,omitempty"`
	Level           int        `json:"level"`
	SpawnedByServer bool       `json:"spawned_by_server"`
	Metadata        *Metadata  `json:"metadata,omitempty"`
	ParentID        ID         `json:"parent_id"`
	Children        []Entity   `json:"children"`

	Pipe           *PipeRefs `json:"pipe,omitempty"`
	ComponentIndex int       `json:"component_index,omitempty"`
	Slot           string    `json:"slot,omitempty"`
}

func (e Entity) HasParent() bool { return e.ParentID != NoID }

func (e Entity) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s id=%s class=%s tech=%s", e.Kind, e.ID, e.ClassID, e.TechType)
	if e.HasParent() {
		fmt.Fprintf(&b, " parent=%s", e.ParentID)
	}
	if e.Transform != nil {
		fmt.Fprintf(&b, " %s@%v", e.Transform.Space, e.Transform.Position)
	}
	if e.Metadata != nil {
		fmt.Fprintf(&b, " meta=%s", e.Metadata.Type)
	}
	if e.Kind == KindPrefabChild {
		fmt.Fprintf(&b, " index=%d", e.ComponentIndex)
	}
	if e.Slot != "" {
		fmt.Fprintf(&b, " slot=%s", e.Slot)
	}
	if len(e.Children) > 0 {
		fmt.Fprintf(&b, " children=%d", len(e.Children))
	}
	b.WriteByte(']')
	return b.String()
}

func NewWorld(t Transform, level int, classID string, spawnedByServer bool, id ID, tech TechType, meta *Metadata, parent ID, children []Entity) Entity {
	return positioned(KindWorld, t, level, classID, spawnedByServer, id, tech, meta, parent, children)
}

func NewPlacedWorld(t Transform, level int, classID string, spawnedByServer bool, id ID, tech TechType, meta *Metadata, parent ID, children []Entity) Entity {
	return positioned(KindPlacedWorld, t, level, classID, spawnedByServer, id, tech, meta, parent, children)
}

func NewGlobalRoot(t Transform, level int, classID string, spawnedByServer bool, id ID, tech TechType, meta *Metadata, parent ID, children []Entity) Entity {
	return positioned(KindGlobalRoot, t, level, classID, spawnedByServer, id, tech, meta, parent, children)
}

func NewOxygenPipe(t Transform, level int, classID string, spawnedByServer bool, id ID, tech TechType, meta *Metadata, parent ID, children []Entity, pipe PipeRefs) Entity {
	e := positioned(KindOxygenPipe, t, level, classID, spawnedByServer, id, tech, meta, parent, children)
	e.Pipe = &pipe
	return e
}

func NewInventoryItem(id ID, classID string, tech TechType, meta *Metadata, parent ID, children []Entity) Entity {
	return Entity{
		Kind:     KindInventoryItem,
		ID:       id,
		ClassID:  classID,
		TechType: tech,
		Metadata: meta,
		ParentID: parent,
		Children: nonNil(children),
	}
}

func NewPrefabChild(id ID, classID string, tech TechType, index int, meta *Metadata, parent ID) Entity {
	return Entity{
		Kind:           KindPrefabChild,
		ID:             id,
		ClassID:        classID,
		TechType:       tech,
		ComponentIndex: index,
		Metadata:       meta,
		ParentID:       parent,
		Children:       []Entity{},
	}
}

func NewInstalledModule(slot, classID string, id ID, tech TechType, meta *Metadata, parent ID, children []Entity) Entity {
	return Entity{
		Kind:     KindInstalledModule,
		ID:       id,
		ClassID:  classID,
		TechType: tech,
		Slot:     slot,
		Metadata: meta,
		ParentID: parent,
		Children: nonNil(children),
	}
}

func positioned(kind Kind, t Transform, level int, classID string, spawnedByServer bool, id ID, tech TechType, meta *Metadata, parent ID, children []Entity) Entity {
	return Entity{
		Kind:            kind,
		ID:              id,
		ClassID:         classID,
		TechType:        tech,
		Transform:       &t,
		Level:           level,
		SpawnedByServer: spawnedByServer,
		Metadata:        meta,
		ParentID:        parent,
		Children:        nonNil(children),
	}
}

func nonNil(children []Entity) []Entity {
	if children == nil {
		return []Entity{}
	}
	return children
}

// Walk visits e and its descendants depth first, parents before children.
// Returning false from fn skips the node's children.
func Walk(e Entity, fn func(Entity) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		Walk(c, fn)
	}
}

// IDs lists every id in the tree in Walk order.
func IDs(e Entity) []ID {
	var out []ID
	Walk(e, func(n Entity) bool {
		out = append(out, n.ID)
		return true
	})
	return out
}
