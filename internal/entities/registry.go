// Package entities is the client's bookkeeping of replicated entities: which
// ids it knows about, where they came from, and which ones were destroyed
// remotely before they ever loaded here.
//
// Like the identity registry it is owned by the frame loop and holds no locks.
package entities

import "worldsync/internal/entity"

type Origin int

const (
	OriginUnknown Origin = iota
	// OriginLocal entities were created by an action of this client.
	OriginLocal
	// OriginReplicated entities were materialized from the authority.
	OriginReplicated
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginReplicated:
		return "replicated"
	default:
		return "unknown"
	}
}

type Registry struct {
	known   map[entity.ID]Origin
	pending map[entity.ID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		known:   map[entity.ID]Origin{},
		pending: map[entity.ID]struct{}{},
	}
}

// MarkAsSpawned records e and its whole child tree as created locally.
func (r *Registry) MarkAsSpawned(e entity.Entity) { r.mark(e, OriginLocal) }

// MarkReplicated records e and its whole child tree as received from the
// authority.
func (r *Registry) MarkReplicated(e entity.Entity) { r.mark(e, OriginReplicated) }

func (r *Registry) mark(e entity.Entity, origin Origin) {
	entity.Walk(e, func(c entity.Entity) bool {
		r.known[c.ID] = origin
		return true
	})
}

func (r *Registry) IsKnown(id entity.ID) bool {
	_, ok := r.known[id]
	return ok
}

func (r *Registry) Origin(id entity.ID) Origin { return r.known[id] }

// RemoveEntity drops the bookkeeping for id. Children are tracked by their
// own ids and are removed by their own destroy instructions.
func (r *Registry) RemoveEntity(id entity.ID) {
	delete(r.known, id)
}

// MarkForDeletion remembers that id was destroyed remotely while it had no
// local object, so a later arrival can be cancelled. Marking twice is a no-op.
func (r *Registry) MarkForDeletion(id entity.ID) {
	r.pending[id] = struct{}{}
}

func (r *Registry) WasMarkedForDeletion(id entity.ID) bool {
	_, ok := r.pending[id]
	return ok
}

// ConsumeDeletion reports whether id was pending deletion and clears the
// marker.
func (r *Registry) ConsumeDeletion(id entity.ID) bool {
	if _, ok := r.pending[id]; !ok {
		return false
	}
	delete(r.pending, id)
	return true
}

func (r *Registry) Len() int { return len(r.known) }

func (r *Registry) PendingDeletions() int { return len(r.pending) }
