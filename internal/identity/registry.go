// Package identity maps live engine objects to replicated entity ids.
//
// The registry is owned by the frame loop and is not safe for concurrent use.
package identity

import (
	"errors"

	"worldsync/internal/entity"
	"worldsync/internal/host"
)

var ErrNotFound = errors.New("entity not found")

type Registry struct {
	byID  map[entity.ID]host.Object
	byObj map[host.Object]entity.ID
}

func NewRegistry() *Registry {
	return &Registry{
		byID:  map[entity.ID]host.Object{},
		byObj: map[host.Object]entity.ID{},
	}
}

// GetOrCreate returns obj's id, generating one the first time obj is seen.
func (r *Registry) GetOrCreate(obj host.Object) entity.ID {
	if id, ok := r.byObj[obj]; ok {
		return id
	}
	id := entity.NewID()
	r.Assign(obj, id)
	return id
}

// Lookup is the object -> id back reference. It never creates ids.
func (r *Registry) Lookup(obj host.Object) (entity.ID, bool) {
	if obj == nil {
		return entity.NoID, false
	}
	id, ok := r.byObj[obj]
	return id, ok
}

// Assign binds id to obj. An id is held by one object at a time, so any
// previous holder of id, and any previous id of obj, are released.
func (r *Registry) Assign(obj host.Object, id entity.ID) {
	if prev, ok := r.byID[id]; ok && prev != obj {
		delete(r.byObj, prev)
	}
	if prevID, ok := r.byObj[obj]; ok && prevID != id {
		delete(r.byID, prevID)
	}
	r.byID[id] = obj
	r.byObj[obj] = id
}

// TryResolve finds the live object holding id. Replicated ids routinely
// reference objects that are not loaded, so a miss is not an error. A
// binding whose object the engine has destroyed is dropped.
func (r *Registry) TryResolve(id entity.ID) (host.Object, bool) {
	obj, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	if !host.IsAlive(obj) {
		r.Forget(id)
		return nil, false
	}
	return obj, true
}

// Resolve is TryResolve for callers that want an error.
func (r *Registry) Resolve(id entity.ID) (host.Object, error) {
	obj, ok := r.TryResolve(id)
	if !ok {
		return nil, ErrNotFound
	}
	return obj, nil
}

func (r *Registry) Forget(id entity.ID) {
	obj, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if r.byObj[obj] == id {
		delete(r.byObj, obj)
	}
}

func (r *Registry) Len() int { return len(r.byID) }
