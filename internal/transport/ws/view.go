package ws

import (
	"sort"
	"sync"

	"worldsync/internal/entity"
)

// View is the authority's current set of replicated entity trees. New
// sessions receive it in WELCOME.
type View struct {
	mu    sync.Mutex
	roots map[entity.ID]entity.Entity
}

func NewView() *View {
	return &View{roots: map[entity.ID]entity.Entity{}}
}

// Put adds or replaces the tree rooted at e. A tree that was nested under
// another root is detached from it first. Roots parented to e stay.
func (v *View) Put(e entity.Entity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detachLocked(e.ID)
	v.roots[e.ID] = e
}

// Remove drops id and its descendants wherever they are, along with every
// root whose parent chain leads into the removed tree.
func (v *View) Remove(id entity.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	removed, ok := v.detachLocked(id)
	if !ok {
		return false
	}
	gone := map[entity.ID]bool{}
	for _, rid := range entity.IDs(removed) {
		gone[rid] = true
	}
	for changed := true; changed; {
		changed = false
		for rid, root := range v.roots {
			if !root.HasParent() || !gone[root.ParentID] {
				continue
			}
			delete(v.roots, rid)
			for _, n := range entity.IDs(root) {
				gone[n] = true
			}
			changed = true
		}
	}
	return true
}

// detachLocked takes the tree at id out of the view and returns it.
func (v *View) detachLocked(id entity.ID) (entity.Entity, bool) {
	if e, ok := v.roots[id]; ok {
		delete(v.roots, id)
		return e, true
	}
	for rid, root := range v.roots {
		if pruned, cut, ok := prune(root, id); ok {
			v.roots[rid] = pruned
			return cut, true
		}
	}
	return entity.Entity{}, false
}

func prune(e entity.Entity, id entity.ID) (entity.Entity, entity.Entity, bool) {
	for i, c := range e.Children {
		if c.ID == id {
			kids := make([]entity.Entity, 0, len(e.Children)-1)
			kids = append(kids, e.Children[:i]...)
			kids = append(kids, e.Children[i+1:]...)
			e.Children = kids
			return e, c, true
		}
		if pc, cut, ok := prune(c, id); ok {
			kids := append([]entity.Entity(nil), e.Children...)
			kids[i] = pc
			e.Children = kids
			return e, cut, true
		}
	}
	return e, entity.Entity{}, false
}

func (v *View) Has(id entity.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, root := range v.roots {
		found := false
		entity.Walk(root, func(n entity.Entity) bool {
			if n.ID == id {
				found = true
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// Snapshot returns the roots with every root after the root holding its
// parent, ties broken by id, so a peer can spawn them in order.
func (v *View) Snapshot() []entity.Entity {
	v.mu.Lock()
	defer v.mu.Unlock()

	ids := make([]entity.ID, 0, len(v.roots))
	owner := map[entity.ID]entity.ID{}
	for rid, root := range v.roots {
		ids = append(ids, rid)
		for _, n := range entity.IDs(root) {
			owner[n] = rid
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := make([]entity.Entity, 0, len(ids))
	seen := map[entity.ID]bool{}
	var emit func(rid entity.ID)
	emit = func(rid entity.ID) {
		if seen[rid] {
			return
		}
		seen[rid] = true
		root := v.roots[rid]
		if root.HasParent() {
			if p, ok := owner[root.ParentID]; ok && p != rid {
				emit(p)
			}
		}
		out = append(out, root)
	}
	for _, rid := range ids {
		emit(rid)
	}
	return out
}

func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.roots)
}
