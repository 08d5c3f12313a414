package multiplayer

import (
	"sync"

	"github.com/magnopus-opensource/csp-realtime/common"
)

// EntityCollection is the engine-wide registry of live entities: the full
// set keyed by id, the Avatar/Object sub-views used by callers that only
// care about one kind, and the root-hierarchy slice of entities with no
// parent. Both RealtimeEngine implementations embed one (spec.md §3, §4.4).
type EntityCollection struct {
	mu sync.RWMutex

	entities map[uint64]*SpaceEntity
	avatars  map[uint64]*SpaceEntity
	objects  map[uint64]*SpaceEntity
	roots    map[uint64]*SpaceEntity
}

func NewEntityCollection() *EntityCollection {
	return &EntityCollection{
		entities: make(map[uint64]*SpaceEntity),
		avatars:  make(map[uint64]*SpaceEntity),
		objects:  make(map[uint64]*SpaceEntity),
		roots:    make(map[uint64]*SpaceEntity),
	}
}

// Add registers e and resolves its hierarchy against the entities already
// present; it also re-checks every existing orphan in case e is the parent
// they were waiting on (entities can arrive out of creation order over the
// wire, spec.md §8 scenario 1).
func (c *EntityCollection) Add(e *SpaceEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entities[e.id] = e
	if e.HasComponentOfType(common.ComponentTypeAvatar) {
		c.avatars[e.id] = e
	} else {
		c.objects[e.id] = e
	}
	c.resolveLocked(e)
	for _, other := range c.entities {
		if other != e {
			c.resolveLocked(other)
		}
	}
}

// resolveLocked links e to its parent if parentID names a known entity,
// and otherwise leaves it a root; callers hold c.mu.
func (c *EntityCollection) resolveLocked(e *SpaceEntity) {
	pid := e.ParentID()
	if pid == nil {
		if e.Parent() != nil {
			e.Parent().removeChild(e)
			e.linkChild(nil)
		}
		c.roots[e.id] = e
		return
	}
	parent, ok := c.entities[*pid]
	if !ok {
		c.roots[e.id] = e
		return
	}
	if e.Parent() == parent {
		return
	}
	if old := e.Parent(); old != nil {
		old.removeChild(e)
	}
	e.linkChild(parent)
	parent.addChild(e)
	delete(c.roots, e.id)
}

// Resolve re-evaluates e's hierarchy; called by an engine after it applies
// a remote patch that changed ParentID (spec.md §4.4).
func (c *EntityCollection) Resolve(e *SpaceEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveLocked(e)
}

// Remove makes e's children roots, matching the destroy patch the online
// engine sends, then deletes e from every view (spec.md §8 scenario 2,
// "destroying a parent reparents its children rather than destroying
// them").
func (c *EntityCollection) Remove(e *SpaceEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, child := range e.ChildEntities() {
		child.mu.Lock()
		child.parentID = nil
		child.mu.Unlock()
		c.resolveLocked(child)
	}

	if p := e.Parent(); p != nil {
		p.removeChild(e)
	}
	delete(c.entities, e.id)
	delete(c.avatars, e.id)
	delete(c.objects, e.id)
	delete(c.roots, e.id)
}

func (c *EntityCollection) Get(id uint64) (*SpaceEntity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[id]
	return e, ok
}

func (c *EntityCollection) Entities() []*SpaceEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SpaceEntity, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e)
	}
	return out
}

func (c *EntityCollection) Avatars() []*SpaceEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SpaceEntity, 0, len(c.avatars))
	for _, e := range c.avatars {
		out = append(out, e)
	}
	return out
}

func (c *EntityCollection) Objects() []*SpaceEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SpaceEntity, 0, len(c.objects))
	for _, e := range c.objects {
		out = append(out, e)
	}
	return out
}

func (c *EntityCollection) RootEntities() []*SpaceEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SpaceEntity, 0, len(c.roots))
	for _, e := range c.roots {
		out = append(out, e)
	}
	return out
}

func (c *EntityCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}
