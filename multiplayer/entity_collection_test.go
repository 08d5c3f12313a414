package multiplayer

import (
	"testing"

	"github.com/magnopus-opensource/csp-realtime/common"
)

// Invariant: for every entity E with parentId=p, either p resolves to an
// entity whose childEntities contains E, or E is in rootHierarchy.
func TestEntityCollectionOutOfOrderArrival(t *testing.T) {
	coll := NewEntityCollection()

	child := newTestEntity(2)
	child.SetParentID(1)
	coll.Add(child) // parent not seen yet: child should be a root for now.

	roots := coll.RootEntities()
	if len(roots) != 1 || roots[0].ID() != child.ID() {
		t.Fatalf("expected child to be a temporary root before its parent arrives")
	}

	parent := newTestEntity(1)
	coll.Add(parent) // arriving late should re-resolve the waiting child.

	if child.Parent() == nil || child.Parent().ID() != parent.ID() {
		t.Fatalf("expected the late-arriving parent to be resolved onto the child")
	}
	found := false
	for _, c := range parent.ChildEntities() {
		if c.ID() == child.ID() {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected parent.childEntities to contain the child")
	}
	if len(coll.RootEntities()) != 1 || coll.RootEntities()[0].ID() != parent.ID() {
		t.Errorf("expected only the parent to remain a root")
	}
}

// Invariant: destroying a parent reparents its children rather than
// destroying them, and after the next tick no reference to the destroyed
// entity remains in any collection.
func TestEntityCollectionRemoveReparentsChildren(t *testing.T) {
	coll := NewEntityCollection()
	parent := newTestEntity(1)
	child := newTestEntity(2)
	child.SetParentID(1)
	coll.Add(parent)
	coll.Add(child)

	coll.Remove(parent)

	if child.Parent() != nil {
		t.Errorf("expected child to become parentless after its parent is removed")
	}
	if _, ok := coll.Get(parent.ID()); ok {
		t.Errorf("expected the removed parent to be absent from the collection")
	}
	found := false
	for _, r := range coll.RootEntities() {
		if r.ID() == child.ID() {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the orphaned child to be promoted to root")
	}
}

// Invariant: exactly one of Avatars or Objects contains E (the one matching
// its type), and Entities always contains E.
func TestEntityCollectionAvatarObjectPartition(t *testing.T) {
	coll := NewEntityCollection()

	obj := newTestEntity(1)
	coll.Add(obj)

	avatar := newTestEntity(2)
	if _, err := avatar.AddComponent(common.ComponentTypeAvatar); err != nil {
		t.Fatalf("AddComponent(AvatarData): %v", err)
	}
	avatar.CommitPendingPatch()
	coll.Add(avatar)

	if len(coll.Objects()) != 1 || coll.Objects()[0].ID() != obj.ID() {
		t.Errorf("Objects() = %v, want [obj]", coll.Objects())
	}
	if len(coll.Avatars()) != 1 || coll.Avatars()[0].ID() != avatar.ID() {
		t.Errorf("Avatars() = %v, want [avatar]", coll.Avatars())
	}
	if len(coll.Entities()) != 2 {
		t.Fatalf("Entities() = %d, want 2", len(coll.Entities()))
	}
}
