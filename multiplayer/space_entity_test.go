package multiplayer

import (
	"testing"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

func newTestEntity(id uint64) *SpaceEntity {
	return NewSpaceEntity(id, common.SpaceEntityTypeObject, 1, 1, true, false)
}

// Round-trip law: Serialize(E).then(Deserialize) preserves id, type,
// transferable/persistent flags, owner, parent, transform, and committed
// components (spec.md §8).
func TestSpaceEntitySnapshotRoundTrip(t *testing.T) {
	e := newTestEntity(100)
	e.SetName("Origin", nil)
	e.SetPosition(common.Vector3{X: 1, Y: 2, Z: 3}, nil)
	e.SetRotation(common.Vector4{X: 0, Y: 0, Z: 0, W: 1}, nil)
	comp, err := e.AddComponent(common.ComponentTypeTransform)
	if err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	comp.SetProperty(1, common.NewFloat32(9.5))
	e.CommitPendingPatch()

	msg := e.ToMessage()
	got := NewSpaceEntityFromMessage(msg, 1)

	if got.ID() != e.ID() || got.Type() != e.Type() {
		t.Fatalf("id/type mismatch after round-trip")
	}
	if got.IsTransferable() != e.IsTransferable() || got.IsPersistent() != e.IsPersistent() {
		t.Fatalf("transferable/persistent mismatch after round-trip")
	}
	if got.OwnerID() != e.OwnerID() {
		t.Fatalf("ownerId mismatch after round-trip")
	}
	if got.Name() != e.Name() {
		t.Errorf("Name() = %q, want %q", got.Name(), e.Name())
	}
	if got.Position() != e.Position() {
		t.Errorf("Position() = %+v, want %+v", got.Position(), e.Position())
	}
	if got.Rotation() != e.Rotation() {
		t.Errorf("Rotation() = %+v, want %+v", got.Rotation(), e.Rotation())
	}
	gotComp, ok := got.Component(comp.ID())
	if !ok {
		t.Fatalf("expected component %d to survive round-trip", comp.ID())
	}
	if v := gotComp.GetProperty(1); v.GetFloat() != 9.5 {
		t.Errorf("component property did not survive round-trip: %+v", v)
	}
}

// applyPatch(ε), an empty patch with no component changes, no parent
// update, and destroy=false, is a no-op.
func TestApplyEmptyPatchIsNoOp(t *testing.T) {
	e := newTestEntity(1)
	e.SetName("Before", nil)
	e.CommitPendingPatch()

	empty := wire.ObjectPatch{ID: e.ID(), OwnerID: e.OwnerID()}
	if !empty.IsEmpty() {
		t.Fatalf("test setup error: patch is not actually empty")
	}

	pu := e.ApplyRemotePatch(empty)
	if pu != nil {
		t.Errorf("expected no parent update from an empty patch")
	}
	if e.Name() != "Before" {
		t.Errorf("Name changed after applying an empty patch")
	}
}

// SetParent(p) followed by RemoveParent() on the same tick collapses to no
// change: the entity remains parentless, exactly as before.
func TestSetParentThenRemoveParentCollapses(t *testing.T) {
	e := newTestEntity(2)
	if e.ParentID() != nil {
		t.Fatalf("expected a fresh entity to start parentless")
	}
	e.SetParentID(999)
	e.RemoveParent()
	if e.ParentID() != nil {
		t.Errorf("ParentID() = %v, want nil after SetParent+RemoveParent", e.ParentID())
	}
	patch := e.StagePendingPatch()
	if patch.ParentChanged && patch.ParentID != nil {
		t.Errorf("expected the collapsed parent change to still resolve to nil, got %v", patch.ParentID)
	}
}

// A ScriptData component count per entity is <= 1 at all times.
func TestDuplicateScriptComponentRejected(t *testing.T) {
	e := newTestEntity(3)
	if _, err := e.AddComponent(common.ComponentTypeScriptData); err != nil {
		t.Fatalf("first AddComponent(ScriptData) should succeed: %v", err)
	}
	if _, err := e.AddComponent(common.ComponentTypeScriptData); err == nil {
		t.Fatalf("expected a second ScriptData component to be rejected")
	}
}

// AddComponent never allocates a colliding id.
func TestComponentIDsAreUnique(t *testing.T) {
	e := newTestEntity(4)
	seen := make(map[uint16]bool)
	for i := 0; i < 16; i++ {
		c, err := e.AddComponent(common.ComponentTypeTransform)
		if err != nil {
			t.Fatalf("AddComponent: %v", err)
		}
		if seen[c.ID()] {
			t.Fatalf("component id %d allocated twice", c.ID())
		}
		seen[c.ID()] = true
	}
}

// findSpaceEntityById(createEntity(...).id) returns the same pointer.
func TestFindByIDReturnsSamePointer(t *testing.T) {
	coll := NewEntityCollection()
	e := newTestEntity(5)
	coll.Add(e)

	got, ok := coll.Get(e.ID())
	if !ok || got != e {
		t.Errorf("Get(%d) did not return the same pointer", e.ID())
	}
}
