package offline

import (
	"testing"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
)

// Scenario 1: offline create-parent-child.
func TestCreateParentChild(t *testing.T) {
	e := New(nil, nil)

	var a, b *multiplayer.SpaceEntity
	e.CreateEntity("A", common.Vector3{X: 1, Y: 2, Z: 3}, common.Vector4{W: 1}, nil, func(se *multiplayer.SpaceEntity) { a = se })
	if a == nil {
		t.Fatalf("expected A to be created")
	}
	aid := a.ID()
	e.CreateEntity("B", common.Vector3{X: 10, Y: 0, Z: 0}, common.Vector4{W: 1}, &aid, func(se *multiplayer.SpaceEntity) { b = se })
	if b == nil {
		t.Fatalf("expected B to be created")
	}

	roots := e.GetRootHierarchyEntities()
	if len(roots) != 1 || roots[0].ID() != a.ID() {
		t.Errorf("rootHierarchy = %v, want [A]", roots)
	}
	children := a.ChildEntities()
	if len(children) != 1 || children[0].ID() != b.ID() {
		t.Errorf("A.childEntities = %v, want [B]", children)
	}
	if b.Parent() == nil || b.Parent().ID() != a.ID() {
		t.Errorf("B.parent != A")
	}

	want := common.Vector3{
		X: a.Position().X + b.Position().X,
		Y: a.Position().Y + b.Position().Y,
		Z: a.Position().Z + b.Position().Z,
	}
	got := b.GlobalPosition()
	if got != want {
		t.Errorf("B.globalPosition = %+v, want %+v", got, want)
	}
}

// Scenario 2: offline destroy-parent-reparents-children.
func TestDestroyParentReparentsChildren(t *testing.T) {
	e := New(nil, nil)

	var a, b *multiplayer.SpaceEntity
	e.CreateEntity("A", common.Vector3{}, common.Vector4{W: 1}, nil, func(se *multiplayer.SpaceEntity) { a = se })
	aid := a.ID()
	e.CreateEntity("B", common.Vector3{}, common.Vector4{W: 1}, &aid, func(se *multiplayer.SpaceEntity) { b = se })

	ok := false
	e.DestroyEntity(a, func(result bool) { ok = result })
	if !ok {
		t.Fatalf("expected DestroyEntity to report success")
	}

	if b.Parent() != nil {
		t.Errorf("expected B.parent == nil after A is destroyed")
	}
	found := false
	for _, r := range e.GetRootHierarchyEntities() {
		if r.ID() == b.ID() {
			found = true
		}
	}
	if !found {
		t.Errorf("expected B in rootHierarchy after A is destroyed")
	}
	if _, ok := e.FindSpaceEntityByID(a.ID()); ok {
		t.Errorf("expected A to be absent after destruction")
	}
}

// FetchAllEntitiesAndPopulateBuffers loads a pre-built scene synchronously
// and invokes both fetch callbacks before returning (spec.md §4.6).
func TestFetchAllEntitiesFromScene(t *testing.T) {
	scene := SceneDescription{
		SpaceID: "space-1",
		Entities: []sceneEntity{
			{ID: 1, Type: common.SpaceEntityTypeObject, OwnerID: 1, Components: map[uint16]sceneComponent{}},
			{ID: 2, Type: common.SpaceEntityTypeObject, OwnerID: 1, Components: map[uint16]sceneComponent{}},
		},
	}
	e := New(nil, &scene)

	started := false
	completeCount := -1
	e.FetchAllEntitiesAndPopulateBuffers("space-1", func() { started = true }, func(n int) { completeCount = n })

	if !started {
		t.Errorf("expected startedCb to fire")
	}
	if completeCount != 2 {
		t.Errorf("completeCb(%d), want completeCb(2)", completeCount)
	}
	if len(e.Entities()) != 2 {
		t.Errorf("numEntities = %d, want 2", len(e.Entities()))
	}
}
