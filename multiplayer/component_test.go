package multiplayer

import (
	"testing"

	"github.com/magnopus-opensource/csp-realtime/common"
)

func TestComponentSetGetPropertyStagedBeforeCommit(t *testing.T) {
	e := newTestEntity(1)
	c, err := e.AddComponent(common.ComponentTypeTransform)
	if err != nil {
		t.Fatalf("AddComponent: %v", err)
	}

	c.SetProperty(1, common.NewInt64(42))
	if got := c.GetProperty(1); got.GetKind() != common.ReplicatedValueTypeInvalid {
		t.Errorf("GetProperty should return only committed values, so Invalid before commit, got %v", got)
	}

	e.CommitPendingPatch()
	if got := c.GetProperty(1); got.GetInt() != 42 {
		t.Errorf("GetProperty should see committed writes after commit, got %v", got)
	}
}

func TestComponentRemoveIsSoftUntilCommit(t *testing.T) {
	e := newTestEntity(1)
	c, err := e.AddComponent(common.ComponentTypeTransform)
	if err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	e.CommitPendingPatch()

	c.Remove()
	if _, ok := e.Component(c.ID()); !ok {
		t.Fatalf("expected Remove to be soft: component should still be present before commit")
	}

	e.CommitPendingPatch()
	if _, ok := e.Component(c.ID()); ok {
		t.Errorf("expected the component to be gone after the removal commits")
	}
}

func TestComponentOnLocalDeleteFiresOnce(t *testing.T) {
	e := newTestEntity(1)
	c, err := e.AddComponent(common.ComponentTypeTransform)
	if err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	e.CommitPendingPatch()

	calls := 0
	c.SetOnLocalDelete(func() { calls++ })
	c.Remove()
	e.CommitPendingPatch()

	if calls != 1 {
		t.Errorf("onLocalDelete fired %d times, want exactly 1", calls)
	}
}

func TestComponentTickGuard(t *testing.T) {
	e := newTestEntity(1)
	c, err := e.AddComponent(common.ComponentTypeScriptData)
	if err != nil {
		t.Fatalf("AddComponent: %v", err)
	}

	if ok, err := c.EvaluateTickGuard(nil); err != nil || !ok {
		t.Fatalf("expected no guard to default to true, got ok=%v err=%v", ok, err)
	}

	if err := c.SetTickGuard("distance < 50"); err != nil {
		t.Fatalf("SetTickGuard: %v", err)
	}
	ok, err := c.EvaluateTickGuard(map[string]any{"distance": 10})
	if err != nil || !ok {
		t.Errorf("expected the guard to pass for distance=10, got ok=%v err=%v", ok, err)
	}
	ok, err = c.EvaluateTickGuard(map[string]any{"distance": 100})
	if err != nil || ok {
		t.Errorf("expected the guard to fail for distance=100, got ok=%v err=%v", ok, err)
	}
}
