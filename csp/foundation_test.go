package csp

import (
	"context"
	"testing"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
)

func TestOfflineFoundationCreateAndTick(t *testing.T) {
	f := NewOfflineFoundation(nil)

	var created *common.Vector3
	f.Engine().CreateEntity("cube", common.Vector3{X: 1, Y: 2, Z: 3}, common.Vector4{W: 1}, nil, func(e *multiplayer.SpaceEntity) {
		if e == nil {
			t.Fatalf("CreateEntity callback received nil entity")
		}
		pos := e.Position()
		created = &pos
	})
	if created == nil || created.X != 1 {
		t.Fatalf("expected the created entity's position to be recorded, got %v", created)
	}

	if len(f.Engine().Entities()) != 1 {
		t.Fatalf("Entities() = %d, want 1", len(f.Engine().Entities()))
	}

	// Tick should not panic even with no script-bearing entities.
	f.Tick(16)

	if err := f.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on an offline Foundation should be a no-op, got %v", err)
	}
}

func TestOfflineFoundationRequestRemoteScriptRunFails(t *testing.T) {
	f := NewOfflineFoundation(nil)
	if err := f.RequestRemoteScriptRun(context.Background(), 1, "ThisEntity;"); err == nil {
		t.Errorf("expected an error requesting a remote script run on an offline Foundation")
	}
}
