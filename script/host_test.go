package script

import (
	"testing"
	"time"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
)

func newTestEntity(id uint64) *multiplayer.SpaceEntity {
	return multiplayer.NewSpaceEntity(id, common.SpaceEntityTypeObject, 1, 1, true, false)
}

func TestCreateContextAttachesScriptHandle(t *testing.T) {
	h := NewHost(nil, 0)
	e := newTestEntity(1)
	es := h.CreateContext(e)

	if _, ok := h.context(1); !ok {
		t.Fatalf("expected the new context to be registered under the entity id")
	}
	if es == nil {
		t.Fatalf("CreateContext returned nil")
	}
}

func TestSetSourceAndTickDispatchesSubscription(t *testing.T) {
	h := NewHost(nil, 0)
	e := newTestEntity(2)
	es := h.CreateContext(e)

	src := `ThisEntity.subscribeToMessage("entityTick", function(deltaMS) {
		var lastDeltaMS = deltaMS;
	});`
	if err := es.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	h.Tick([]uint64{2}, 16)
	// No assertion on VM-internal state here: dispatch must simply not
	// error or panic for a well-formed subscriber.
	if err := es.LastError(); err != nil {
		t.Errorf("unexpected script error after tick: %v", err)
	}
}

func TestSetSourceCompileErrorIsReturnedAndRecorded(t *testing.T) {
	h := NewHost(nil, 0)
	e := newTestEntity(3)
	es := h.CreateContext(e)

	if err := es.SetSource("this is not valid javascript {{{"); err == nil {
		t.Fatalf("expected a compile error")
	}
	if es.LastError() == nil {
		t.Errorf("expected the compile error to be recorded as the script's LastError")
	}
}

func TestRunRemoteUnknownContext(t *testing.T) {
	h := NewHost(nil, 0)
	if err := h.RunRemote(999, "ThisEntity;"); err == nil {
		t.Fatalf("expected an error for an unregistered context id")
	}
}

func TestRunRemoteAppliesSource(t *testing.T) {
	h := NewHost(nil, 0)
	e := newTestEntity(4)
	h.CreateContext(e)

	if err := h.RunRemote(4, "ThisEntity;"); err != nil {
		t.Fatalf("RunRemote: %v", err)
	}
}

func TestOnErrorFiresForPanickingSubscriber(t *testing.T) {
	h := NewHost(nil, 0)
	e := newTestEntity(5)
	es := h.CreateContext(e)

	var gotEntityID uint64
	var gotErr error
	h.SetOnError(func(entityID uint64, err error) {
		gotEntityID = entityID
		gotErr = err
	})

	src := `ThisEntity.subscribeToMessage("entityTick", function(deltaMS) {
		undefinedFunctionCall();
	});`
	if err := es.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	h.Tick([]uint64{5}, 16)

	if gotErr == nil || gotEntityID != 5 {
		t.Errorf("expected OnError to fire for entity 5 with a non-nil error, got id=%d err=%v", gotEntityID, gotErr)
	}
}

// Tick guards: a ScriptData component's guard decides whether entityTick
// fires at all. The subscriber below always panics, so whether LastError
// gets set after each Tick call directly observes whether dispatch ran.
func TestTickGuardBlocksEntityTick(t *testing.T) {
	h := NewHost(nil, 0)
	e := newTestEntity(7)
	sd, err := e.AddComponent(common.ComponentTypeScriptData)
	if err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	if err := sd.SetTickGuard("deltaMS > 50"); err != nil {
		t.Fatalf("SetTickGuard: %v", err)
	}
	e.CommitPendingPatch()

	es := h.CreateContext(e)
	src := `ThisEntity.subscribeToMessage("entityTick", function(deltaMS) {
		undefinedFunctionCall();
	});`
	if err := es.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	h.Tick([]uint64{7}, 16)
	if err := es.LastError(); err != nil {
		t.Fatalf("tick guard should have blocked entityTick for deltaMS=16, got error: %v", err)
	}

	h.Tick([]uint64{7}, 100)
	if err := es.LastError(); err == nil {
		t.Errorf("expected entityTick to fire (and the subscriber to panic) once deltaMS passes the guard")
	}
}

func TestDestroyRemovesContext(t *testing.T) {
	h := NewHost(nil, 0)
	e := newTestEntity(6)
	es := h.CreateContext(e)
	es.Destroy()

	if _, ok := h.context(6); ok {
		t.Errorf("expected the context to be removed after Destroy")
	}
}

func TestNewHostDefaultsMaxExecutionTime(t *testing.T) {
	h := NewHost(nil, 0)
	if h.maxExecutionTime != defaultMaxExecutionTime {
		t.Errorf("maxExecutionTime = %v, want default %v", h.maxExecutionTime, defaultMaxExecutionTime)
	}
	h2 := NewHost(nil, 10*time.Second)
	if h2.maxExecutionTime != 10*time.Second {
		t.Errorf("expected an explicit max execution time to be respected")
	}
}
