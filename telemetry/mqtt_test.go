package telemetry

import "testing"

// A bridge built without a broker URL must accept every call as a no-op:
// callers should never need to branch on whether telemetry is configured.
func TestBridgeInertWithoutBroker(t *testing.T) {
	b := New("", "", "space-1", nil)
	if b.Enabled() {
		t.Fatalf("expected a bridge with no broker URL to be disabled")
	}

	// None of these should panic or block; there is no broker to talk to.
	b.PublishEntityCreated(1)
	b.PublishEntityDestroyed(1)
	b.PublishLeaderChanged(2)
	b.PublishScriptError(1, "boom")
	b.SetSpaceID("space-2")
	b.Close()
}

func TestBridgeNilLoggerDefaulted(t *testing.T) {
	b := New("", "", "space-1", nil)
	if b.log == nil {
		t.Fatalf("expected New to fall back to a default logger")
	}
}
