package election

import (
	"context"
	"testing"
	"time"

	"github.com/magnopus-opensource/csp-realtime/transport/fake"
)

// Scenario 6: leader election after leader disconnect.
func TestLeaderElectionAfterDisconnect(t *testing.T) {
	ctx := context.Background()
	ft := fake.New()

	const c1, c2, c3 = uint64(1), uint64(2), uint64(3)
	le := New(c3, ft, nil, 10*time.Millisecond)

	// Establish c1 as leader the way the engine does on join: the first
	// client registered becomes leader until an election says otherwise.
	le.NoteClientJoined(c1)
	le.NoteClientJoined(c2)
	le.NoteClientJoined(c3)
	if leader, ok := le.Leader(); !ok || leader != c1 {
		t.Fatalf("initial leader = %d (ok=%v), want c1", leader, ok)
	}

	le.NoteClientLeft(c1)

	// c3 has the highest remaining id, so its own election round elects
	// itself immediately (no higher peers to wait on).
	if !le.IsLeader() {
		t.Fatalf("expected c3 to become leader after c1 disconnects")
	}
	if le.State() != StateLeader {
		t.Errorf("state = %v, want Leader", le.State())
	}

	le.CheckHeartbeat(ctx)
	if len(ft.SentMessages) != 0 {
		t.Fatalf("CheckHeartbeat should not send SendObjectMessage frames")
	}
}

func TestLeaderElectionAwaitsHigherPeer(t *testing.T) {
	ctx := context.Background()
	ft := fake.New()

	le := New(2, ft, nil, 10*time.Millisecond)
	le.NoteClientJoined(2)
	le.NoteClientJoined(5)

	le.StartElection(ctx)
	if le.State() != StateElecting {
		t.Errorf("state = %v, want Electing while awaiting a higher peer's response", le.State())
	}
}

func TestLeaderElectionSoleClientBecomesLeader(t *testing.T) {
	ft := fake.New()
	le := New(9, ft, nil, 10*time.Millisecond)
	le.NoteClientJoined(9)

	if !le.IsLeader() {
		t.Fatalf("expected the sole known client to become leader immediately")
	}
}
