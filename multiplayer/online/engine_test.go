package online

import (
	"context"
	"testing"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/config"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
	"github.com/magnopus-opensource/csp-realtime/transport"
	"github.com/magnopus-opensource/csp-realtime/transport/fake"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

func newTestEngine(t *fake.Transport) *Engine {
	return New(t, 7, config.NewConfig(config.WithRateLimitDisabled(true)))
}

// Scenario 3: online create-avatar success.
func TestCreateAvatarSuccess(t *testing.T) {
	ft := fake.New()
	ft.NextIDs = []uint64{42}
	e := newTestEngine(ft)

	var got *multiplayer.SpaceEntity
	e.CreateAvatar("Alice", "user-1", common.Vector3{}, common.Vector4{W: 1}, true, "avatar-1", common.AvatarPlayModeDefault, func(se *multiplayer.SpaceEntity) {
		got = se
	})

	if got == nil {
		t.Fatalf("expected non-nil created avatar")
	}
	if got.ID() != 42 {
		t.Errorf("id = %d, want 42", got.ID())
	}
	if got.OwnerID() != 7 {
		t.Errorf("ownerId = %d, want 7", got.OwnerID())
	}
	if !got.HasComponentOfType(common.ComponentTypeAvatar) {
		t.Errorf("expected an AvatarData component")
	}
	if len(e.Avatars()) != 1 {
		t.Errorf("numAvatars = %d, want 1", len(e.Avatars()))
	}
	if len(ft.SentMessages) != 1 {
		t.Errorf("expected exactly one SendObjectMessage call, got %d", len(ft.SentMessages))
	}
}

// Scenario 4: online create-avatar hub-failure.
func TestCreateAvatarHubFailure(t *testing.T) {
	ft := fake.New() // NextIDs left empty: GenerateObjectIDs "fails" (returns none)
	e := newTestEngine(ft)

	calls := 0
	var got *multiplayer.SpaceEntity
	e.CreateAvatar("Bob", "user-2", common.Vector3{}, common.Vector4{W: 1}, true, "avatar-2", common.AvatarPlayModeDefault, func(se *multiplayer.SpaceEntity) {
		calls++
		got = se
	})

	if calls != 1 {
		t.Fatalf("callback fired %d times, want exactly 1", calls)
	}
	if got != nil {
		t.Errorf("expected nil entity on hub failure")
	}
	if len(e.Entities()) != 0 {
		t.Errorf("numEntities = %d, want 0", len(e.Entities()))
	}
}

// Boundary: totalCount=0 invokes completeCb(0) exactly once.
func TestFetchAllEntitiesEmptyScope(t *testing.T) {
	ft := fake.New()
	ft.PageResult = transport.PageResult{Items: nil, TotalCount: 0}
	e := newTestEngine(ft)

	completeCalls := 0
	completeCount := -1
	e.FetchAllEntitiesAndPopulateBuffers("space-1", nil, func(n int) {
		completeCalls++
		completeCount = n
	})

	if completeCalls != 1 {
		t.Fatalf("completeCb called %d times, want 1", completeCalls)
	}
	if completeCount != 0 {
		t.Errorf("completeCb(%d), want completeCb(0)", completeCount)
	}
	if !ft.Started {
		t.Errorf("expected StartListening to have been called")
	}
}

// Boundary: totalCount=N>100 performs ceil(N/100) PageScopedObjects calls.
func TestFetchAllEntitiesPaging(t *testing.T) {
	const total = 250
	const pageSize = 100
	calls := 0
	pt := &pagingTransport{Transport: fake.New(), total: total, pageSize: pageSize, calls: &calls}
	e := New(pt, 1, config.NewConfig())

	completeCount := -1
	e.FetchAllEntitiesAndPopulateBuffers("space-1", nil, func(n int) { completeCount = n })

	wantCalls := (total + pageSize - 1) / pageSize
	if calls != wantCalls {
		t.Errorf("PageScopedObjects called %d times, want %d", calls, wantCalls)
	}
	if completeCount != total {
		t.Errorf("completeCb(%d), want completeCb(%d)", completeCount, total)
	}
	if len(e.Entities()) != total {
		t.Errorf("numEntities = %d, want %d", len(e.Entities()), total)
	}
}

// pagingTransport wraps fake.Transport to serve deterministic pages of
// freshly-minted ObjectMessages so TestFetchAllEntitiesPaging can assert on
// call count without the fake's single-PageResult limitation.
type pagingTransport struct {
	*fake.Transport
	total    int
	pageSize int
	calls    *int
	served   int
}

func (p *pagingTransport) PageScopedObjects(ctx context.Context, excludeClientOwned, includeClientOwnedPersistent bool, skip, limit int) (transport.PageResult, error) {
	*p.calls++
	remaining := p.total - p.served
	if remaining <= 0 {
		return transport.PageResult{TotalCount: p.total}, nil
	}
	n := limit
	if n > remaining {
		n = remaining
	}
	items := make([]wire.ObjectMessage, n)
	for i := 0; i < n; i++ {
		items[i] = wire.ObjectMessage{ID: uint64(p.served + i + 1), Type: common.SpaceEntityTypeObject, Components: wire.ComponentsMap{}}
	}
	p.served += n
	return transport.PageResult{Items: items, TotalCount: p.total}, nil
}

var _ transport.HubTransport = (*pagingTransport)(nil)
