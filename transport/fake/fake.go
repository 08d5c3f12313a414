// Package fake provides an in-memory transport.HubTransport for tests: a
// single Transport records outbound calls and lets the test inject inbound
// hub events, with no network or JSON envelope involved. Grounded on the teacher's general
// preference for hand-rolled in-memory test doubles over a mocking
// framework (no mock library appears anywhere in the retrieved teacher
// files).
package fake

import (
	"context"
	"sync"

	"github.com/magnopus-opensource/csp-realtime/transport"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

// Transport is a trivial HubTransport whose outbound calls are recorded
// and whose PageScopedObjects/GenerateObjectIDs responses are pre-seeded by
// the test, and whose inbound events are injected by calling the Push*
// methods directly.
type Transport struct {
	mu sync.Mutex

	handlers transport.Handlers

	NextIDs    []uint64
	PageResult transport.PageResult
	PageErr    error

	SentMessages []wire.ObjectMessage
	SentPatches  [][]wire.ObjectPatch
	NotFoundIDs  []uint64

	Scopes  []string
	Started bool
}

func New() *Transport { return &Transport{} }

func (t *Transport) Connect(ctx context.Context, endpoint, tenant string) error { return nil }
func (t *Transport) Close() error                                              { return nil }

func (t *Transport) SetHandlers(h transport.Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

func (t *Transport) GenerateObjectIDs(ctx context.Context, count int) ([]uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.NextIDs) < count {
		return nil, nil
	}
	ids := t.NextIDs[:count]
	t.NextIDs = t.NextIDs[count:]
	return ids, nil
}

func (t *Transport) SendObjectMessage(ctx context.Context, msg wire.ObjectMessage) error {
	t.mu.Lock()
	t.SentMessages = append(t.SentMessages, msg)
	t.mu.Unlock()
	return nil
}

func (t *Transport) SendObjectPatches(ctx context.Context, patches []wire.ObjectPatch) error {
	t.mu.Lock()
	t.SentPatches = append(t.SentPatches, patches)
	t.mu.Unlock()
	return nil
}

func (t *Transport) SendObjectNotFound(ctx context.Context, id uint64) error {
	t.mu.Lock()
	t.NotFoundIDs = append(t.NotFoundIDs, id)
	t.mu.Unlock()
	return nil
}

func (t *Transport) PageScopedObjects(ctx context.Context, excludeClientOwned, includeClientOwnedPersistent bool, skip, limit int) (transport.PageResult, error) {
	return t.PageResult, t.PageErr
}

func (t *Transport) StopListening(ctx context.Context) error  { return nil }
func (t *Transport) StartListening(ctx context.Context) error { t.Started = true; return nil }
func (t *Transport) SetScopes(ctx context.Context, spaceID string) error {
	t.mu.Lock()
	t.Scopes = append(t.Scopes, spaceID)
	t.mu.Unlock()
	return nil
}

func (t *Transport) SendNetworkEventToClient(ctx context.Context, event transport.NetworkEvent) error {
	return nil
}

// PushObjectMessage/PushObjectPatch/PushRequestToSendObject/
// PushRequestToDisconnect let a test simulate hub-initiated calls.
func (t *Transport) PushObjectMessage(msg wire.ObjectMessage) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	if h.OnObjectMessage != nil {
		h.OnObjectMessage(msg)
	}
}

func (t *Transport) PushObjectPatch(p wire.ObjectPatch) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	if h.OnObjectPatch != nil {
		h.OnObjectPatch(p)
	}
}

func (t *Transport) PushRequestToSendObject(id uint64) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	if h.OnRequestToSendObject != nil {
		h.OnRequestToSendObject(id)
	}
}

func (t *Transport) PushRequestToDisconnect(reason string) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	if h.OnRequestToDisconnect != nil {
		h.OnRequestToDisconnect(reason)
	}
}

func (t *Transport) PushNetworkEvent(event transport.NetworkEvent) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	if h.OnNetworkEvent != nil {
		h.OnNetworkEvent(event)
	}
}

var _ transport.HubTransport = (*Transport)(nil)
