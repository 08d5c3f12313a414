// Package transport defines the hub RPC surface (spec.md §6, "Hub RPC
// (duplex, ordered, bidirectional)") and a gorilla/websocket-backed
// implementation. Nothing in multiplayer/online or election imports
// gorilla/websocket directly; they only depend on the HubTransport
// interface, so a test or an offline engine can swap in transport/fake.
package transport

import (
	"context"

	"github.com/magnopus-opensource/csp-realtime/wire"
)

// PageResult is the return shape of PageScopedObjects.
type PageResult struct {
	Items      []wire.ObjectMessage
	TotalCount int
}

// NetworkEvent is an out-of-band, channel-addressed payload sent via
// SendNetworkEventToClient (spec.md §6): leader election messages,
// RemoteRunScriptMessage, and opaque Conversation events.
type NetworkEvent struct {
	Channel        string
	Payload        map[string]any
	TargetClientID *uint64 // nil means broadcast to the whole scope.
}

// Handlers groups the callbacks a HubTransport invokes on the client side
// (spec.md §6, "Methods the hub invokes on the client").
type Handlers struct {
	OnObjectMessage       func(wire.ObjectMessage)
	OnObjectPatch         func(wire.ObjectPatch)
	OnRequestToSendObject func(entityID uint64)
	OnRequestToDisconnect func(reason string)
	OnNetworkEvent        func(NetworkEvent)
}

// HubTransport is the duplex RPC surface a RealtimeEngine drives. Every
// outbound method blocks for its ack/response; inbound hub-initiated calls
// arrive asynchronously via the registered Handlers.
type HubTransport interface {
	Connect(ctx context.Context, endpoint, tenant string) error
	Close() error

	SetHandlers(h Handlers)

	GenerateObjectIDs(ctx context.Context, count int) ([]uint64, error)
	SendObjectMessage(ctx context.Context, msg wire.ObjectMessage) error
	SendObjectPatches(ctx context.Context, patches []wire.ObjectPatch) error
	SendObjectNotFound(ctx context.Context, id uint64) error
	PageScopedObjects(ctx context.Context, excludeClientOwned, includeClientOwnedPersistent bool, skip, limit int) (PageResult, error)

	StopListening(ctx context.Context) error
	StartListening(ctx context.Context) error
	SetScopes(ctx context.Context, spaceID string) error

	SendNetworkEventToClient(ctx context.Context, event NetworkEvent) error
}
