package common

import (
	"encoding/binary"

	"github.com/gofrs/uuid/v5"
)

// NewOfflineEntityID generates a uint64 entity id from a fresh UUIDv4,
// giving the offline engine a "local PRNG with large keyspace" id source
// per spec, without a visible collision risk in any realistic session size.
// Grounded on the teacher's own use of github.com/gofrs/uuid/v5 for message
// ids (types/msg.go).
func NewOfflineEntityID() uint64 {
	id := uuid.Must(uuid.NewV4())
	return binary.BigEndian.Uint64(id[:8])
}

// NewInvocationID generates a random correlation id string for a single hub
// RPC invocation. transport.WSHubTransport does not use it; it numbers its
// invocations with a per-connection counter.
func NewInvocationID() string {
	id := uuid.Must(uuid.NewV4())
	return id.String()
}
