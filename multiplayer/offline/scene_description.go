// Package offline implements OfflineRealtimeEngine: a single-process
// RealtimeEngine with no transport, synchronous callbacks, and ids drawn
// from a local PRNG-backed keyspace (spec.md §4.6).
package offline

import (
	"encoding/json"
	"strings"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

// sceneEntity is the JSON shape of one SceneDescription entry: the same
// logical fields as a wire.ObjectMessage (spec.md §6.3).
type sceneEntity struct {
	ID             uint64                       `json:"id"`
	Type           common.SpaceEntityType       `json:"type"`
	IsTransferable bool                         `json:"isTransferable"`
	IsPersistent   bool                         `json:"isPersistent"`
	OwnerID        uint64                       `json:"ownerId"`
	ParentID       *uint64                      `json:"parentId,omitempty"`
	Components     map[uint16]sceneComponent    `json:"components"`
}

type sceneComponent struct {
	TypeTag    common.ComponentType        `json:"typeTag"`
	Properties map[uint32]sceneValue       `json:"properties"`
}

// sceneValue is the JSON-serializable shape of a common.ReplicatedValue,
// since ReplicatedValue itself carries unexported fields and is not
// JSON-marshalable directly. It has no field for StringMap values, so those
// are not carried.
type sceneValue struct {
	Kind common.ReplicatedValueType `json:"kind"`
	Bool bool                       `json:"bool,omitempty"`
	Int  int64                      `json:"int,omitempty"`
	Str  string                     `json:"str,omitempty"`
	X    float32                    `json:"x,omitempty"`
	Y    float32                    `json:"y,omitempty"`
	Z    float32                    `json:"z,omitempty"`
	W    float32                    `json:"w,omitempty"`
}

func toSceneValue(v common.ReplicatedValue) sceneValue {
	sv := sceneValue{Kind: v.GetKind()}
	switch v.GetKind() {
	case common.ReplicatedValueTypeBool:
		sv.Bool = v.GetBool()
	case common.ReplicatedValueTypeInt64:
		sv.Int = v.GetInt()
	case common.ReplicatedValueTypeFloat32:
		sv.X = v.GetFloat()
	case common.ReplicatedValueTypeString:
		sv.Str = v.GetString()
	case common.ReplicatedValueTypeVector3:
		vec := v.GetVector3()
		sv.X, sv.Y, sv.Z = vec.X, vec.Y, vec.Z
	case common.ReplicatedValueTypeVector4:
		vec := v.GetVector4()
		sv.X, sv.Y, sv.Z, sv.W = vec.X, vec.Y, vec.Z, vec.W
	}
	return sv
}

func (sv sceneValue) toReplicatedValue() common.ReplicatedValue {
	switch sv.Kind {
	case common.ReplicatedValueTypeBool:
		return common.NewBool(sv.Bool)
	case common.ReplicatedValueTypeInt64:
		return common.NewInt64(sv.Int)
	case common.ReplicatedValueTypeFloat32:
		return common.NewFloat32(sv.X)
	case common.ReplicatedValueTypeString:
		return common.NewString(sv.Str)
	case common.ReplicatedValueTypeVector3:
		return common.NewVector3(common.Vector3{X: sv.X, Y: sv.Y, Z: sv.Z})
	case common.ReplicatedValueTypeVector4:
		return common.NewVector4(common.Vector4{X: sv.X, Y: sv.Y, Z: sv.Z, W: sv.W})
	default:
		return common.Invalid
	}
}

// SceneDescription is a JSON-serialized array of entity snapshots, the
// same logical shape as a stream of ObjectMessages (spec.md §4.6, §6.3).
type SceneDescription struct {
	SpaceID  string        `json:"spaceId"`
	Entities []sceneEntity `json:"entities"`
}

// ParseSceneDescription decodes a full or chunk-concatenated JSON document.
// Callers that receive the description in chunks must concatenate with a
// strings.Builder before calling this (spec.md §8, "concatenation of
// chunked JSON strings must round-trip to the original JSON").
func ParseSceneDescription(data string) (SceneDescription, error) {
	var sd SceneDescription
	err := json.Unmarshal([]byte(data), &sd)
	return sd, err
}

// ConcatChunks joins scene-description chunks in arrival order using a
// strings.Builder, matching the teacher's avoidance of a string-concat
// helper library for what is plain stdlib work.
func ConcatChunks(chunks []string) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c)
	}
	return b.String()
}

func (sd SceneDescription) toObjectMessages() []wire.ObjectMessage {
	out := make([]wire.ObjectMessage, 0, len(sd.Entities))
	for _, e := range sd.Entities {
		comps := make(wire.ComponentsMap, len(e.Components))
		for id, c := range e.Components {
			props := make(map[uint32]common.ReplicatedValue, len(c.Properties))
			for k, v := range c.Properties {
				props[k] = v.toReplicatedValue()
			}
			comps[id] = wire.ComponentData{TypeTag: c.TypeTag, Properties: props}
		}
		out = append(out, wire.ObjectMessage{
			ID:             e.ID,
			Type:           e.Type,
			IsTransferable: e.IsTransferable,
			IsPersistent:   e.IsPersistent,
			OwnerID:        e.OwnerID,
			ParentID:       e.ParentID,
			Components:     comps,
		})
	}
	return out
}
