package multiplayer

import (
	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

// SpaceEntitySerializer maps between in-memory SpaceEntity state and the
// wire frames carried over the hub transport. It holds no state of its own;
// it exists as a named type (rather than free functions) because the
// teacher's codec-adjacent types (e.g. components/transform/*) are always
// structs with methods even when stateless, and because a later config-
// driven variant (e.g. a debug-only verbose serializer) has somewhere to
// hang.
type SpaceEntitySerializer struct{}

func NewSpaceEntitySerializer() SpaceEntitySerializer { return SpaceEntitySerializer{} }

// BuildObjectMessage produces the full-state frame for an entity's first
// send (spec.md §4.2).
func (SpaceEntitySerializer) BuildObjectMessage(e *SpaceEntity) wire.ObjectMessage {
	return e.ToMessage()
}

// DecodeObjectMessage materializes a SpaceEntity from an inbound full-state
// frame, e.g. during the initial scoped fetch or an OnObjectMessage event
// (spec.md §4.2, §4.7).
func (SpaceEntitySerializer) DecodeObjectMessage(msg wire.ObjectMessage, localClientID uint64) *SpaceEntity {
	return NewSpaceEntityFromMessage(msg, localClientID)
}

// BuildObjectPatch packs an entity's PendingPatch into a wire.ObjectPatch.
// View properties (name, transform, third-party ref/platform, selection)
// are packed under the reserved viewComponentID slot; real component
// adds/updates/removes occupy their own component ids (spec.md §4.2, §4.3).
func (SpaceEntitySerializer) BuildObjectPatch(e *SpaceEntity, p PendingPatch) wire.ObjectPatch {
	out := wire.ObjectPatch{
		ID:      e.ID(),
		OwnerID: e.OwnerID(),
		Destroy: p.Destroy,
		Components: wire.ComponentsMap{},
	}
	if p.ParentChanged {
		out.ParentUpdate = wire.ParentUpdate{Changed: true, ParentID: p.ParentID}
	}
	if len(p.ViewProperties) > 0 {
		out.Components[viewComponentID] = wire.ComponentData{
			TypeTag:    common.ComponentTypeView,
			Properties: p.ViewProperties,
		}
	}
	for id, c := range p.ComponentsToAdd {
		out.Components[id] = wire.ComponentData{TypeTag: c.Type(), Properties: c.stagedSnapshot()}
	}
	for id, c := range p.ComponentsToUpdate {
		out.Components[id] = wire.ComponentData{TypeTag: c.Type(), Properties: c.stagedSnapshot()}
	}
	for _, id := range p.ComponentsToRemove {
		out.Components[id] = wire.ComponentData{TypeTag: common.ComponentTypeInvalid, Properties: map[uint32]common.ReplicatedValue{}}
	}
	return out
}

// ApplyObjectPatch decodes an inbound wire.ObjectPatch into e, returning
// the reported parent-update tuple (nil if the patch did not touch parent)
// so the caller can re-resolve hierarchy in its EntityCollection.
func (SpaceEntitySerializer) ApplyObjectPatch(e *SpaceEntity, patch wire.ObjectPatch) *wire.ParentUpdate {
	return e.ApplyRemotePatch(patch)
}
