package wire

import (
	"bytes"

	"github.com/magnopus-opensource/csp-realtime/common"
)

// ComponentData is the wire shape of a single component entry: a type tag
// plus its property payload. A TypeTag of common.ComponentTypeInvalid
// denotes removal of the component id it is keyed under (spec.md §4.2).
type ComponentData struct {
	TypeTag    common.ComponentType
	Properties map[uint32]common.ReplicatedValue
}

// ComponentsMap is keyed by component id: id 0 carries the entity's view
// (entity-level) properties, ids below ViewPropertyFloor are otherwise
// unused, and user component ids start at the floor (spec.md §3, Component
// invariants).
type ComponentsMap map[uint16]ComponentData

// ViewPropertyFloor is the first component id ids are allocated at; keys
// below it are reserved for view properties.
const ViewPropertyFloor = 65

func writeComponentsMap(buf *bytes.Buffer, m ComponentsMap) {
	writeUint32(buf, uint32(len(m)))
	for id, data := range m {
		writeUint16(buf, id)
		writeString(buf, string(data.TypeTag))
		writeUint32(buf, uint32(len(data.Properties)))
		for key, val := range data.Properties {
			writeUint32(buf, key)
			writeReplicatedValue(buf, val)
		}
	}
}

func readComponentsMap(r *bytes.Reader) (ComponentsMap, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(ComponentsMap, n)
	for i := uint32(0); i < n; i++ {
		id, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		typeTag, err := readString(r)
		if err != nil {
			return nil, err
		}
		propCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		props := make(map[uint32]common.ReplicatedValue, propCount)
		for j := uint32(0); j < propCount; j++ {
			key, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			val, err := readReplicatedValue(r)
			if err != nil {
				return nil, err
			}
			props[key] = val
		}
		out[id] = ComponentData{TypeTag: common.ComponentType(typeTag), Properties: props}
	}
	return out, nil
}

// ObjectMessage is the full-state frame for an entity (spec.md §4.2).
type ObjectMessage struct {
	ID             uint64
	Type           common.SpaceEntityType
	IsTransferable bool
	IsPersistent   bool
	OwnerID        uint64
	ParentID       *uint64 // nil means "no parent"
	Components     ComponentsMap
}

func (m ObjectMessage) Encode() []byte {
	buf := &bytes.Buffer{}
	writeUint64(buf, m.ID)
	writeUint8(buf, uint8(m.Type))
	writeBool(buf, m.IsTransferable)
	writeBool(buf, m.IsPersistent)
	writeUint64(buf, m.OwnerID)
	writeBool(buf, m.ParentID != nil)
	if m.ParentID != nil {
		writeUint64(buf, *m.ParentID)
	}
	writeComponentsMap(buf, m.Components)
	return buf.Bytes()
}

func DecodeObjectMessage(data []byte) (ObjectMessage, error) {
	r := bytes.NewReader(data)
	var m ObjectMessage
	var err error

	if m.ID, err = readUint64(r); err != nil {
		return m, err
	}
	typ, err := readUint8(r)
	if err != nil {
		return m, err
	}
	m.Type = common.SpaceEntityType(typ)
	if m.IsTransferable, err = readBool(r); err != nil {
		return m, err
	}
	if m.IsPersistent, err = readBool(r); err != nil {
		return m, err
	}
	if m.OwnerID, err = readUint64(r); err != nil {
		return m, err
	}
	hasParent, err := readBool(r)
	if err != nil {
		return m, err
	}
	if hasParent {
		pid, err := readUint64(r)
		if err != nil {
			return m, err
		}
		m.ParentID = &pid
	}
	if m.Components, err = readComponentsMap(r); err != nil {
		return m, err
	}
	return m, nil
}

// ParentUpdate represents the patch's parent-update tuple: {false, null}
// (no change), {true, null} (remove parent), or {true, parentId} (set
// parent) (spec.md §4.2).
type ParentUpdate struct {
	Changed  bool
	ParentID *uint64
}

// ObjectPatch is the delta frame for an entity. Absent component keys
// retain their prior value; a component entry with TypeTag Invalid denotes
// removal (spec.md §4.2).
type ObjectPatch struct {
	ID           uint64
	OwnerID      uint64
	Destroy      bool
	ParentUpdate ParentUpdate
	Components   ComponentsMap
}

// IsEmpty reports whether the patch carries no component changes, no
// parent update and no destroy flag — the no-op patch named in spec.md §8's
// idempotence laws.
func (p ObjectPatch) IsEmpty() bool {
	return !p.Destroy && !p.ParentUpdate.Changed && len(p.Components) == 0
}

func (p ObjectPatch) Encode() []byte {
	buf := &bytes.Buffer{}
	writeUint64(buf, p.ID)
	writeUint64(buf, p.OwnerID)
	writeBool(buf, p.Destroy)
	writeBool(buf, p.ParentUpdate.Changed)
	writeBool(buf, p.ParentUpdate.ParentID != nil)
	if p.ParentUpdate.ParentID != nil {
		writeUint64(buf, *p.ParentUpdate.ParentID)
	}
	writeComponentsMap(buf, p.Components)
	return buf.Bytes()
}

func DecodeObjectPatch(data []byte) (ObjectPatch, error) {
	r := bytes.NewReader(data)
	var p ObjectPatch
	var err error

	if p.ID, err = readUint64(r); err != nil {
		return p, err
	}
	if p.OwnerID, err = readUint64(r); err != nil {
		return p, err
	}
	if p.Destroy, err = readBool(r); err != nil {
		return p, err
	}
	if p.ParentUpdate.Changed, err = readBool(r); err != nil {
		return p, err
	}
	hasParentID, err := readBool(r)
	if err != nil {
		return p, err
	}
	if hasParentID {
		pid, err := readUint64(r)
		if err != nil {
			return p, err
		}
		p.ParentUpdate.ParentID = &pid
	}
	if p.Components, err = readComponentsMap(r); err != nil {
		return p, err
	}
	return p, nil
}
