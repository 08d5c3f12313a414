package wire

import (
	"testing"

	"github.com/magnopus-opensource/csp-realtime/common"
)

func TestObjectMessageRoundTrip(t *testing.T) {
	parent := uint64(7)
	msg := ObjectMessage{
		ID:             42,
		Type:           common.SpaceEntityTypeAvatar,
		IsTransferable: false,
		IsPersistent:   true,
		OwnerID:        99,
		ParentID:       &parent,
		Components: ComponentsMap{
			1: {TypeTag: common.ComponentTypeAvatar, Properties: map[uint32]common.ReplicatedValue{
				65: common.NewString("avatar-1"),
				66: common.NewVector3(common.Vector3{X: 1, Y: 2, Z: 3}),
			}},
		},
	}

	decoded, err := DecodeObjectMessage(msg.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != msg.ID || decoded.Type != msg.Type || decoded.OwnerID != msg.OwnerID {
		t.Fatalf("scalar fields did not round-trip: %+v", decoded)
	}
	if decoded.ParentID == nil || *decoded.ParentID != parent {
		t.Fatalf("parent id did not round-trip: %+v", decoded.ParentID)
	}
	got := decoded.Components[1].Properties[65]
	if got.GetString() != "avatar-1" {
		t.Fatalf("component property did not round-trip: %+v", got)
	}
}

func TestObjectMessageNoParentRoundTrip(t *testing.T) {
	msg := ObjectMessage{ID: 1, Type: common.SpaceEntityTypeObject, Components: ComponentsMap{}}
	decoded, err := DecodeObjectMessage(msg.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ParentID != nil {
		t.Fatalf("expected nil parent id, got %v", *decoded.ParentID)
	}
}

func TestObjectPatchEmptyIsNoOp(t *testing.T) {
	p := ObjectPatch{ID: 1, OwnerID: 1}
	if !p.IsEmpty() {
		t.Fatal("expected empty patch to report IsEmpty")
	}

	decoded, err := DecodeObjectPatch(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.IsEmpty() {
		t.Fatal("expected decoded empty patch to remain empty")
	}
}

func TestObjectPatchParentUpdateTuples(t *testing.T) {
	cases := []ParentUpdate{
		{Changed: false, ParentID: nil},
		{Changed: true, ParentID: nil},
	}
	for _, pu := range cases {
		p := ObjectPatch{ID: 1, ParentUpdate: pu}
		decoded, err := DecodeObjectPatch(p.Encode())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.ParentUpdate.Changed != pu.Changed || decoded.ParentUpdate.ParentID != nil {
			t.Fatalf("parent update tuple mismatch: got %+v, want %+v", decoded.ParentUpdate, pu)
		}
	}

	parent := uint64(5)
	p := ObjectPatch{ID: 1, ParentUpdate: ParentUpdate{Changed: true, ParentID: &parent}}
	decoded, err := DecodeObjectPatch(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ParentUpdate.ParentID == nil || *decoded.ParentUpdate.ParentID != parent {
		t.Fatalf("set-parent tuple did not round-trip: %+v", decoded.ParentUpdate)
	}
}

func TestComponentInvalidTagDenotesRemoval(t *testing.T) {
	p := ObjectPatch{
		ID: 1,
		Components: ComponentsMap{
			3: {TypeTag: common.ComponentTypeInvalid, Properties: map[uint32]common.ReplicatedValue{}},
		},
	}
	decoded, err := DecodeObjectPatch(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Components[3].TypeTag != common.ComponentTypeInvalid {
		t.Fatalf("expected Invalid type tag to round-trip, got %v", decoded.Components[3].TypeTag)
	}
}
