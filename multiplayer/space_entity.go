package multiplayer

import (
	"fmt"
	"sync"
	"time"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

// componentIDFloor is the first id SpaceEntity.AddComponent allocates at;
// ids below it are reserved for view (entity-level) properties, so
// component ids and view keys share one id space without ever colliding
// (spec.md §3 Component invariants).
const componentIDFloor = wire.ViewPropertyFloor

// ScriptHandle is the narrow surface a SpaceEntity needs from its attached
// script context. The concrete implementation lives in package script,
// which depends on multiplayer (not the other way around) to avoid an
// import cycle — see the cyclic-ownership note in SPEC_FULL.md §3.
type ScriptHandle interface {
	// SetSource replaces the script's source text, resetting the context.
	SetSource(src string) error
	// NotifyPropertyChanged is called once a committed property change
	// settles, so a script's registered property-change callbacks can fire.
	NotifyPropertyChanged(componentID uint16, key uint32)
	// Destroy tears the script context down.
	Destroy()
}

// UpdateCallback receives the aggregated SpaceEntityUpdateFlags describing
// which categories changed after a local or remote patch apply.
type UpdateCallback func(flags common.SpaceEntityUpdateFlags)

// DestroyCallback fires once an entity has been fully torn down locally.
type DestroyCallback func()

// SpaceEntity is the entity root: identity, transform, ownership,
// hierarchy, components, and the per-entity dirty set that the owning
// engine drains at tick (spec.md §3).
type SpaceEntity struct {
	mu sync.Mutex // entityLock: guards every field below.

	id             uint64
	entityType     common.SpaceEntityType
	isTransferable bool
	isPersistent   bool
	ownerID        uint64
	localClientID  uint64

	parentID *uint64
	parent   *SpaceEntity
	children []*SpaceEntity

	name               string
	position           common.Vector3
	rotation           common.Vector4
	scale              common.Vector3
	thirdPartyPlatform common.ThirdPartyPlatform
	thirdPartyRef      string
	selectionClientID  *uint64

	dirtyViewProperties map[uint32]common.ReplicatedValue
	dirtyComponents     map[uint16]dirtyComponentEntry
	components          map[uint16]*Component
	nextComponentID     uint16
	transientDeletions  map[uint16]bool

	script ScriptHandle

	timeOfLastPatch time.Time
	destroyed       bool

	updateCallback  UpdateCallback
	destroyCallback DestroyCallback
}

// NewSpaceEntity constructs an entity in its default (Scale == 1,1,1)
// local state; it is the caller's (engine's) responsibility to register it
// in the appropriate collections once replication has committed it.
func NewSpaceEntity(id uint64, entityType common.SpaceEntityType, ownerID, localClientID uint64, isTransferable, isPersistent bool) *SpaceEntity {
	return &SpaceEntity{
		id:                  id,
		entityType:          entityType,
		isTransferable:      isTransferable,
		isPersistent:        isPersistent,
		ownerID:             ownerID,
		localClientID:       localClientID,
		scale:               common.Vector3{X: 1, Y: 1, Z: 1},
		dirtyViewProperties: make(map[uint32]common.ReplicatedValue),
		dirtyComponents:     make(map[uint16]dirtyComponentEntry),
		components:          make(map[uint16]*Component),
		nextComponentID:     componentIDFloor,
		transientDeletions:  make(map[uint16]bool),
	}
}

func (e *SpaceEntity) ID() uint64                   { return e.id }
func (e *SpaceEntity) Type() common.SpaceEntityType { return e.entityType }
func (e *SpaceEntity) IsPersistent() bool           { e.mu.Lock(); defer e.mu.Unlock(); return e.isPersistent }
func (e *SpaceEntity) IsTransferable() bool         { e.mu.Lock(); defer e.mu.Unlock(); return e.isTransferable }

func (e *SpaceEntity) OwnerID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownerID
}

// IsModifiable reports whether a local mutation is currently legal: exactly
// one of {owner local, isTransferable} must hold (spec.md §3 Invariants).
func (e *SpaceEntity) IsModifiable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownerID == e.localClientID || e.isTransferable
}

func (e *SpaceEntity) SetUpdateCallback(cb UpdateCallback)   { e.mu.Lock(); e.updateCallback = cb; e.mu.Unlock() }
func (e *SpaceEntity) SetDestroyCallback(cb DestroyCallback) { e.mu.Lock(); e.destroyCallback = cb; e.mu.Unlock() }
func (e *SpaceEntity) AttachScript(h ScriptHandle)           { e.mu.Lock(); e.script = h; e.mu.Unlock() }

func (e *SpaceEntity) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

func (e *SpaceEntity) SetName(name string, log common.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		log.Printf("entity %d: SetName rejected, not modifiable", e.id)
		return
	}
	if e.name == name {
		return
	}
	e.name = name
	e.dirtyViewProperties[viewKeyName] = common.NewString(name)
}

func (e *SpaceEntity) isModifiableLocked() bool {
	return e.ownerID == e.localClientID || e.isTransferable
}

// View property keys, reserved in [1, 64] per spec.md §3.
const (
	viewKeyName = uint32(iota + 1)
	viewKeyPositionX
	viewKeyPositionY
	viewKeyPositionZ
	viewKeyRotation
	viewKeyScale
	viewKeyThirdPartyRef
	viewKeyThirdPartyPlatform
	viewKeySelectionID
)

func (e *SpaceEntity) Position() common.Vector3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *SpaceEntity) SetPosition(v common.Vector3, log common.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		log.Printf("entity %d: SetPosition rejected, not modifiable", e.id)
		return
	}
	if e.position == v {
		return
	}
	e.position = v
	e.dirtyViewProperties[viewKeyPositionX] = common.NewVector3(v)
}

func (e *SpaceEntity) Rotation() common.Vector4 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotation
}

func (e *SpaceEntity) SetRotation(v common.Vector4, log common.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		log.Printf("entity %d: SetRotation rejected, not modifiable", e.id)
		return
	}
	if e.rotation == v {
		return
	}
	e.rotation = v
	e.dirtyViewProperties[viewKeyRotation] = common.NewVector4(v)
}

func (e *SpaceEntity) Scale() common.Vector3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scale
}

func (e *SpaceEntity) SetScale(v common.Vector3, log common.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		log.Printf("entity %d: SetScale rejected, not modifiable", e.id)
		return
	}
	if e.scale == v {
		return
	}
	e.scale = v
	e.dirtyViewProperties[viewKeyScale] = common.NewVector3(v)
}

func (e *SpaceEntity) ThirdPartyRef() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thirdPartyRef
}

func (e *SpaceEntity) SetThirdPartyRef(ref string, log common.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		log.Printf("entity %d: SetThirdPartyRef rejected, not modifiable", e.id)
		return
	}
	if e.thirdPartyRef == ref {
		return
	}
	e.thirdPartyRef = ref
	e.dirtyViewProperties[viewKeyThirdPartyRef] = common.NewString(ref)
}

func (e *SpaceEntity) ThirdPartyPlatform() common.ThirdPartyPlatform {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thirdPartyPlatform
}

func (e *SpaceEntity) SetThirdPartyPlatform(p common.ThirdPartyPlatform, log common.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		log.Printf("entity %d: SetThirdPartyPlatform rejected, not modifiable", e.id)
		return
	}
	if e.thirdPartyPlatform == p {
		return
	}
	e.thirdPartyPlatform = p
	e.dirtyViewProperties[viewKeyThirdPartyPlatform] = common.NewInt64(int64(p))
}

// GlobalPosition composes the entity's position with its ancestors' when
// parented; a root entity's GlobalPosition equals its local Position
// (spec.md §3, "Transform on entities with a parent is local").
func (e *SpaceEntity) GlobalPosition() common.Vector3 {
	e.mu.Lock()
	pos, parent := e.position, e.parent
	e.mu.Unlock()

	if parent == nil {
		return pos
	}
	parentPos := parent.GlobalPosition()
	return common.Vector3{X: parentPos.X + pos.X, Y: parentPos.Y + pos.Y, Z: parentPos.Z + pos.Z}
}

func (e *SpaceEntity) Parent() *SpaceEntity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.parent
}

func (e *SpaceEntity) ChildEntities() []*SpaceEntity {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*SpaceEntity, len(e.children))
	copy(out, e.children)
	return out
}

// SetParentID stages a parent change; the parent pointer is linked when the
// engine next calls EntityCollection.Resolve (spec.md §4.4).
func (e *SpaceEntity) SetParentID(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		return
	}
	e.parentID = &id
	e.dirtyViewProperties[viewKeyParentPending] = common.NewInt64(1)
}

// RemoveParent stages removal of any parent relationship.
func (e *SpaceEntity) RemoveParent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isModifiableLocked() {
		return
	}
	e.parentID = nil
	e.dirtyViewProperties[viewKeyParentPending] = common.NewInt64(1)
}

// viewKeyParentPending is a private, non-wire marker used only to note that
// a parent change is staged; the wire-level parent update tuple is computed
// separately in the serializer from e.parentID.
const viewKeyParentPending = uint32(1000000)

// viewComponentID is the reserved wire.ComponentsMap key (below
// wire.ViewPropertyFloor, where AddComponent starts allocating) that
// SpaceEntitySerializer packs the entity's own view properties (name,
// transform, third-party ref, selection) under, rather than a real
// Component. It has no corresponding *Component value; ApplyRemotePatch and
// NewSpaceEntityFromMessage special-case it.
const viewComponentID = uint16(0)

// applyViewPropertiesLocked applies an inbound view-properties payload
// directly to the entity's own fields; callers hold e.mu.
func (e *SpaceEntity) applyViewPropertiesLocked(props map[uint32]common.ReplicatedValue) common.SpaceEntityUpdateFlags {
	var flags common.SpaceEntityUpdateFlags
	for key, v := range props {
		flags |= viewKeyFlag(key)
		switch key {
		case viewKeyName:
			e.name = v.GetString()
		case viewKeyPositionX:
			e.position = v.GetVector3()
		case viewKeyRotation:
			e.rotation = v.GetVector4()
		case viewKeyScale:
			e.scale = v.GetVector3()
		case viewKeyThirdPartyRef:
			e.thirdPartyRef = v.GetString()
		case viewKeyThirdPartyPlatform:
			e.thirdPartyPlatform = common.ThirdPartyPlatform(v.GetInt())
		case viewKeySelectionID:
			id := uint64(v.GetInt())
			if id == 0 {
				e.selectionClientID = nil
			} else {
				e.selectionClientID = &id
			}
		}
	}
	return flags
}

// snapshotViewPropertiesLocked returns the entity's current view properties
// (name, transform, third-party ref/platform, selection) encoded the same
// way dirtyViewProperties is, for packing into the reserved viewComponentID
// slot of a full-state ObjectMessage. Callers hold e.mu.
func (e *SpaceEntity) snapshotViewPropertiesLocked() map[uint32]common.ReplicatedValue {
	props := map[uint32]common.ReplicatedValue{
		viewKeyName:               common.NewString(e.name),
		viewKeyPositionX:          common.NewVector3(e.position),
		viewKeyRotation:           common.NewVector4(e.rotation),
		viewKeyScale:              common.NewVector3(e.scale),
		viewKeyThirdPartyRef:      common.NewString(e.thirdPartyRef),
		viewKeyThirdPartyPlatform: common.NewInt64(int64(e.thirdPartyPlatform)),
	}
	if e.selectionClientID != nil {
		props[viewKeySelectionID] = common.NewInt64(int64(*e.selectionClientID))
	}
	return props
}

// ScriptDataComponent returns the entity's committed ScriptData component,
// if it has one, so a script host can consult its tick guard before firing
// entityTick (spec.md §4.9).
func (e *SpaceEntity) ScriptDataComponent() (*Component, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.components {
		if c.kind == common.ComponentTypeScriptData {
			return c, true
		}
	}
	return nil, false
}

// Select succeeds iff the entity is currently unselected, in which case
// selection is set to the local client id. Selection is advisory and does
// not affect IsModifiable (spec.md §4.4).
func (e *SpaceEntity) Select() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selectionClientID != nil {
		return false
	}
	id := e.localClientID
	e.selectionClientID = &id
	e.dirtyViewProperties[viewKeySelectionID] = common.NewInt64(int64(id))
	return true
}

// Deselect succeeds iff the entity is currently selected by the local client.
func (e *SpaceEntity) Deselect() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selectionClientID == nil || *e.selectionClientID != e.localClientID {
		return false
	}
	e.selectionClientID = nil
	e.dirtyViewProperties[viewKeySelectionID] = common.NewInt64(0)
	return true
}

func (e *SpaceEntity) IsSelected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectionClientID != nil
}

// AddComponent allocates a new component of the given type. A second
// ScriptData component, whether already committed or still staged, is
// rejected with ErrDuplicateScriptComponent (spec.md §3, §4.4).
func (e *SpaceEntity) AddComponent(kind common.ComponentType) (*Component, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if kind == common.ComponentTypeScriptData {
		for _, c := range e.components {
			if c.kind == common.ComponentTypeScriptData {
				return nil, common.NewEngineError("AddComponent", e.id, common.ErrDuplicateScriptComponent)
			}
		}
		for _, d := range e.dirtyComponents {
			if d.component.kind == common.ComponentTypeScriptData {
				return nil, common.NewEngineError("AddComponent", e.id, common.ErrDuplicateScriptComponent)
			}
		}
	}

	id := e.nextComponentID
	e.nextComponentID++

	c := newComponent(id, kind, e)
	e.dirtyComponents[id] = dirtyComponentEntry{component: c, state: componentStateAdd}
	return c, nil
}

// markComponentDirty is called by Component.SetProperty; if the component
// is not already staged as an Add, it is (re)staged as an Update.
func (e *SpaceEntity) markComponentDirty(c *Component) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.dirtyComponents[c.id]; ok {
		existing.component = c
		e.dirtyComponents[c.id] = existing
		return
	}
	e.dirtyComponents[c.id] = dirtyComponentEntry{component: c, state: componentStateUpdate}
}

// markComponentForRemoval records id in the transient deletion set; the
// next outbound patch will carry it as an Invalid-typed component entry
// (spec.md §3, soft delete).
func (e *SpaceEntity) markComponentForRemoval(id uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transientDeletions[id] = true
	delete(e.dirtyComponents, id)
}

// RemoveComponent is equivalent to calling Remove on the component with the
// given id, if it exists.
func (e *SpaceEntity) RemoveComponent(id uint16) {
	e.markComponentForRemoval(id)
}

func (e *SpaceEntity) Component(id uint16) (*Component, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.components[id]
	return c, ok
}

func (e *SpaceEntity) Components() map[uint16]*Component {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[uint16]*Component, len(e.components))
	for k, v := range e.components {
		out[k] = v
	}
	return out
}

// HasComponentOfType reports whether any committed component of the given
// type exists; used by the engine to distinguish avatars from objects.
func (e *SpaceEntity) HasComponentOfType(kind common.ComponentType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.components {
		if c.kind == kind {
			return true
		}
	}
	return false
}

func (e *SpaceEntity) fireUpdateCallback(flags common.SpaceEntityUpdateFlags) {
	e.mu.Lock()
	cb := e.updateCallback
	e.mu.Unlock()
	if cb != nil && flags != 0 {
		safeInvoke(func() { cb(flags) })
	}
}

func (e *SpaceEntity) fireDestroyCallback() {
	e.mu.Lock()
	cb := e.destroyCallback
	e.mu.Unlock()
	if cb != nil {
		safeInvoke(cb)
	}
}

// safeInvoke recovers from a panicking callback so that "callbacks always
// complete exactly once" holds even when a caller's callback misbehaves
// (spec.md §7 Propagation policy).
func safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("csp: recovered panic in callback: %v\n", r)
		}
	}()
	fn()
}

// propertyChange names one committed component property, used to fan out
// NotifyPropertyChanged calls to an attached script after a commit/apply
// completes (spec.md §4.9).
type propertyChange struct {
	componentID uint16
	key         uint32
}

// PendingPatch is a snapshot of everything staged on an entity since its
// last successful send, handed to the serializer to build an outbound
// ObjectMessage/ObjectPatch. It does not itself mutate the entity.
type PendingPatch struct {
	ViewProperties     map[uint32]common.ReplicatedValue
	ParentChanged      bool
	ParentID           *uint64
	ComponentsToAdd    map[uint16]*Component
	ComponentsToUpdate map[uint16]*Component
	ComponentsToRemove []uint16
	Destroy            bool
}

// HasPendingChanges reports whether the entity has anything to send,
// letting the engine skip an empty patch (spec.md §8, idempotence laws).
func (e *SpaceEntity) HasPendingChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirtyViewProperties) > 0 || len(e.dirtyComponents) > 0 || len(e.transientDeletions) > 0 || e.destroyed
}

// StagePendingPatch builds a PendingPatch from the entity's current dirty
// state without clearing it; the caller commits via CommitPendingPatch only
// once the patch has actually been sent.
func (e *SpaceEntity) StagePendingPatch() PendingPatch {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := PendingPatch{
		ViewProperties:     make(map[uint32]common.ReplicatedValue, len(e.dirtyViewProperties)),
		ComponentsToAdd:    make(map[uint16]*Component),
		ComponentsToUpdate: make(map[uint16]*Component),
		Destroy:            e.destroyed,
	}
	for k, v := range e.dirtyViewProperties {
		if k == viewKeyParentPending {
			continue
		}
		p.ViewProperties[k] = v
	}
	if _, staged := e.dirtyViewProperties[viewKeyParentPending]; staged {
		p.ParentChanged = true
		p.ParentID = e.parentID
	}
	for id, entry := range e.dirtyComponents {
		switch entry.state {
		case componentStateAdd:
			p.ComponentsToAdd[id] = entry.component
		case componentStateUpdate:
			p.ComponentsToUpdate[id] = entry.component
		}
	}
	for id := range e.transientDeletions {
		p.ComponentsToRemove = append(p.ComponentsToRemove, id)
	}
	return p
}

// CommitPendingPatch merges staged component properties into committed
// state, finalizes removals, and clears the dirty sets, then fires the
// update callback once with the aggregated change flags. Called by the
// owning engine once a patch has been accepted by the transport (local) or
// decoded from one (remote, via ApplyRemotePatch instead).
func (e *SpaceEntity) CommitPendingPatch() {
	e.mu.Lock()

	var flags common.SpaceEntityUpdateFlags
	for k := range e.dirtyViewProperties {
		flags |= viewKeyFlag(k)
	}
	_, parentChanged := e.dirtyViewProperties[viewKeyParentPending]
	e.dirtyViewProperties = make(map[uint32]common.ReplicatedValue)

	if parentChanged {
		flags |= common.UpdateFlagsParent
	}

	script := e.script
	var changed []propertyChange
	var removed []*Component
	for id, entry := range e.dirtyComponents {
		for _, key := range entry.component.commitStaged() {
			changed = append(changed, propertyChange{componentID: id, key: key})
		}
		if entry.state == componentStateAdd {
			e.components[id] = entry.component
		}
		flags |= common.UpdateFlagsComponents
	}
	e.dirtyComponents = make(map[uint16]dirtyComponentEntry)

	for id := range e.transientDeletions {
		if c, ok := e.components[id]; ok {
			removed = append(removed, c)
			delete(e.components, id)
		}
		flags |= common.UpdateFlagsComponents
	}
	e.transientDeletions = make(map[uint16]bool)

	destroyed := e.destroyed
	if destroyed {
		for id, c := range e.components {
			removed = append(removed, c)
			delete(e.components, id)
		}
	}
	e.mu.Unlock()

	for _, c := range removed {
		c.fireOnLocalDelete()
	}
	if script != nil {
		for _, ch := range changed {
			script.NotifyPropertyChanged(ch.componentID, ch.key)
		}
	}
	if destroyed {
		e.fireDestroyCallback()
		return
	}
	e.fireUpdateCallback(flags)
}

func viewKeyFlag(key uint32) common.SpaceEntityUpdateFlags {
	switch key {
	case viewKeyName:
		return common.UpdateFlagsName
	case viewKeyPositionX:
		return common.UpdateFlagsPosition
	case viewKeyRotation:
		return common.UpdateFlagsRotation
	case viewKeyScale:
		return common.UpdateFlagsScale
	case viewKeyThirdPartyRef:
		return common.UpdateFlagsThirdPartyRef
	case viewKeyThirdPartyPlatform:
		return common.UpdateFlagsThirdPartyPlatform
	case viewKeySelectionID:
		return common.UpdateFlagsSelectionID
	default:
		return 0
	}
}

// Destroy marks the entity for removal; the next StagePendingPatch carries
// Destroy == true and CommitPendingPatch fires the destroy callback instead
// of the update callback once it has been sent.
func (e *SpaceEntity) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
}

func (e *SpaceEntity) IsDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// linkChild is called by EntityCollection.resolveLocked once a staged
// parent change has been matched to a live parent entity.
func (e *SpaceEntity) linkChild(parent *SpaceEntity) {
	e.mu.Lock()
	e.parent = parent
	e.mu.Unlock()
}

func (e *SpaceEntity) addChild(child *SpaceEntity) {
	e.mu.Lock()
	e.children = append(e.children, child)
	e.mu.Unlock()
}

func (e *SpaceEntity) removeChild(child *SpaceEntity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.children {
		if c == child {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}

// ApplyRemotePatch decodes an inbound wire.ObjectPatch directly into
// committed state: remote patches are never staged (spec.md §4.4). It
// returns the patch's wire.ParentUpdate (nil when the patch did not change
// the parent) so the caller's EntityCollection can re-resolve
// hierarchy, and fires the entity's update or destroy callback itself.
func (e *SpaceEntity) ApplyRemotePatch(patch wire.ObjectPatch) *wire.ParentUpdate {
	e.mu.Lock()

	e.ownerID = patch.OwnerID
	e.timeOfLastPatch = time.Now()

	var flags common.SpaceEntityUpdateFlags
	var parentUpdate *wire.ParentUpdate
	if patch.ParentUpdate.Changed {
		pu := patch.ParentUpdate
		parentUpdate = &pu
		e.parentID = patch.ParentUpdate.ParentID
		flags |= common.UpdateFlagsParent
	}

	script := e.script
	var changed []propertyChange
	for id, data := range patch.Components {
		if id == viewComponentID {
			flags |= e.applyViewPropertiesLocked(data.Properties)
			continue
		}
		if data.TypeTag == common.ComponentTypeInvalid {
			delete(e.components, id)
			flags |= common.UpdateFlagsComponents
			continue
		}
		c, ok := e.components[id]
		if !ok {
			c = newComponent(id, data.TypeTag, e)
			e.components[id] = c
		}
		for _, key := range c.applyRemote(data.Properties) {
			changed = append(changed, propertyChange{componentID: id, key: key})
		}
		flags |= common.UpdateFlagsComponents
	}

	destroyed := patch.Destroy
	if destroyed {
		e.destroyed = true
	}
	e.mu.Unlock()

	if script != nil {
		for _, ch := range changed {
			script.NotifyPropertyChanged(ch.componentID, ch.key)
		}
	}
	if destroyed {
		e.fireDestroyCallback()
	} else {
		e.fireUpdateCallback(flags)
	}
	return parentUpdate
}

// ParentID returns the staged or committed parent id, or nil if the entity
// is currently a root.
func (e *SpaceEntity) ParentID() *uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.parentID
}

// NewSpaceEntityFromMessage builds a SpaceEntity from a decoded
// wire.ObjectMessage, used both for the initial scene fetch and for
// materializing a peer's freshly-created entity (spec.md §4.2, §6).
func NewSpaceEntityFromMessage(msg wire.ObjectMessage, localClientID uint64) *SpaceEntity {
	e := NewSpaceEntity(msg.ID, msg.Type, msg.OwnerID, localClientID, msg.IsTransferable, msg.IsPersistent)
	e.parentID = msg.ParentID
	for id, data := range msg.Components {
		if id == viewComponentID {
			e.applyViewPropertiesLocked(data.Properties)
			continue
		}
		if data.TypeTag == common.ComponentTypeInvalid {
			continue
		}
		c := newComponent(id, data.TypeTag, e)
		for k, v := range data.Properties {
			c.committed[k] = v
		}
		e.components[id] = c
		if id >= e.nextComponentID {
			e.nextComponentID = id + 1
		}
	}
	return e
}

// ToMessage builds the full-state wire.ObjectMessage for this entity,
// snapshotting committed component state (spec.md §4.2). Used by the
// serializer when an entity is first sent.
func (e *SpaceEntity) ToMessage() wire.ObjectMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	comps := make(wire.ComponentsMap, len(e.components)+1)
	for id, c := range e.components {
		comps[id] = wire.ComponentData{TypeTag: c.kind, Properties: c.snapshotCommitted()}
	}
	comps[viewComponentID] = wire.ComponentData{
		TypeTag:    common.ComponentTypeView,
		Properties: e.snapshotViewPropertiesLocked(),
	}
	return wire.ObjectMessage{
		ID:             e.id,
		Type:           e.entityType,
		IsTransferable: e.isTransferable,
		IsPersistent:   e.isPersistent,
		OwnerID:        e.ownerID,
		ParentID:       e.parentID,
		Components:     comps,
	}
}
