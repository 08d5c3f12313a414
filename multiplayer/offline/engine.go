package offline

import (
	"math/rand"
	"sync"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
)

// localClientID is fixed for the lifetime of an offline engine: there is
// only ever one participant, so every entity it creates is always
// modifiable by it.
const localClientID = uint64(1)

// Engine is OfflineRealtimeEngine: a single-process RealtimeEngine with no
// transport. All mutations are synchronous — callbacks fire before the
// initiating call returns — and ids are drawn from a local PRNG with a
// large keyspace rather than allocated by a hub (spec.md §4.6).
type Engine struct {
	mu sync.Mutex
	multiplayer.BaseEngine

	serializer multiplayer.SpaceEntitySerializer
	rng        *rand.Rand

	remoteCreated multiplayer.RemoteEntityCreatedCallback
}

// New constructs an offline engine, optionally pre-loaded from a
// SceneDescription (nil for an empty scene).
func New(log common.Logger, scene *SceneDescription) *Engine {
	e := &Engine{
		BaseEngine: multiplayer.NewBaseEngine(log),
		serializer: multiplayer.NewSpaceEntitySerializer(),
		rng:        rand.New(rand.NewSource(int64(common.NewOfflineEntityID()))),
	}
	if scene != nil {
		for _, msg := range scene.toObjectMessages() {
			se := multiplayer.NewSpaceEntityFromMessage(msg, localClientID)
			e.Collection.Add(se)
		}
	}
	return e
}

func (e *Engine) nextID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Uint64()
}

func (e *Engine) SetRemoteEntityCreatedCallback(cb multiplayer.RemoteEntityCreatedCallback) {
	e.mu.Lock()
	e.remoteCreated = cb
	e.mu.Unlock()
}

func (e *Engine) CreateAvatar(name string, userID string, position common.Vector3, rotation common.Vector4, isVisible bool, avatarID string, playMode common.AvatarPlayMode, cb multiplayer.CreateCallback) {
	se := multiplayer.NewSpaceEntity(e.nextID(), common.SpaceEntityTypeAvatar, localClientID, localClientID, true, false)
	se.SetName(name, e.Log)
	se.SetPosition(position, e.Log)
	se.SetRotation(rotation, e.Log)

	avatarComp, err := se.AddComponent(common.ComponentTypeAvatar)
	if err != nil {
		e.Log.Printf("CreateAvatar: %v", err)
		cb(nil)
		return
	}
	avatarComp.SetProperty(1, common.NewString(userID))
	avatarComp.SetProperty(2, common.NewString(avatarID))
	avatarComp.SetProperty(3, common.NewInt64(int64(playMode)))
	avatarComp.SetProperty(4, common.NewBool(isVisible))

	se.CommitPendingPatch()
	e.Collection.Add(se)
	cb(se)
}

func (e *Engine) CreateEntity(name string, position common.Vector3, rotation common.Vector4, parentID *uint64, cb multiplayer.CreateCallback) {
	se := multiplayer.NewSpaceEntity(e.nextID(), common.SpaceEntityTypeObject, localClientID, localClientID, true, false)
	se.SetName(name, e.Log)
	se.SetPosition(position, e.Log)
	se.SetRotation(rotation, e.Log)
	if parentID != nil {
		se.SetParentID(*parentID)
	}
	se.CommitPendingPatch()
	e.Collection.Add(se)
	cb(se)
}

func (e *Engine) DestroyEntity(entity *multiplayer.SpaceEntity, cb multiplayer.DestroyResultCallback) {
	if entity == nil {
		cb(false)
		return
	}
	entity.Destroy()
	e.Collection.Remove(entity)
	entity.CommitPendingPatch()
	cb(true)
}

func (e *Engine) QueueEntityUpdate(entity *multiplayer.SpaceEntity) {
	if entity == nil {
		return
	}
	entity.CommitPendingPatch()
	if entity.ParentID() != nil || entity.Parent() != nil {
		e.Collection.Resolve(entity)
	}
}

// ProcessPendingEntityOperations is a no-op for the offline engine: every
// mutation is already synchronous by the time the call that made it
// returns (spec.md §4.6).
func (e *Engine) ProcessPendingEntityOperations() {}

// FetchAllEntitiesAndPopulateBuffers invokes both callbacks immediately
// (spec.md §4.6). The count passed to complete is the number of entities
// now in the collection, which includes any created or destroyed since the
// scene loaded, not only the scene-loaded ones; the remote-created callback
// fires for each of those entities on every call.
func (e *Engine) FetchAllEntitiesAndPopulateBuffers(spaceID string, started multiplayer.FetchStartedCallback, complete multiplayer.FetchCompleteCallback) {
	if started != nil {
		started()
	}
	count := e.Collection.Len()
	for _, se := range e.Collection.Entities() {
		e.mu.Lock()
		cb := e.remoteCreated
		e.mu.Unlock()
		if cb != nil {
			cb(se)
		}
	}
	if complete != nil {
		complete(count)
	}
}

// IsScriptResponsible always follows ownership: an offline engine has no
// leader election, since there is never more than one participant
// (spec.md §4.6, §4.9).
func (e *Engine) IsScriptResponsible(entity *multiplayer.SpaceEntity) bool {
	return entity.IsModifiable()
}

var _ multiplayer.RealtimeEngine = (*Engine)(nil)
