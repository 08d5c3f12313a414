package multiplayer

import (
	"github.com/magnopus-opensource/csp-realtime/common"
)

// CreateCallback receives the newly created entity, or nil if creation
// failed (the underlying error is logged, never raised through the
// callback, per spec.md §7 Propagation policy).
type CreateCallback func(entity *SpaceEntity)

// DestroyResultCallback reports whether DestroyEntity succeeded.
type DestroyResultCallback func(ok bool)

// RemoteEntityCreatedCallback fires once for every entity that arrives
// from a peer rather than being created locally (an OnObjectMessage event).
// The offline engine fires it from FetchAllEntitiesAndPopulateBuffers for
// every entity in its collection, locally created ones included.
type RemoteEntityCreatedCallback func(entity *SpaceEntity)

// FetchStartedCallback / FetchCompleteCallback bracket the initial scene
// load (spec.md §4.6, §4.7).
type FetchStartedCallback func()
type FetchCompleteCallback func(count int)

// RealtimeEngine is the uniform surface shared by OfflineRealtimeEngine and
// OnlineRealtimeEngine: entity CRUD, iteration, and tick draining
// (spec.md §4.5). Concrete engines live in multiplayer/offline and
// multiplayer/online; this package only defines the contract, keeping
// transport and script concerns out of it.
type RealtimeEngine interface {
	CreateAvatar(name string, userID string, position common.Vector3, rotation common.Vector4, isVisible bool, avatarID string, playMode common.AvatarPlayMode, cb CreateCallback)
	CreateEntity(name string, position common.Vector3, rotation common.Vector4, parentID *uint64, cb CreateCallback)
	DestroyEntity(entity *SpaceEntity, cb DestroyResultCallback)

	FindSpaceEntity(name string) (*SpaceEntity, bool)
	FindSpaceEntityByID(id uint64) (*SpaceEntity, bool)
	FindSpaceAvatar(name string) (*SpaceEntity, bool)
	FindSpaceObject(name string) (*SpaceEntity, bool)

	Entities() []*SpaceEntity
	Avatars() []*SpaceEntity
	Objects() []*SpaceEntity
	GetRootHierarchyEntities() []*SpaceEntity

	QueueEntityUpdate(entity *SpaceEntity)
	ProcessPendingEntityOperations()

	LockEntityUpdate()
	TryLockEntityUpdate() bool
	UnlockEntityUpdate()

	FetchAllEntitiesAndPopulateBuffers(spaceID string, started FetchStartedCallback, complete FetchCompleteCallback)

	SetRemoteEntityCreatedCallback(cb RemoteEntityCreatedCallback)

	// IsScriptResponsible reports whether this client should fire entityTick
	// for entity's script this tick: the owner when leader election is
	// disabled, the current leader otherwise (spec.md §4.8, §4.9).
	IsScriptResponsible(entity *SpaceEntity) bool
}

// BaseEngine is the shared implementation both OfflineRealtimeEngine and
// OnlineRealtimeEngine embed: the entity collection, the name-based lookup
// helpers, and the non-recursive update lock. It intentionally
// implements none of RealtimeEngine's CRUD operations itself — those differ
// enough between offline and online that duplicating the method bodies
// reads clearer than forcing a shared Create/Destroy through a strategy
// callback (grounded on the teacher's own engine/registry.go, which is
// embedded by concrete node types rather than parameterized).
type BaseEngine struct {
	Collection *EntityCollection
	Log        common.Logger

	updateLock chan struct{} // 1-buffered channel used as a non-recursive mutex.
}

// NewBaseEngine constructs a BaseEngine with an empty collection and the
// given logger (common.DefaultLogger() if nil).
func NewBaseEngine(log common.Logger) BaseEngine {
	if log == nil {
		log = common.DefaultLogger()
	}
	lock := make(chan struct{}, 1)
	lock <- struct{}{}
	return BaseEngine{Collection: NewEntityCollection(), Log: log, updateLock: lock}
}

func (b *BaseEngine) LockEntityUpdate() { <-b.updateLock }

func (b *BaseEngine) TryLockEntityUpdate() bool {
	select {
	case <-b.updateLock:
		return true
	default:
		return false
	}
}

func (b *BaseEngine) UnlockEntityUpdate() {
	select {
	case b.updateLock <- struct{}{}:
	default:
	}
}

func (b *BaseEngine) Entities() []*SpaceEntity                 { return b.Collection.Entities() }
func (b *BaseEngine) Avatars() []*SpaceEntity                  { return b.Collection.Avatars() }
func (b *BaseEngine) Objects() []*SpaceEntity                  { return b.Collection.Objects() }
func (b *BaseEngine) GetRootHierarchyEntities() []*SpaceEntity { return b.Collection.RootEntities() }

func (b *BaseEngine) FindSpaceEntityByID(id uint64) (*SpaceEntity, bool) {
	return b.Collection.Get(id)
}

func (b *BaseEngine) FindSpaceEntity(name string) (*SpaceEntity, bool) {
	for _, e := range b.Collection.Entities() {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}

func (b *BaseEngine) FindSpaceAvatar(name string) (*SpaceEntity, bool) {
	for _, e := range b.Collection.Avatars() {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}

func (b *BaseEngine) FindSpaceObject(name string) (*SpaceEntity, bool) {
	for _, e := range b.Collection.Objects() {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}
