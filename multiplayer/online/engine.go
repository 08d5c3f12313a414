// Package online implements OnlineRealtimeEngine: a networked
// RealtimeEngine driven by a transport.HubTransport, with paged initial
// fetch, rate-limited outbound patch batching, and inbound patch merge
// (spec.md §4.7).
package online

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/config"
	"github.com/magnopus-opensource/csp-realtime/election"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
	"github.com/magnopus-opensource/csp-realtime/script"
	"github.com/magnopus-opensource/csp-realtime/telemetry"
	"github.com/magnopus-opensource/csp-realtime/transport"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

// Engine is OnlineRealtimeEngine.
type Engine struct {
	multiplayer.BaseEngine

	mu sync.Mutex

	transport  transport.HubTransport
	serializer multiplayer.SpaceEntitySerializer
	cfg        config.Config
	rateLimit  *multiplayer.RateLimiter

	localClientID uint64
	spaceID       string

	pendingAdds     []*multiplayer.SpaceEntity
	pendingIncoming []wire.ObjectPatch
	pendingOutbound map[uint64]*multiplayer.SpaceEntity

	remoteCreated multiplayer.RemoteEntityCreatedCallback

	election   *election.LeaderElection
	scriptHost *script.Host
	telemetry  *telemetry.MQTTEventBridge
}

// New wires an Engine to transport t, identified by localClientID (the id
// the hub has assigned this connection, e.g. via GenerateObjectIds for its
// avatar). The caller is expected to call transport.Connect before using
// the engine.
func New(t transport.HubTransport, localClientID uint64, cfg config.Config) *Engine {
	e := &Engine{
		BaseEngine:      multiplayer.NewBaseEngine(cfg.Logger),
		transport:       t,
		serializer:      multiplayer.NewSpaceEntitySerializer(),
		cfg:             cfg,
		localClientID:   localClientID,
		pendingOutbound: make(map[uint64]*multiplayer.SpaceEntity),
	}
	if !cfg.RateLimitDisabled {
		e.rateLimit = multiplayer.NewRateLimiter(cfg.PatchRateLimit)
	}
	t.SetHandlers(transport.Handlers{
		OnObjectMessage:       e.onObjectMessage,
		OnObjectPatch:         e.onObjectPatch,
		OnRequestToSendObject: e.onRequestToSendObject,
		OnRequestToDisconnect: e.onRequestToDisconnect,
		OnNetworkEvent:        e.onNetworkEvent,
	})
	e.telemetry = telemetry.New(cfg.MQTTBrokerURL, cfg.MQTTClientID, "", cfg.Logger)

	if cfg.LeaderElectionEnabled {
		e.election = election.New(localClientID, t, cfg.Logger, cfg.HeartbeatInterval)
		e.election.SetOnLeaderChanged(func(leaderID uint64, _ bool) {
			e.telemetry.PublishLeaderChanged(leaderID)
		})
	}
	return e
}

func (e *Engine) SetRemoteEntityCreatedCallback(cb multiplayer.RemoteEntityCreatedCallback) {
	e.mu.Lock()
	e.remoteCreated = cb
	e.mu.Unlock()
}

// SetScriptHost attaches the script.Host this engine consults when it
// receives a RemoteRunScriptMessage and is the current leader. Without one
// attached, such requests are logged and dropped.
func (e *Engine) SetScriptHost(h *script.Host) {
	e.mu.Lock()
	e.scriptHost = h
	e.mu.Unlock()
	if h != nil {
		h.SetOnError(func(entityID uint64, err error) {
			e.telemetry.PublishScriptError(entityID, err.Error())
		})
	}
}

// --- Inbound hub events (spec.md §4.7) ---

func (e *Engine) onObjectMessage(msg wire.ObjectMessage) {
	se := e.serializer.DecodeObjectMessage(msg, e.localClientID)
	e.mu.Lock()
	e.pendingAdds = append(e.pendingAdds, se)
	cb := e.remoteCreated
	e.mu.Unlock()
	if cb != nil {
		cb(se)
	}
}

func (e *Engine) onObjectPatch(p wire.ObjectPatch) {
	e.mu.Lock()
	e.pendingIncoming = append(e.pendingIncoming, p)
	e.mu.Unlock()
}

func (e *Engine) onRequestToSendObject(id uint64) {
	ctx := context.Background()
	se, ok := e.Collection.Get(id)
	if !ok {
		_ = e.transport.SendObjectNotFound(ctx, id)
		return
	}
	_ = e.transport.SendObjectMessage(ctx, e.serializer.BuildObjectMessage(se))
}

// onRequestToDisconnect closes the transport in a goroutine and waits for it
// up to a 2s deadline, logging if the close has not finished by then
// (spec.md §4.7).
func (e *Engine) onRequestToDisconnect(reason string) {
	e.cfg.Logger.Printf("online: disconnect requested: %s", reason)
	done := make(chan struct{})
	go func() {
		_ = e.transport.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		e.cfg.Logger.Printf("online: disconnect did not complete within deadline")
	}
}

func (e *Engine) onNetworkEvent(event transport.NetworkEvent) {
	if event.Channel == election.ChannelRemoteRunScript {
		e.handleRemoteRunScript(event)
		return
	}
	if e.election == nil {
		return
	}
	e.election.HandleNetworkEvent(context.Background(), event)
}

// handleRemoteRunScript applies an incoming RemoteRunScriptMessage if this
// client is the current leader; non-leaders ignore it, since only the
// leader owns shared script state (spec.md §4.8, §4.9).
func (e *Engine) handleRemoteRunScript(event transport.NetworkEvent) {
	e.mu.Lock()
	host := e.scriptHost
	le := e.election
	e.mu.Unlock()

	if host == nil || le == nil || !le.IsLeader() {
		return
	}
	msg, err := election.DecodeRemoteRunScript(event)
	if err != nil {
		e.cfg.Logger.Printf("online: malformed RemoteRunScriptMessage: %v", err)
		return
	}
	if err := host.RunRemote(msg.ContextID, msg.ScriptText); err != nil {
		e.cfg.Logger.Printf("online: RunRemote failed: %v", err)
	}
}

// --- Lookup / iteration are inherited from multiplayer.BaseEngine. ---

// --- CRUD (spec.md §4.5, §4.7) ---

// CreateAvatar runs the four-step chained continuation: generate an id,
// send the full-state message, await the ack, then commit locally and
// invoke the caller's callback.
func (e *Engine) CreateAvatar(name string, userID string, position common.Vector3, rotation common.Vector4, isVisible bool, avatarID string, playMode common.AvatarPlayMode, cb multiplayer.CreateCallback) {
	ctx := context.Background()
	ids, err := e.transport.GenerateObjectIDs(ctx, 1)
	if err != nil || len(ids) == 0 {
		e.cfg.Logger.Printf("CreateAvatar: GenerateObjectIds failed: %v", err)
		cb(nil)
		return
	}

	se := multiplayer.NewSpaceEntity(ids[0], common.SpaceEntityTypeAvatar, e.localClientID, e.localClientID, true, false)
	se.SetName(name, e.cfg.Logger)
	se.SetPosition(position, e.cfg.Logger)
	se.SetRotation(rotation, e.cfg.Logger)

	avatarComp, err := se.AddComponent(common.ComponentTypeAvatar)
	if err != nil {
		e.cfg.Logger.Printf("CreateAvatar: %v", err)
		cb(nil)
		return
	}
	avatarComp.SetProperty(1, common.NewString(userID))
	avatarComp.SetProperty(2, common.NewString(avatarID))
	avatarComp.SetProperty(3, common.NewInt64(int64(playMode)))
	avatarComp.SetProperty(4, common.NewBool(isVisible))
	se.CommitPendingPatch()

	if err := e.transport.SendObjectMessage(ctx, e.serializer.BuildObjectMessage(se)); err != nil {
		e.cfg.Logger.Printf("CreateAvatar: SendObjectMessage failed: %v", err)
		cb(nil)
		return
	}

	e.Collection.Add(se)
	if e.election != nil {
		e.election.NoteClientJoined(e.localClientID)
	}
	e.telemetry.PublishEntityCreated(se.ID())
	cb(se)
}

func (e *Engine) CreateEntity(name string, position common.Vector3, rotation common.Vector4, parentID *uint64, cb multiplayer.CreateCallback) {
	ctx := context.Background()
	ids, err := e.transport.GenerateObjectIDs(ctx, 1)
	if err != nil || len(ids) == 0 {
		e.cfg.Logger.Printf("CreateEntity: GenerateObjectIds failed: %v", err)
		cb(nil)
		return
	}

	se := multiplayer.NewSpaceEntity(ids[0], common.SpaceEntityTypeObject, e.localClientID, e.localClientID, true, false)
	se.SetName(name, e.cfg.Logger)
	se.SetPosition(position, e.cfg.Logger)
	se.SetRotation(rotation, e.cfg.Logger)
	if parentID != nil {
		se.SetParentID(*parentID)
	}
	se.CommitPendingPatch()

	if err := e.transport.SendObjectMessage(ctx, e.serializer.BuildObjectMessage(se)); err != nil {
		e.cfg.Logger.Printf("CreateEntity: SendObjectMessage failed: %v", err)
		cb(nil)
		return
	}

	e.Collection.Add(se)
	e.telemetry.PublishEntityCreated(se.ID())
	cb(se)
}

// DestroyEntity emits a compound patch: one delete entry for the target
// and, for each child, a parent-change entry moving it to root, all in one
// SendObjectPatches call. The local representation is removed immediately,
// before the ack (spec.md §4.7).
func (e *Engine) DestroyEntity(entity *multiplayer.SpaceEntity, cb multiplayer.DestroyResultCallback) {
	if entity == nil {
		cb(false)
		return
	}

	children := entity.ChildEntities()
	patches := make([]wire.ObjectPatch, 0, 1+len(children))
	patches = append(patches, wire.ObjectPatch{ID: entity.ID(), OwnerID: entity.OwnerID(), Destroy: true})
	for _, c := range children {
		patches = append(patches, wire.ObjectPatch{
			ID:           c.ID(),
			OwnerID:      c.OwnerID(),
			ParentUpdate: wire.ParentUpdate{Changed: true, ParentID: nil},
		})
	}

	entity.Destroy()
	e.Collection.Remove(entity)

	ctx := context.Background()
	err := e.transport.SendObjectPatches(ctx, patches)
	if err != nil {
		e.cfg.Logger.Printf("DestroyEntity: %v", err)
	}
	entity.CommitPendingPatch()
	e.telemetry.PublishEntityDestroyed(entity.ID())
	cb(err == nil)
}

func (e *Engine) QueueEntityUpdate(entity *multiplayer.SpaceEntity) {
	if entity == nil {
		return
	}
	e.mu.Lock()
	e.pendingOutbound[entity.ID()] = entity
	e.mu.Unlock()
}

// ProcessPendingEntityOperations drains every pending queue, once per tick
// (spec.md §4.7).
func (e *Engine) ProcessPendingEntityOperations() {
	timer := config.TickTimer("online")
	defer timer.ObserveDuration()

	e.drainPendingAdds()
	e.drainPendingIncoming()
	e.drainPendingOutbound()
}

func (e *Engine) drainPendingAdds() {
	e.mu.Lock()
	adds := e.pendingAdds
	e.pendingAdds = nil
	e.mu.Unlock()

	for _, se := range adds {
		e.Collection.Add(se)
	}
}

func (e *Engine) drainPendingIncoming() {
	e.mu.Lock()
	patches := e.pendingIncoming
	e.pendingIncoming = nil
	e.mu.Unlock()

	for _, p := range patches {
		se, ok := e.Collection.Get(p.ID)
		if !ok {
			e.cfg.Logger.Printf("online: patch for unknown entity %d", p.ID)
			continue
		}
		if pu := e.serializer.ApplyObjectPatch(se, p); pu != nil {
			e.Collection.Resolve(se)
		}
		if p.Destroy {
			e.Collection.Remove(se)
			e.telemetry.PublishEntityDestroyed(se.ID())
		}
	}
}

func (e *Engine) drainPendingOutbound() {
	e.mu.Lock()
	outbound := e.pendingOutbound
	e.pendingOutbound = make(map[uint64]*multiplayer.SpaceEntity)
	e.mu.Unlock()

	var batch []*multiplayer.SpaceEntity
	var patches []wire.ObjectPatch
	for id, se := range outbound {
		if !se.HasPendingChanges() {
			continue
		}
		if !se.IsModifiable() {
			config.ObservePatchDropped("not_modifiable")
			e.cfg.Logger.Printf("online: entity %d not modifiable, dropping pending send", id)
			continue
		}
		if e.rateLimit != nil && !e.rateLimit.Allow(id) {
			e.mu.Lock()
			e.pendingOutbound[id] = se
			e.mu.Unlock()
			continue
		}
		batch = append(batch, se)
		patches = append(patches, e.serializer.BuildObjectPatch(se, se.StagePendingPatch()))
	}
	if len(batch) == 0 {
		return
	}

	ctx := context.Background()
	err := e.transport.SendObjectPatches(ctx, patches)
	config.ObservePatchSent(err == nil)
	if err != nil {
		e.cfg.Logger.Printf("online: SendObjectPatches failed: %v", err)
		return
	}
	for _, se := range batch {
		se.CommitPendingPatch()
	}
}

// FetchAllEntitiesAndPopulateBuffers implements the initial fetch protocol:
// refresh scopes, then page through PageScopedObjects until exhausted,
// enqueueing every decoded entity as a pending add (spec.md §4.7).
func (e *Engine) FetchAllEntitiesAndPopulateBuffers(spaceID string, started multiplayer.FetchStartedCallback, complete multiplayer.FetchCompleteCallback) {
	ctx := context.Background()
	e.spaceID = spaceID
	e.telemetry.SetSpaceID(spaceID)

	if started != nil {
		started()
	}

	if err := e.transport.StopListening(ctx); err != nil {
		e.cfg.Logger.Printf("FetchAllEntitiesAndPopulateBuffers: StopListening: %v", err)
	}
	if err := e.transport.SetScopes(ctx, spaceID); err != nil {
		e.cfg.Logger.Printf("FetchAllEntitiesAndPopulateBuffers: SetScopes: %v", err)
	}
	if err := e.transport.StartListening(ctx); err != nil {
		e.cfg.Logger.Printf("FetchAllEntitiesAndPopulateBuffers: StartListening: %v", err)
	}

	pageSize := e.cfg.FetchPageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	total := 0
	skip := 0
	for {
		page, err := e.transport.PageScopedObjects(ctx, true, true, skip, pageSize)
		if err != nil {
			e.cfg.Logger.Printf("FetchAllEntitiesAndPopulateBuffers: PageScopedObjects: %v", err)
			break
		}
		for _, msg := range page.Items {
			se := e.serializer.DecodeObjectMessage(msg, e.localClientID)
			e.mu.Lock()
			e.pendingAdds = append(e.pendingAdds, se)
			cb := e.remoteCreated
			e.mu.Unlock()
			if cb != nil {
				cb(se)
			}
		}
		total += len(page.Items)
		skip += len(page.Items)
		if len(page.Items) < pageSize || skip >= page.TotalCount {
			break
		}
	}

	e.drainPendingAdds()

	if e.election != nil {
		e.election.NoteClientJoined(e.localClientID)
	}

	if complete != nil {
		complete(total)
	}
}

// RequestRemoteScriptRun asks the current leader to apply scriptText to the
// script context contextID. Callers that are themselves the leader should
// call script.Host.RunRemote directly instead of round-tripping through the
// hub.
func (e *Engine) RequestRemoteScriptRun(ctx context.Context, contextID uint64, scriptText string) error {
	e.mu.Lock()
	le := e.election
	e.mu.Unlock()
	if le == nil {
		return fmt.Errorf("online: leader election not enabled")
	}
	leaderID, ok := le.Leader()
	if !ok {
		return fmt.Errorf("online: no leader known yet")
	}
	return le.SendRemoteRunScript(ctx, leaderID, contextID, scriptText)
}

// IsScriptResponsible reports whether this client fires entityTick for
// entity this tick: the owner when leader election is disabled (there is
// no single-writer arbiter, so ownership is the only signal), the current
// leader otherwise, regardless of who owns the entity (spec.md §4.8, §4.9).
func (e *Engine) IsScriptResponsible(entity *multiplayer.SpaceEntity) bool {
	e.mu.Lock()
	le := e.election
	e.mu.Unlock()
	if le == nil {
		return entity.IsModifiable()
	}
	return le.IsLeader()
}

// Close releases the transport connection and any telemetry bridge.
func (e *Engine) Close() error {
	e.telemetry.Close()
	return e.transport.Close()
}

var _ multiplayer.RealtimeEngine = (*Engine)(nil)
