// Package csp is the public entry point: Foundation wires a transport, a
// RealtimeEngine (online or offline, chosen by how it's built), a script
// host, and the optional telemetry bridge into one object an application
// ticks once per frame. Grounded on the teacher's engine.NewConfig +
// chain_engine.go top-level constructor pattern: one New* entry point
// taking functional options, returning a single object the caller drives.
package csp

import (
	"context"
	"fmt"
	"sync"

	"github.com/magnopus-opensource/csp-realtime/config"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
	"github.com/magnopus-opensource/csp-realtime/multiplayer/offline"
	"github.com/magnopus-opensource/csp-realtime/multiplayer/online"
	"github.com/magnopus-opensource/csp-realtime/script"
	"github.com/magnopus-opensource/csp-realtime/transport"
)

// Option is an alias of config.Option so callers only import one options
// type regardless of which package it ultimately configures.
type Option = config.Option

// Foundation is the top-level handle an application holds: it owns the
// transport connection, the realtime engine, and the script host, and
// exposes the uniform RealtimeEngine surface plus lifecycle methods.
type Foundation struct {
	mu sync.Mutex

	cfg       config.Config
	transport *transport.WSHubTransport
	engine    multiplayer.RealtimeEngine
	online    *online.Engine
	scripts   *script.Host
}

// NewFoundation dials endpoint as tenant and returns a Foundation backed by
// the networked OnlineRealtimeEngine. The caller still must call
// FetchAllEntitiesAndPopulateBuffers before using the entity collection
// (spec.md §4.7, §6.4).
func NewFoundation(tenant, endpoint string, opts ...Option) (*Foundation, error) {
	cfg := config.NewConfig(opts...)

	t := transport.NewWSHubTransport(cfg.Logger)
	ctx := context.Background()
	if err := t.Connect(ctx, endpoint, tenant); err != nil {
		return nil, fmt.Errorf("csp: connect to %s: %w", endpoint, err)
	}

	ids, err := t.GenerateObjectIDs(ctx, 1)
	if err != nil || len(ids) == 0 {
		_ = t.Close()
		return nil, fmt.Errorf("csp: allocate local client id: %w", err)
	}

	scripts := script.NewHost(cfg.Logger, cfg.ScriptMaxExecutionTime)
	eng := online.New(t, ids[0], cfg)
	eng.SetScriptHost(scripts)

	return &Foundation{
		cfg:       cfg,
		transport: t,
		engine:    eng,
		online:    eng,
		scripts:   scripts,
	}, nil
}

// NewOfflineFoundation returns a Foundation backed by the single-process
// OfflineRealtimeEngine, optionally seeded from scene (nil for an empty
// space). There is no transport to dial and no leader election, since there
// is never more than one participant (spec.md §4.6, §6.3).
func NewOfflineFoundation(scene *offline.SceneDescription, opts ...Option) *Foundation {
	cfg := config.NewConfig(opts...)
	scripts := script.NewHost(cfg.Logger, cfg.ScriptMaxExecutionTime)
	eng := offline.New(cfg.Logger, scene)

	return &Foundation{cfg: cfg, engine: eng, scripts: scripts}
}

// Engine exposes the uniform RealtimeEngine surface for entity CRUD,
// iteration, and locking.
func (f *Foundation) Engine() multiplayer.RealtimeEngine { return f.engine }

// Scripts exposes the script host so callers can attach EntityScript
// contexts or subscribe to errors.
func (f *Foundation) Scripts() *script.Host { return f.scripts }

// RequestRemoteScriptRun forwards to the online engine's leader round-trip.
// It returns an error on an offline Foundation, since there is no leader to
// ask.
func (f *Foundation) RequestRemoteScriptRun(ctx context.Context, contextID uint64, scriptText string) error {
	if f.online == nil {
		return fmt.Errorf("csp: RequestRemoteScriptRun requires an online Foundation")
	}
	return f.online.RequestRemoteScriptRun(ctx, contextID, scriptText)
}

// Tick drains one frame's worth of pending network operations and fires
// entityTick on every script-bearing entity this client is responsible for:
// the owner when leader election is disabled, the current leader otherwise
// (spec.md §4.7, §4.8, §4.9). deltaMS is the elapsed time since the
// previous Tick, in milliseconds.
func (f *Foundation) Tick(deltaMS int64) {
	timer := config.TickTimer("foundation")
	defer timer.ObserveDuration()

	f.engine.ProcessPendingEntityOperations()

	var ownedIDs []uint64
	for _, e := range f.engine.Entities() {
		if f.engine.IsScriptResponsible(e) {
			ownedIDs = append(ownedIDs, e.ID())
		}
	}
	f.scripts.Tick(ownedIDs, deltaMS)
}

// Shutdown closes the transport connection, if any. It is a no-op for an
// offline Foundation.
func (f *Foundation) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.online != nil {
		if err := f.online.Close(); err != nil {
			return err
		}
	}
	return nil
}
