// Package multiplayer implements the entity/component replication model:
// Component, SpaceEntity, the SpaceEntitySerializer that maps entities to
// and from wire frames, the RealtimeEngine interface shared by the online
// and offline engines, and the per-entity rate limiter and tick-guard
// predicate. It has no knowledge of the transport, script host, or leader
// election — those are wired in by the engines in multiplayer/online and
// multiplayer/offline.
package multiplayer

import (
	"sync"

	"github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/magnopus-opensource/csp-realtime/common"
)

// componentState is the lifecycle state of a locally dirty component,
// mirroring ComponentUpdateType for the subset that applies to local
// staging (a component is never locally "deleted" in place — deletion
// goes through the entity's transient deletion set instead).
type componentState uint8

const (
	componentStateAdd componentState = iota
	componentStateUpdate
)

// dirtyComponentEntry is the value type of SpaceEntity.dirtyComponents:
// a staged component plus what kind of change it represents.
type dirtyComponentEntry struct {
	component *Component
	state     componentState
}

// Component is an opaque bag of keyed ReplicatedValues attached to a
// SpaceEntity. Keys in [1,64] are reserved for view (entity-level)
// properties; keys >= wire.ViewPropertyFloor are user component properties
// (spec.md §3).
type Component struct {
	mu sync.Mutex

	id   uint16
	kind common.ComponentType

	committed map[uint32]common.ReplicatedValue
	staged    map[uint32]common.ReplicatedValue

	owner *SpaceEntity

	onLocalDelete func()

	tickGuardSrc string
	tickGuard    *exprvm.Program
}

func newComponent(id uint16, kind common.ComponentType, owner *SpaceEntity) *Component {
	return &Component{
		id:        id,
		kind:      kind,
		committed: make(map[uint32]common.ReplicatedValue),
		staged:    make(map[uint32]common.ReplicatedValue),
		owner:     owner,
	}
}

func (c *Component) ID() uint16 { return c.id }
func (c *Component) Type() common.ComponentType { return c.kind }

// SetProperty writes into the local staging map and marks the owning
// entity dirty. It does not transmit (spec.md §4.3).
func (c *Component) SetProperty(key uint32, value common.ReplicatedValue) {
	c.mu.Lock()
	c.staged[key] = value
	c.mu.Unlock()
	c.owner.markComponentDirty(c)
}

// GetProperty returns the committed value, or common.Invalid for an absent
// key (spec.md §4.3).
func (c *Component) GetProperty(key uint32) common.ReplicatedValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.committed[key]; ok {
		return v
	}
	return common.Invalid
}

// Remove inserts this component's id into the owning entity's transient
// deletion set; the delete is soft and only takes effect once emitted in
// the next outbound patch (spec.md §4.3, §3 Component lifecycle).
func (c *Component) Remove() {
	c.owner.markComponentForRemoval(c.id)
}

// SetOnLocalDelete registers the hook invoked exactly once when the owning
// entity is torn down locally (the commit of a local Destroy) or when this
// component's own removal is committed. Concrete components use this to release
// external resource references; the engine treats it as opaque.
func (c *Component) SetOnLocalDelete(fn func()) {
	c.mu.Lock()
	c.onLocalDelete = fn
	c.mu.Unlock()
}

func (c *Component) fireOnLocalDelete() {
	c.mu.Lock()
	fn := c.onLocalDelete
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetTickGuard compiles an expr-lang boolean predicate evaluated before the
// engine fires entityTick for the owning entity's script, letting callers
// cheaply throttle script execution without paying for a goja call every
// frame (e.g. "deltaMS > 50"; script.Host.Tick passes deltaMS). Grounded directly on the
// teacher's ExprFilterNode (components/transform/expr_filter_node.go),
// which compiles an expr-lang program once at Init and evaluates it per
// message; here the "message" is the tick environment the caller passes to
// EvaluateTickGuard.
func (c *Component) SetTickGuard(src string) error {
	program, err := expr.Compile(src, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tickGuardSrc = src
	c.tickGuard = program
	c.mu.Unlock()
	return nil
}

// EvaluateTickGuard runs the compiled tick guard against env, returning
// true (tick proceeds) when no guard has been set.
func (c *Component) EvaluateTickGuard(env map[string]any) (bool, error) {
	c.mu.Lock()
	program := c.tickGuard
	c.mu.Unlock()
	if program == nil {
		return true, nil
	}
	out, err := exprvm.Run(program, env)
	if err != nil {
		return false, err
	}
	result, _ := out.(bool)
	return result, nil
}

// snapshotCommitted returns a copy of the committed property map, used by
// the serializer when building an outbound ObjectMessage/ObjectPatch.
func (c *Component) snapshotCommitted() map[uint32]common.ReplicatedValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint32]common.ReplicatedValue, len(c.committed))
	for k, v := range c.committed {
		out[k] = v
	}
	return out
}

// stagedSnapshot returns a copy of the currently staged (not yet committed)
// properties, used by the serializer to build the payload for an Add/Update
// patch entry without waiting for commitStaged.
func (c *Component) stagedSnapshot() map[uint32]common.ReplicatedValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint32]common.ReplicatedValue, len(c.staged))
	for k, v := range c.staged {
		out[k] = v
	}
	return out
}

// commitStaged merges staged properties into committed and clears staging,
// called by SpaceEntity.CommitPendingPatch once the component has been sent.
// It returns the keys that were committed, so the caller can notify an
// attached script of exactly which properties changed.
func (c *Component) commitStaged() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]uint32, 0, len(c.staged))
	for k, v := range c.staged {
		c.committed[k] = v
		keys = append(keys, k)
	}
	c.staged = make(map[uint32]common.ReplicatedValue)
	return keys
}

// applyRemote overwrites committed state directly with values from an
// inbound patch (remote patches are never staged, spec.md §4.4). It returns
// the keys that changed, so the caller can notify an attached script.
func (c *Component) applyRemote(props map[uint32]common.ReplicatedValue) []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]uint32, 0, len(props))
	for k, v := range props {
		c.committed[k] = v
		keys = append(keys, k)
	}
	return keys
}
