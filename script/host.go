// Package script implements the per-entity JavaScript execution context
// (EntityScript) and the shared runtime host (Host) that creates, resets,
// and tears them down. It depends on multiplayer (for multiplayer.
// ScriptHandle and the entity snapshot it binds into a script's global
// scope) but multiplayer never imports script back, avoiding the cyclic
// ownership the original C++ design has between SpaceEntity and
// EntityScript (spec.md §4.9 Design Notes).
//
// Grounded on the teacher's utils/js/js_engine.go (GojaJsEngine: one
// *goja.Runtime per script, goja.AssertFunction to invoke a named
// top-level function) and components/transform/js_filter_node.go (a
// sync.Pool of VMs seeded from one precompiled goja.Program). Unlike the
// teacher's stateless filter predicate, an EntityScript's VM is long-lived
// and single-owner for its subscribed-message state, so Host pools whole
// EntityScript contexts by entity id rather than pooling bare VMs.
package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/fatih/structs"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
)

// EntitySnapshot is the read-only view of an entity a script binds to as
// ThisEntity; it is rebuilt with structs.Map on every ThisEntity.snapshot()
// call so a script always observes the entity's latest committed properties.
type EntitySnapshot struct {
	ID      uint64  `structs:"id"`
	Name    string  `structs:"name"`
	PosX    float32 `structs:"posX"`
	PosY    float32 `structs:"posY"`
	PosZ    float32 `structs:"posZ"`
	OwnerID uint64  `structs:"ownerId"`
}

// defaultMaxExecutionTime is the wall-time budget for all callbacks of one
// dispatched message when NewHost is given none; Host checks elapsed time
// after the callbacks return and logs an overrun rather than interrupting
// goja mid-execution, since scripts are expected not to block (spec.md §4.9).
const defaultMaxExecutionTime = 2 * time.Second

// Host owns every live EntityScript, keyed by entity id, and the shared
// compile cache for script source text (so identical source across
// entities compiles once).
type Host struct {
	mu      sync.Mutex
	scripts map[uint64]*EntityScript

	log              common.Logger
	maxExecutionTime time.Duration
	programCache     map[string]*goja.Program
	onError          func(entityID uint64, err error)
}

// SetOnError registers a callback fired every time a script records an
// error, whether from a failed SetSource compile/run or a panicking
// subscriber. Engines use this to relay script errors to telemetry without
// this package depending on the telemetry package directly.
func (h *Host) SetOnError(cb func(entityID uint64, err error)) {
	h.mu.Lock()
	h.onError = cb
	h.mu.Unlock()
}

func (h *Host) notifyError(entityID uint64, err error) {
	h.mu.Lock()
	cb := h.onError
	h.mu.Unlock()
	if cb != nil {
		cb(entityID, err)
	}
}

func NewHost(log common.Logger, maxExecutionTime time.Duration) *Host {
	if log == nil {
		log = common.DefaultLogger()
	}
	if maxExecutionTime <= 0 {
		maxExecutionTime = defaultMaxExecutionTime
	}
	return &Host{
		scripts:          make(map[uint64]*EntityScript),
		log:              log,
		maxExecutionTime: maxExecutionTime,
		programCache:     make(map[string]*goja.Program),
	}
}

func (h *Host) compile(src string) (*goja.Program, error) {
	h.mu.Lock()
	if p, ok := h.programCache[src]; ok {
		h.mu.Unlock()
		return p, nil
	}
	h.mu.Unlock()

	p, err := goja.Compile("entityScript.js", src, true)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.programCache[src] = p
	h.mu.Unlock()
	return p, nil
}

// CreateContext allocates a new EntityScript for entity and attaches it as
// the entity's multiplayer.ScriptHandle (spec.md §4.9). Adding a ScriptData
// component does not create a context by itself.
func (h *Host) CreateContext(entity *multiplayer.SpaceEntity) *EntityScript {
	es := &EntityScript{
		entityID: entity.ID(),
		entity:   entity,
		host:     h,
		subs:     make(map[string][]goja.Callable),
	}
	h.mu.Lock()
	h.scripts[entity.ID()] = es
	h.mu.Unlock()
	entity.AttachScript(es)
	return es
}

func (h *Host) context(entityID uint64) (*EntityScript, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	es, ok := h.scripts[entityID]
	return es, ok
}

// RunRemote applies scriptText to the context identified by contextID. It
// is the leader-side handler for election.RemoteRunScriptMessage: a
// non-owning client asks the leader to run a script update so all writes to
// shared script state go through the single owner (spec.md §4.8, §4.9).
func (h *Host) RunRemote(contextID uint64, scriptText string) error {
	es, ok := h.context(contextID)
	if !ok {
		return common.NewEngineError("RunRemote", contextID, common.ErrUnknownEntity)
	}
	return es.SetSource(scriptText)
}

// Tick fires entityTick on every context the caller is responsible for
// (the caller — csp.Foundation.Tick — has already filtered the list by
// ownership/leadership per spec.md §4.9). Each listed context's LastError is
// cleared first. A context whose entity carries a ScriptData component with
// a tick guard only fires when that guard evaluates true, letting a script
// throttle its own entityTick without paying for a goja call every frame.
func (h *Host) Tick(entityIDs []uint64, deltaMS int64) {
	for _, id := range entityIDs {
		es, ok := h.context(id)
		if !ok {
			continue
		}
		es.ClearError()
		if sd, ok := es.entity.ScriptDataComponent(); ok {
			allowed, err := sd.EvaluateTickGuard(map[string]any{"deltaMS": deltaMS})
			if err != nil {
				es.recordError(err)
				continue
			}
			if !allowed {
				continue
			}
		}
		es.dispatch("entityTick", deltaMS)
	}
}

// destroy removes entityID's context from the host; EntityScript.Destroy
// calls it.
func (h *Host) destroy(entityID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.scripts, entityID)
}

// EntityScript is the per-entity JS context: source text, registered
// message subscriptions, and the goja.Runtime bound to it. It implements
// multiplayer.ScriptHandle.
type EntityScript struct {
	mu sync.Mutex

	entityID uint64
	entity   *multiplayer.SpaceEntity
	host     *Host

	src     string
	vm      *goja.Runtime
	program *goja.Program
	subs    map[string][]goja.Callable

	lastError error
}

// SetSource compiles src, resets the context (fresh goja.Runtime, cleared
// subscriptions), rebinds the native API surface, and runs the program's
// top-level code exactly once (spec.md §4.9).
func (es *EntityScript) SetSource(src string) error {
	program, err := es.host.compile(src)
	if err != nil {
		es.recordError(err)
		return common.NewEngineError("SetSource", es.entityID, err)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	bound := &thisEntity{es: es, vm: vm}
	if err := vm.Set("ThisEntity", bound); err != nil {
		return common.NewEngineError("SetSource", es.entityID, err)
	}

	es.mu.Lock()
	es.subs = make(map[string][]goja.Callable)
	es.mu.Unlock()

	if _, err := vm.RunProgram(program); err != nil {
		es.mu.Lock()
		es.lastError = err
		es.mu.Unlock()
		es.host.log.Printf("entity %d: script error: %v", es.entityID, err)
		es.host.notifyError(es.entityID, err)
		return common.NewEngineError("SetSource", es.entityID, fmt.Errorf("%w: %v", common.ErrScriptError, err))
	}

	es.mu.Lock()
	es.src = src
	es.vm = vm
	es.program = program
	es.lastError = nil
	es.mu.Unlock()
	return nil
}

// subscribe is called from JS via ThisEntity.subscribeToMessage.
func (es *EntityScript) subscribe(name string, cb goja.Callable) {
	es.mu.Lock()
	es.subs[name] = append(es.subs[name], cb)
	es.mu.Unlock()
}

// dispatch invokes every callback subscribed to name, recovering from a
// panicking or slow script rather than letting it wedge the engine tick.
func (es *EntityScript) dispatch(name string, arg any) {
	es.mu.Lock()
	vm := es.vm
	callbacks := append([]goja.Callable(nil), es.subs[name]...)
	es.mu.Unlock()

	if vm == nil {
		return
	}

	start := time.Now()
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					es.recordError(fmt.Errorf("panic: %v", r))
				}
			}()
			if _, err := cb(goja.Undefined(), vm.ToValue(arg)); err != nil {
				es.recordError(err)
			}
		}()
	}
	if elapsed := time.Since(start); elapsed > es.host.maxExecutionTime {
		es.host.log.Printf("entity %d: script %q exceeded max execution time (%s)", es.entityID, name, elapsed)
	}
}

func (es *EntityScript) recordError(err error) {
	es.mu.Lock()
	es.lastError = err
	es.mu.Unlock()
	es.host.log.Printf("entity %d: script error: %v", es.entityID, err)
	es.host.notifyError(es.entityID, err)
}

// LastError returns the most recent script error, cleared at the start of
// the next tick (spec.md §7, "captured on the entity's script, cleared
// next tick").
func (es *EntityScript) LastError() error {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.lastError
}

func (es *EntityScript) ClearError() {
	es.mu.Lock()
	es.lastError = nil
	es.mu.Unlock()
}

// NotifyPropertyChanged implements multiplayer.ScriptHandle: it fires any
// subscription registered against "propertyChanged".
func (es *EntityScript) NotifyPropertyChanged(componentID uint16, key uint32) {
	es.dispatch("propertyChanged", map[string]any{"componentId": componentID, "key": key})
}

// Destroy implements multiplayer.ScriptHandle.
func (es *EntityScript) Destroy() {
	es.host.destroy(es.entityID)
	es.mu.Lock()
	es.vm = nil
	es.mu.Unlock()
}

// thisEntity is the native object a script sees as the global ThisEntity,
// exposing subscribeToMessage and a flattened snapshot of committed entity
// state built with fatih/structs (teacher dependency, unexercised until
// now — this is its SPEC_FULL.md-assigned home).
type thisEntity struct {
	es *EntityScript
	vm *goja.Runtime
}

func (t *thisEntity) SubscribeToMessage(name string, cb goja.Callable) {
	t.es.subscribe(name, cb)
}

// Snapshot returns the flattened entity state a script reads via
// ThisEntity.snapshot().
func (t *thisEntity) Snapshot() map[string]any {
	snap := EntitySnapshot{
		ID:      t.es.entity.ID(),
		Name:    t.es.entity.Name(),
		OwnerID: t.es.entity.OwnerID(),
	}
	pos := t.es.entity.Position()
	snap.PosX, snap.PosY, snap.PosZ = pos.X, pos.Y, pos.Z
	return structs.Map(snap)
}
