package common

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, stable and abstracted per the engine's error design:
// transport/network failures never cross a callback boundary as exceptions,
// they are converted to one of these and logged.
var (
	ErrTransportFailure         = errors.New("transport failure")
	ErrUnknownEntity            = errors.New("unknown entity")
	ErrNonModifiableEntity      = errors.New("entity is not modifiable by this client")
	ErrDuplicateScriptComponent = errors.New("entity already has a ScriptData component")
	ErrInvalidInterfaceUse      = errors.New("invalid use of default interface method")
	ErrScriptError              = errors.New("script evaluation failed")
	ErrElectionConflict         = errors.New("leader election conflict")
)

// EngineError wraps one of the sentinel kinds above with the entity and
// operation context that produced it, following the teacher's EngineError
// pattern of attaching context to an error rather than stringly-typing it.
type EngineError struct {
	Op       string
	EntityID uint64
	Err      error
}

func NewEngineError(op string, entityID uint64, err error) *EngineError {
	return &EngineError{Op: op, EntityID: entityID, Err: err}
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: entity %d: %s", e.Op, e.EntityID, e.Err.Error())
}

func (e *EngineError) Unwrap() error { return e.Err }
