package engine

import (
	"errors"
	"fmt"

	"github.com/vk/graphflow/internal/graph"
)

// Sentinel errors for contract violations. These are programming errors:
// any of them surfacing from a vertex program or accumulator aborts the
// whole run. Everything else returned by user code is treated as a user
// error and aborts only the offending invocation or aggregation pass.
var (
	// ErrInvalidAccess indicates a capability was used outside its contract:
	// an edge not incident to the bound vertex, a global write during the
	// parallel phase, or Terminate called from a vertex program.
	ErrInvalidAccess = errors.New("engine: invalid access")

	// ErrTypeMismatch indicates a global was read at the wrong type.
	ErrTypeMismatch = errors.New("engine: global type mismatch")

	// ErrUnknownGlobal indicates a global name with no registered value.
	ErrUnknownGlobal = errors.New("engine: unknown global")

	// ErrAggregationFailed wraps a user error raised inside an aggregation
	// pass. The pass is aborted; the global table keeps its previous state.
	ErrAggregationFailed = errors.New("engine: aggregation pass failed")

	// ErrNotRunning indicates Run was invoked on an engine that already ran.
	ErrNotRunning = errors.New("engine: engine is not runnable")
)

// VertexError records a user-program failure during one invocation. The
// vertex reverts to idle and is not re-scheduled; the run continues.
type VertexError struct {
	Vertex graph.VertexID
	Err    error
}

func (e VertexError) Error() string {
	return fmt.Sprintf("vertex %d: %v", e.Vertex, e.Err)
}

func (e VertexError) Unwrap() error { return e.Err }

// fatal reports whether err is a contract violation that must abort the
// run rather than be recorded as a per-vertex user error.
func fatal(err error) bool {
	return errors.Is(err, ErrInvalidAccess) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrUnknownGlobal) ||
		errors.Is(err, graph.ErrOutOfRange) ||
		errors.Is(err, graph.ErrFrozen)
}
