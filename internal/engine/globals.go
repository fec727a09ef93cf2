package engine

import (
	"fmt"
	"sync"
)

// Globals is the process-wide table of named scalars shared between the
// caller, vertex programs and accumulators (e.g. a convergence threshold
// set before the run, norms written back by aggregation).
//
// Lifecycle: the caller registers values before Run; during the parallel
// phase the table is sealed: reads are free, writes fail with
// ErrInvalidAccess; aggregation finalize mutates it through a GlobalsTx
// whose writes commit atomically under the stop-the-world barrier. This
// write discipline is what makes unsynchronized reads from worker
// goroutines safe.
type Globals struct {
	mu        sync.RWMutex
	vals      map[string]any
	sealed    bool
	terminate bool
}

// NewGlobals creates an empty, unsealed table.
func NewGlobals() *Globals {
	return &Globals{vals: make(map[string]any)}
}

// Set stores a value under name. Fails with ErrInvalidAccess while the
// table is sealed (i.e. during the parallel phase of a run).
func (g *Globals) Set(name string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return fmt.Errorf("set global %q during parallel phase: %w", name, ErrInvalidAccess)
	}
	g.vals[name] = value
	return nil
}

// Terminated reports whether termination was requested.
func (g *Globals) Terminated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.terminate
}

func (g *Globals) lookup(name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vals[name]
	return v, ok
}

func (g *Globals) seal()   { g.mu.Lock(); g.sealed = true; g.mu.Unlock() }
func (g *Globals) unseal() { g.mu.Lock(); g.sealed = false; g.mu.Unlock() }

// GlobalReader is the read side shared by Globals and GlobalsTx.
type GlobalReader interface {
	lookup(name string) (any, bool)
}

// GetGlobal reads the named value at type T. Returns ErrUnknownGlobal for
// a missing name and ErrTypeMismatch when the stored value is not a T.
func GetGlobal[T any](src GlobalReader, name string) (T, error) {
	var zero T
	v, ok := src.lookup(name)
	if !ok {
		return zero, fmt.Errorf("global %q: %w", name, ErrUnknownGlobal)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("global %q holds %T: %w", name, v, ErrTypeMismatch)
	}
	return t, nil
}

// GlobalsTx stages writes made by an aggregation finalize call. Nothing
// becomes visible until commit, which runs only if finalize returned nil;
// a failed pass leaves the table exactly as it was. A staged Terminate is
// likewise applied only at commit, so finalize always completes all of its
// global writes before the termination flag can be honored.
type GlobalsTx struct {
	parent    *Globals
	staged    map[string]any
	terminate bool
}

func (g *Globals) newTx() *GlobalsTx {
	return &GlobalsTx{parent: g, staged: make(map[string]any)}
}

// Set stages a write of value under name.
func (tx *GlobalsTx) Set(name string, value any) {
	tx.staged[name] = value
}

// Terminate stages a termination request, honored once the owning
// finalize call returns successfully.
func (tx *GlobalsTx) Terminate() {
	tx.terminate = true
}

func (tx *GlobalsTx) lookup(name string) (any, bool) {
	if v, ok := tx.staged[name]; ok {
		return v, true
	}
	return tx.parent.lookup(name)
}

// commit applies staged writes. Called by the engine under the aggregation
// barrier, where no vertex program runs concurrently; the seal is bypassed
// deliberately.
func (tx *GlobalsTx) commit() {
	tx.parent.mu.Lock()
	for name, v := range tx.staged {
		tx.parent.vals[name] = v
	}
	if tx.terminate {
		tx.parent.terminate = true
	}
	tx.parent.mu.Unlock()
}
