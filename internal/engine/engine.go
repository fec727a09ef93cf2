// Package engine implements the graph-parallel execution core: an
// active-vertex scheduler, the execution context handed to vertex
// programs, the shared global-scalar table, and the driver loop that runs
// worker goroutines against the scheduler and periodically performs
// stop-the-world aggregation passes to detect convergence.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/vk/graphflow/internal/ctxlog"
	"github.com/vk/graphflow/internal/graph"
)

// DefaultSyncInterval is the number of completed invocations between
// aggregation passes when Options.SyncInterval is unset.
const DefaultSyncInterval = 10000

// Options configures an Engine.
type Options struct {
	// Workers is the number of worker goroutines. Defaults to NumCPU.
	Workers int

	// SyncInterval is the number of completed vertex-program invocations
	// between aggregation passes. Defaults to DefaultSyncInterval.
	SyncInterval int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	return o
}

// Outcome is the terminal state of a run.
type Outcome int

const (
	// OutcomeNone means the run did not reach a terminal state (it failed
	// or was cancelled).
	OutcomeNone Outcome = iota

	// OutcomeConverged means an aggregation pass requested termination.
	OutcomeConverged

	// OutcomeExhausted means the active set emptied with no pending work.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "none"
	}
}

// Report summarizes a finished run.
type Report struct {
	Outcome     Outcome
	Elapsed     time.Duration
	Invocations uint64
	Passes      uint64

	// VertexErrors are user errors recorded from failed invocations; each
	// aborted only its own invocation.
	VertexErrors []VertexError

	// PassErrors are user errors that aborted individual aggregation
	// passes, leaving the global table untouched.
	PassErrors []error
}

// SnapshotFunc persists engine state after an aggregation pass. A failure
// is logged, not fatal: checkpointing is best-effort by design.
type SnapshotFunc[V, E any] func(ctx context.Context, pass uint64, store *graph.Store[V, E]) error

// Engine drives a graph-parallel computation: worker goroutines pull
// active vertices from the scheduler and run their programs; every
// SyncInterval completed invocations the engine drains in-flight work and
// runs an aggregation pass, which may request termination.
type Engine[V, E any] struct {
	store    *graph.Store[V, E]
	globals  *Globals
	sched    *scheduler[V, E]
	newAccum func() Accumulator[V, E]
	opts     Options
	snapshot SnapshotFunc[V, E]

	mu          sync.Mutex
	cond        *sync.Cond
	started     bool
	sinceSync   int
	invocations uint64
	passes      uint64
	verrs       []VertexError
	perrs       []error
	fatalErr    error
}

// New creates an engine over store. newAccum produces one accumulator
// instance per partition of each aggregation pass; it may be nil, in
// which case no aggregation runs and the engine can only exhaust.
func New[V, E any](store *graph.Store[V, E], newAccum func() Accumulator[V, E], opts Options) *Engine[V, E] {
	e := &Engine[V, E]{
		store:    store,
		globals:  NewGlobals(),
		sched:    newScheduler[V, E](),
		newAccum: newAccum,
		opts:     opts.withDefaults(),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Globals returns the engine's global scalar table. Register defaults
// (e.g. a convergence threshold) here before Run.
func (e *Engine[V, E]) Globals() *Globals { return e.globals }

// Graph returns the underlying store, for seeding before the run and
// reading results after it.
func (e *Engine[V, E]) Graph() *graph.Store[V, E] { return e.store }

// SetSnapshotFunc installs a hook invoked after every successful
// aggregation pass, under the barrier.
func (e *Engine[V, E]) SetSnapshotFunc(fn SnapshotFunc[V, E]) { e.snapshot = fn }

// Schedule marks one vertex active with the given program.
func (e *Engine[V, E]) Schedule(id graph.VertexID, prog Program[V, E]) error {
	if _, err := e.store.VertexData(id); err != nil {
		return err
	}
	e.sched.schedule(id, prog)
	return nil
}

// ScheduleAll marks every vertex in the graph active with the given
// program, in id order.
func (e *Engine[V, E]) ScheduleAll(prog Program[V, E]) {
	for id := 0; id < e.store.NumVertices(); id++ {
		e.sched.schedule(graph.VertexID(id), prog)
	}
}

// Run executes until an aggregation pass requests termination
// (Converged), the active set drains (Exhausted), a contract violation
// surfaces, or ctx is cancelled. The graph is frozen on entry and left in
// its final mutated state for the caller to read out.
//
// Run may be called once per engine.
func (e *Engine[V, E]) Run(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return Report{}, ErrNotRunning
	}
	e.started = true
	e.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	logger.Info("engine starting",
		"vertices", e.store.NumVertices(),
		"edges", e.store.NumEdges(),
		"workers", e.opts.Workers,
		"sync_interval", e.opts.SyncInterval)

	e.store.Freeze()
	e.globals.seal()
	defer e.globals.unseal()

	// Wake the coordinator when the caller cancels.
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.worker(ctx, workerID)
		}(i)
	}

	outcome, runErr := e.coordinate(ctx)

	e.sched.close()
	wg.Wait()

	e.mu.Lock()
	report := Report{
		Outcome:      outcome,
		Elapsed:      time.Since(start),
		Invocations:  e.invocations,
		Passes:       e.passes,
		VertexErrors: e.verrs,
		PassErrors:   e.perrs,
	}
	e.mu.Unlock()

	logger.Info("engine finished",
		"outcome", outcome.String(),
		"invocations", report.Invocations,
		"passes", report.Passes,
		"elapsed", report.Elapsed,
		"vertex_errors", len(report.VertexErrors))
	return report, runErr
}

// coordinate is the driver state machine. It owns the decision to run an
// aggregation barrier, to exit on termination or exhaustion, and to abort
// on contract violations or cancellation.
func (e *Engine[V, E]) coordinate(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if e.fatalErr != nil {
			return OutcomeNone, e.fatalErr
		}
		if ctx.Err() != nil {
			return OutcomeNone, ctx.Err()
		}
		if e.globals.Terminated() {
			return OutcomeConverged, nil
		}
		if e.sinceSync >= e.opts.SyncInterval {
			e.barrierLocked(ctx)
			continue
		}
		if e.sched.quiescent() {
			if e.sinceSync > 0 && e.newAccum != nil {
				// Work completed since the last pass: give convergence
				// detection a final chance before declaring exhaustion.
				e.barrierLocked(ctx)
				continue
			}
			return OutcomeExhausted, nil
		}
		e.cond.Wait()
	}
}

// barrierLocked runs one aggregation barrier. Called with e.mu held;
// releases it around the pass itself.
func (e *Engine[V, E]) barrierLocked(ctx context.Context) {
	e.sinceSync = 0
	if e.newAccum == nil {
		return
	}
	e.mu.Unlock()
	err := e.aggregate(ctx)
	e.mu.Lock()
	e.passes++
	if err == nil {
		return
	}
	if fatal(err) {
		if e.fatalErr == nil {
			e.fatalErr = err
		}
		return
	}
	e.perrs = append(e.perrs, err)
	ctxlog.FromContext(ctx).Warn("aggregation pass aborted", "pass", e.passes, "error", err)
}

// aggregate performs one stop-the-world aggregation pass: pause dispatch,
// drain in-flight invocations, fold every vertex into per-partition
// accumulators, combine, finalize, commit. No vertex program runs
// concurrently with any part of the pass.
func (e *Engine[V, E]) aggregate(ctx context.Context) error {
	e.sched.pause()
	defer func() {
		// Hold the pause once termination is requested so no invocation
		// is dispatched between this pass and the coordinator exiting.
		if !e.globals.Terminated() {
			e.sched.resume()
		}
	}()

	e.mu.Lock()
	for e.sched.inFlight() > 0 {
		e.cond.Wait()
	}
	e.mu.Unlock()

	n := e.store.NumVertices()
	parts := e.opts.Workers
	if parts > n && n > 0 {
		parts = n
	}
	if parts < 1 {
		parts = 1
	}

	accs := make([]Accumulator[V, E], parts)
	errs := make([]error, parts)
	chunk := (n + parts - 1) / parts

	var wg sync.WaitGroup
	for p := 0; p < parts; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			acc := e.newAccum()
			accs[p] = acc
			lo := p * chunk
			hi := min(lo+chunk, n)
			for id := lo; id < hi; id++ {
				view := &VertexView[V, E]{eng: e, id: graph.VertexID(id)}
				if err := acc.Step(view); err != nil {
					errs[p] = fmt.Errorf("accumulator step at vertex %d: %w", id, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			if fatal(err) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrAggregationFailed, err)
		}
	}

	merged := accs[0]
	for _, acc := range accs[1:] {
		merged.Combine(acc)
	}

	tx := e.globals.newTx()
	if err := merged.Finalize(tx); err != nil {
		if fatal(err) {
			return fmt.Errorf("accumulator finalize: %w", err)
		}
		return fmt.Errorf("%w: finalize: %w", ErrAggregationFailed, err)
	}
	tx.commit()

	if e.snapshot != nil {
		e.mu.Lock()
		pass := e.passes + 1
		e.mu.Unlock()
		if err := e.snapshot(ctx, pass, e.store); err != nil {
			ctxlog.FromContext(ctx).Warn("snapshot failed", "pass", pass, "error", err)
		}
	}
	return nil
}

// worker pulls ready vertices from the scheduler and runs their programs
// to completion, one invocation at a time.
func (e *Engine[V, E]) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx)
	for {
		t, ok := e.sched.popReady()
		if !ok {
			return
		}
		c := &Context[V, E]{eng: e, id: t.id}
		err := t.prog.Update(c)

		e.mu.Lock()
		e.invocations++
		e.sinceSync++
		if e.sinceSync >= e.opts.SyncInterval && e.newAccum != nil {
			// Stop dispatch before this vertex's stashed re-schedule can be
			// re-queued, so the barrier runs after the interval's last
			// invocation, not an arbitrary number later.
			e.sched.pause()
		}
		if err != nil {
			if fatal(err) {
				if e.fatalErr == nil {
					e.fatalErr = fmt.Errorf("vertex %d: %w", t.id, err)
				}
			} else {
				e.verrs = append(e.verrs, VertexError{Vertex: t.id, Err: err})
				logger.Warn("vertex program failed", "worker", workerID, "vertex", int(t.id), "error", err)
			}
		}
		e.mu.Unlock()

		e.sched.done(t.id, err == nil)

		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	}
}
