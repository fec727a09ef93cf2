package engine

// Program is a vertex program: the user-supplied update rule invoked once
// per scheduled vertex. Update receives a Context bound to that vertex for
// the duration of the call and may mutate the bound vertex's payload and
// incident edge payloads, read other vertices, and schedule further work.
//
// Returning a non-nil error aborts this invocation only: the vertex
// reverts to idle, any re-schedule request it stashed is discarded, and
// the error is recorded in the run Report, unless the error is one of the
// engine's contract-violation sentinels, which abort the whole run.
type Program[V, E any] interface {
	Update(ctx *Context[V, E]) error
}

// UpdateFunc adapts a plain function to the Program interface.
type UpdateFunc[V, E any] func(ctx *Context[V, E]) error

// Update implements Program.
func (f UpdateFunc[V, E]) Update(ctx *Context[V, E]) error { return f(ctx) }

// Accumulator is the user-supplied reduction run at aggregation barriers.
// One instance is created per partition (via the engine's factory); Step
// is invoked with a read-only view of every vertex in the partition;
// partition results are merged with Combine; Finalize runs exactly once on
// the merged result.
//
// Combine must be associative and commutative: the engine gives no
// guarantee about partition boundaries or merge order.
type Accumulator[V, E any] interface {
	// Step folds one vertex into the accumulator. Order-independent.
	Step(view *VertexView[V, E]) error

	// Combine merges other into the receiver. other is an instance
	// produced by the same factory; implementations may type-assert it.
	Combine(other Accumulator[V, E])

	// Finalize runs once on the merged result, under the stop-the-world
	// barrier. Writes to tx commit atomically iff Finalize returns nil.
	Finalize(tx *GlobalsTx) error
}
