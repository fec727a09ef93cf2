package engine

import (
	"fmt"

	"github.com/vk/graphflow/internal/graph"
)

// Context is the capability object handed to a running vertex program,
// bound to one vertex for the lifetime of the invocation. All graph and
// global access goes through it so the engine keeps control of the
// ownership rules:
//
//   - the bound vertex's payload and incident edge payloads are
//     exclusively writable by this invocation (the scheduler guarantees
//     no concurrent invocation targets the same vertex);
//   - other vertices are readable by value copy only, with relaxed
//     consistency: a neighbor mid-update may be observed stale or
//     in-progress, which the convergent iterative methods this engine
//     targets tolerate;
//   - globals are read-only during the parallel phase.
type Context[V, E any] struct {
	eng *Engine[V, E]
	id  graph.VertexID
}

// VertexID returns the id of the bound vertex.
func (c *Context[V, E]) VertexID() graph.VertexID { return c.id }

// VertexData returns mutable access to the bound vertex's payload.
func (c *Context[V, E]) VertexData() *V {
	// The bound id was validated at dispatch; lookup cannot fail.
	v, _ := c.eng.store.VertexData(c.id)
	return v
}

// ConstVertexData returns a read-only snapshot of any vertex's payload,
// typically a neighbor's. The copy is taken without synchronization
// against a concurrent update of that vertex (relaxed consistency).
func (c *Context[V, E]) ConstVertexData(id graph.VertexID) (V, error) {
	var zero V
	v, err := c.eng.store.VertexData(id)
	if err != nil {
		return zero, err
	}
	return *v, nil
}

// OutEdges returns the bound vertex's outgoing edge ids in stable order.
func (c *Context[V, E]) OutEdges() []graph.EdgeID {
	out, _ := c.eng.store.OutEdges(c.id)
	return out
}

// InEdges returns the bound vertex's incoming edge ids in stable order.
func (c *Context[V, E]) InEdges() []graph.EdgeID {
	in, _ := c.eng.store.InEdges(c.id)
	return in
}

// EdgeData returns mutable access to an edge incident to the bound
// vertex. Accessing any other edge is a contract violation reported as
// ErrInvalidAccess.
func (c *Context[V, E]) EdgeData(id graph.EdgeID) (*E, error) {
	src, err := c.eng.store.Source(id)
	if err != nil {
		return nil, err
	}
	dst, _ := c.eng.store.Target(id)
	if src != c.id && dst != c.id {
		return nil, fmt.Errorf("edge %d is not incident to vertex %d: %w", id, c.id, ErrInvalidAccess)
	}
	return c.eng.store.EdgeData(id)
}

// Target returns the target vertex of the given edge.
func (c *Context[V, E]) Target(id graph.EdgeID) (graph.VertexID, error) {
	return c.eng.store.Target(id)
}

// Source returns the source vertex of the given edge.
func (c *Context[V, E]) Source(id graph.EdgeID) (graph.VertexID, error) {
	return c.eng.store.Source(id)
}

// NumVertices returns the vertex count of the underlying graph.
func (c *Context[V, E]) NumVertices() int { return c.eng.store.NumVertices() }

// Schedule requests an invocation of prog for the given vertex,
// including the bound vertex itself, which is how an update rule iterates.
// Duplicate requests are merged by the scheduler.
func (c *Context[V, E]) Schedule(id graph.VertexID, prog Program[V, E]) error {
	if _, err := c.eng.store.VertexData(id); err != nil {
		return err
	}
	c.eng.sched.schedule(id, prog)
	return nil
}

// Globals returns the shared scalar table. Reads via GetGlobal are always
// allowed; Set fails with ErrInvalidAccess while the parallel phase runs.
func (c *Context[V, E]) Globals() *Globals { return c.eng.globals }

// Terminate is rejected from a vertex program: termination is an
// aggregation-finalize capability (GlobalsTx.Terminate). The call fails
// with ErrInvalidAccess rather than being deferred.
func (c *Context[V, E]) Terminate() error {
	return fmt.Errorf("terminate from vertex program at vertex %d: %w", c.id, ErrInvalidAccess)
}

// VertexView is the read-only view of one vertex handed to an
// accumulator's Step. It runs under the aggregation barrier, so unlike
// Context neighbor reads it observes settled values.
type VertexView[V, E any] struct {
	eng *Engine[V, E]
	id  graph.VertexID
}

// VertexID returns the id of the viewed vertex.
func (v *VertexView[V, E]) VertexID() graph.VertexID { return v.id }

// Data returns a copy of the viewed vertex's payload.
func (v *VertexView[V, E]) Data() V {
	p, _ := v.eng.store.VertexData(v.id)
	return *p
}

// OutEdges returns the viewed vertex's outgoing edge ids in stable order.
func (v *VertexView[V, E]) OutEdges() []graph.EdgeID {
	out, _ := v.eng.store.OutEdges(v.id)
	return out
}

// EdgeData returns a copy of the given edge's payload.
func (v *VertexView[V, E]) EdgeData(id graph.EdgeID) (E, error) {
	var zero E
	p, err := v.eng.store.EdgeData(id)
	if err != nil {
		return zero, err
	}
	return *p, nil
}

// Globals returns the shared scalar table for reads during Step.
func (v *VertexView[V, E]) Globals() *Globals { return v.eng.globals }
