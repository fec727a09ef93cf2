// Package graph implements the in-memory store the engine computes over:
// an arena of vertex and edge records addressed by stable integer ids.
//
// The store has two phases. During construction, AddVertex and AddEdge
// grow the arena under a mutex. Once Freeze is called the structure is
// immutable (further structural mutation fails with ErrFrozen) and all
// accessors become lock-free reads of the fixed topology. Payload cells
// (the V and E values) stay mutable for the lifetime of the run; who may
// write them is the engine's concern, not the store's.
//
// Edge-id order returned by OutEdges and InEdges is insertion order and
// never changes, so callers may rely on it to iterate neighbors
// deterministically.
package graph

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for store operations.
var (
	// ErrOutOfRange indicates an unknown vertex or edge id.
	ErrOutOfRange = errors.New("graph: id out of range")

	// ErrFrozen indicates a structural mutation after Freeze.
	ErrFrozen = errors.New("graph: structure is frozen")
)

// VertexID identifies a vertex. Ids are dense: 0..NumVertices-1.
type VertexID int

// EdgeID identifies a directed edge. Ids are dense: 0..NumEdges-1.
type EdgeID int

type edgeRec[E any] struct {
	src, dst VertexID
	data     E
}

// Store owns the vertex and edge collections for one computation.
// V is the per-vertex payload type, E the per-edge payload type.
type Store[V, E any] struct {
	mu     sync.Mutex // guards structural mutation pre-freeze
	frozen bool

	vertices []V
	edges    []edgeRec[E]
	out      [][]EdgeID
	in       [][]EdgeID
}

// New creates an empty store.
func New[V, E any]() *Store[V, E] {
	return &Store[V, E]{}
}

// AddVertex appends a vertex with the given payload and returns its id.
func (s *Store[V, E]) AddVertex(data V) (VertexID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return 0, fmt.Errorf("add vertex: %w", ErrFrozen)
	}
	id := VertexID(len(s.vertices))
	s.vertices = append(s.vertices, data)
	s.out = append(s.out, nil)
	s.in = append(s.in, nil)
	return id, nil
}

// AddEdge appends a directed edge src→dst with the given payload and
// returns its id. Both endpoints must already exist.
func (s *Store[V, E]) AddEdge(src, dst VertexID, data E) (EdgeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return 0, fmt.Errorf("add edge: %w", ErrFrozen)
	}
	if !s.hasVertex(src) {
		return 0, fmt.Errorf("add edge: source vertex %d: %w", src, ErrOutOfRange)
	}
	if !s.hasVertex(dst) {
		return 0, fmt.Errorf("add edge: target vertex %d: %w", dst, ErrOutOfRange)
	}
	id := EdgeID(len(s.edges))
	s.edges = append(s.edges, edgeRec[E]{src: src, dst: dst, data: data})
	s.out[src] = append(s.out[src], id)
	s.in[dst] = append(s.in[dst], id)
	return id, nil
}

// Freeze ends the construction phase. Idempotent.
func (s *Store[V, E]) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen reports whether the structure is frozen.
func (s *Store[V, E]) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// NumVertices returns the number of vertices.
func (s *Store[V, E]) NumVertices() int { return len(s.vertices) }

// NumEdges returns the number of edges.
func (s *Store[V, E]) NumEdges() int { return len(s.edges) }

// VertexData returns a mutable pointer to the payload of the given vertex.
func (s *Store[V, E]) VertexData(id VertexID) (*V, error) {
	if !s.hasVertex(id) {
		return nil, fmt.Errorf("vertex %d: %w", id, ErrOutOfRange)
	}
	return &s.vertices[id], nil
}

// EdgeData returns a mutable pointer to the payload of the given edge.
func (s *Store[V, E]) EdgeData(id EdgeID) (*E, error) {
	if !s.hasEdge(id) {
		return nil, fmt.Errorf("edge %d: %w", id, ErrOutOfRange)
	}
	return &s.edges[id].data, nil
}

// OutEdges returns the ids of edges leaving the given vertex, in insertion
// order. The returned slice is owned by the store and must not be modified.
func (s *Store[V, E]) OutEdges(id VertexID) ([]EdgeID, error) {
	if !s.hasVertex(id) {
		return nil, fmt.Errorf("vertex %d: %w", id, ErrOutOfRange)
	}
	return s.out[id], nil
}

// InEdges returns the ids of edges entering the given vertex, in insertion
// order. The returned slice is owned by the store and must not be modified.
func (s *Store[V, E]) InEdges(id VertexID) ([]EdgeID, error) {
	if !s.hasVertex(id) {
		return nil, fmt.Errorf("vertex %d: %w", id, ErrOutOfRange)
	}
	return s.in[id], nil
}

// Source returns the source vertex of the given edge.
func (s *Store[V, E]) Source(id EdgeID) (VertexID, error) {
	if !s.hasEdge(id) {
		return 0, fmt.Errorf("edge %d: %w", id, ErrOutOfRange)
	}
	return s.edges[id].src, nil
}

// Target returns the target vertex of the given edge.
func (s *Store[V, E]) Target(id EdgeID) (VertexID, error) {
	if !s.hasEdge(id) {
		return 0, fmt.Errorf("edge %d: %w", id, ErrOutOfRange)
	}
	return s.edges[id].dst, nil
}

func (s *Store[V, E]) hasVertex(id VertexID) bool {
	return id >= 0 && int(id) < len(s.vertices)
}

func (s *Store[V, E]) hasEdge(id EdgeID) bool {
	return id >= 0 && int(id) < len(s.edges)
}
