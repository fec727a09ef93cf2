// Package jacobi solves Ax = b by Jacobi iteration expressed as a vertex
// program: row i of the system is a vertex, each nonzero off-diagonal
// A_ij a directed edge i→j, and one update computes
//
//	x_i = (b_i − Σ_j A_ij·x_j) / A_ii
//
// from the neighbors' current iterates, then re-schedules itself. The
// accumulator sums squared norms over all vertices and terminates the run
// once the convergence norm drops below the THRESHOLD global.
package jacobi

import (
	"fmt"
	"math"

	"github.com/vk/graphflow/internal/engine"
	"github.com/vk/graphflow/internal/graph"
	"github.com/vk/graphflow/internal/mmio"
)

// Global scalar names shared between the accumulator and the caller.
const (
	GlobalThreshold    = "THRESHOLD"
	GlobalRealNorm     = "REAL_NORM"
	GlobalRelativeNorm = "RELATIVE_NORM"
)

// VertexData is the per-row state of the iteration.
type VertexData struct {
	// Y is b_i, the right-hand side for this row.
	Y float64

	// Aii is the diagonal coefficient.
	Aii float64

	// PredX is the current iterate x_i.
	PredX float64

	// PrevX is the previous iterate, kept for the relative norm.
	PrevX float64

	// RealX is the known solution when one was loaded, else 0.
	RealX float64
}

// EdgeData carries one off-diagonal coefficient A_ij.
type EdgeData struct {
	Weight float64
}

// Program returns the Jacobi update rule. Each invocation writes the
// bound vertex's next iterate from relaxed-consistency reads of its
// neighbors and re-schedules itself; termination comes from the
// accumulator, never from the rule.
func Program() engine.Program[VertexData, EdgeData] {
	var self engine.UpdateFunc[VertexData, EdgeData]
	self = func(ctx *engine.Context[VertexData, EdgeData]) error {
		v := ctx.VertexData()
		if v.Aii == 0 {
			return fmt.Errorf("jacobi: zero diagonal at row %d", ctx.VertexID())
		}
		v.PrevX = v.PredX

		x := v.Y
		for _, eid := range ctx.OutEdges() {
			ed, err := ctx.EdgeData(eid)
			if err != nil {
				return err
			}
			nid, err := ctx.Target(eid)
			if err != nil {
				return err
			}
			other, err := ctx.ConstVertexData(nid)
			if err != nil {
				return err
			}
			x -= ed.Weight * other.PredX
		}
		v.PredX = x / v.Aii

		return ctx.Schedule(ctx.VertexID(), self)
	}
	return self
}

// Accumulator computes the two convergence norms:
//
//	real norm     Σ (x_i − real_x_i)²   (distance to a known solution)
//	relative norm Σ (x_i − prev_x_i)²   (movement since the last iterate)
//
// Finalize publishes both as globals and terminates the run when the
// convergence norm (real when ground truth was loaded, relative
// otherwise) falls below THRESHOLD.
type Accumulator struct {
	RealNorm     float64
	RelativeNorm float64
	hasTruth     bool
}

// NewAccumulator returns an accumulator factory for the engine.
// hasTruth selects which norm drives termination.
func NewAccumulator(hasTruth bool) func() engine.Accumulator[VertexData, EdgeData] {
	return func() engine.Accumulator[VertexData, EdgeData] {
		return &Accumulator{hasTruth: hasTruth}
	}
}

// Step implements engine.Accumulator.
func (a *Accumulator) Step(view *engine.VertexView[VertexData, EdgeData]) error {
	d := view.Data()
	dReal := d.PredX - d.RealX
	dRel := d.PredX - d.PrevX
	a.RealNorm += dReal * dReal
	a.RelativeNorm += dRel * dRel
	return nil
}

// Combine implements engine.Accumulator. Addition of partial sums is
// associative and commutative, as the engine requires.
func (a *Accumulator) Combine(other engine.Accumulator[VertexData, EdgeData]) {
	o := other.(*Accumulator)
	a.RealNorm += o.RealNorm
	a.RelativeNorm += o.RelativeNorm
}

// Finalize implements engine.Accumulator.
func (a *Accumulator) Finalize(tx *engine.GlobalsTx) error {
	tx.Set(GlobalRealNorm, a.RealNorm)
	tx.Set(GlobalRelativeNorm, a.RelativeNorm)

	threshold, err := engine.GetGlobal[float64](tx, GlobalThreshold)
	if err != nil {
		return err
	}
	norm := a.RelativeNorm
	if a.hasTruth {
		norm = a.RealNorm
	}
	if norm < threshold {
		tx.Terminate()
	}
	return nil
}

// BuildGraph turns a square system (A, b) into the solver's graph. truth
// may be nil; when given it must match b in length and fills RealX.
func BuildGraph(m *mmio.Matrix, b, truth []float64) (*graph.Store[VertexData, EdgeData], error) {
	if m.Rows != m.Cols {
		return nil, fmt.Errorf("jacobi: matrix is %dx%d, want square", m.Rows, m.Cols)
	}
	if len(b) != m.Rows {
		return nil, fmt.Errorf("jacobi: rhs has %d entries, want %d", len(b), m.Rows)
	}
	if truth != nil && len(truth) != m.Rows {
		return nil, fmt.Errorf("jacobi: solution has %d entries, want %d", len(truth), m.Rows)
	}

	store := graph.New[VertexData, EdgeData]()
	for i := 0; i < m.Rows; i++ {
		v := VertexData{Y: b[i], Aii: 1, PrevX: math.MaxFloat64}
		if truth != nil {
			v.RealX = truth[i]
		}
		if _, err := store.AddVertex(v); err != nil {
			return nil, err
		}
	}

	for _, e := range m.Entries {
		if e.Row == e.Col {
			// Rows without an explicit diagonal keep the A_ii = 1 default.
			v, err := store.VertexData(graph.VertexID(e.Row))
			if err != nil {
				return nil, err
			}
			if e.Val == 0 {
				return nil, fmt.Errorf("jacobi: zero diagonal at row %d", e.Row)
			}
			v.Aii = e.Val
			continue
		}
		if _, err := store.AddEdge(graph.VertexID(e.Row), graph.VertexID(e.Col), EdgeData{Weight: e.Val}); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Solution reads the current iterate out of the graph, in row order.
func Solution(store *graph.Store[VertexData, EdgeData]) []float64 {
	out := make([]float64, store.NumVertices())
	for i := range out {
		v, _ := store.VertexData(graph.VertexID(i))
		out[i] = v.PredX
	}
	return out
}
