package jacobi

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/graphflow/internal/checkpoint"
	"github.com/vk/graphflow/internal/config"
	"github.com/vk/graphflow/internal/engine"
	"github.com/vk/graphflow/internal/graph"
	"github.com/vk/graphflow/internal/mmio"
)

// 4x + y = 9, 2x + 5y = 16: diagonally dominant, Jacobi converges to
// x = 29/18, y = 46/18.
var (
	system2x2 = &mmio.Matrix{
		Rows: 2, Cols: 2,
		Entries: []mmio.Entry{
			{Row: 0, Col: 0, Val: 4},
			{Row: 0, Col: 1, Val: 1},
			{Row: 1, Col: 0, Val: 2},
			{Row: 1, Col: 1, Val: 5},
		},
	}
	rhs2x2      = []float64{9, 16}
	solution2x2 = []float64{29.0 / 18.0, 46.0 / 18.0}
)

func TestBuildGraph(t *testing.T) {
	store, err := BuildGraph(system2x2, rhs2x2, solution2x2)
	require.NoError(t, err)

	assert.Equal(t, 2, store.NumVertices())
	assert.Equal(t, 2, store.NumEdges(), "only off-diagonal entries become edges")

	v0, err := store.VertexData(graph.VertexID(0))
	require.NoError(t, err)
	assert.Equal(t, 4.0, v0.Aii)
	assert.Equal(t, 9.0, v0.Y)
	assert.Equal(t, solution2x2[0], v0.RealX)
	assert.Equal(t, math.MaxFloat64, v0.PrevX)
	assert.Zero(t, v0.PredX)

	out, err := store.OutEdges(graph.VertexID(0))
	require.NoError(t, err)
	require.Len(t, out, 1)
	w, err := store.EdgeData(out[0])
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.Weight)
}

func TestBuildGraphErrors(t *testing.T) {
	t.Run("non-square", func(t *testing.T) {
		_, err := BuildGraph(&mmio.Matrix{Rows: 2, Cols: 3}, rhs2x2, nil)
		assert.ErrorContains(t, err, "square")
	})
	t.Run("rhs length mismatch", func(t *testing.T) {
		_, err := BuildGraph(system2x2, []float64{1}, nil)
		assert.ErrorContains(t, err, "rhs")
	})
	t.Run("solution length mismatch", func(t *testing.T) {
		_, err := BuildGraph(system2x2, rhs2x2, []float64{1})
		assert.ErrorContains(t, err, "solution")
	})
	t.Run("explicit zero diagonal", func(t *testing.T) {
		m := &mmio.Matrix{Rows: 1, Cols: 1, Entries: []mmio.Entry{{Row: 0, Col: 0, Val: 0}}}
		_, err := BuildGraph(m, []float64{1}, nil)
		assert.ErrorContains(t, err, "zero diagonal")
	})
}

func solve(t *testing.T, truth []float64, threshold float64) *graph.Store[VertexData, EdgeData] {
	t.Helper()
	store, err := BuildGraph(system2x2, rhs2x2, truth)
	require.NoError(t, err)

	eng := engine.New(store, NewAccumulator(truth != nil),
		engine.Options{Workers: 4, SyncInterval: 8})
	require.NoError(t, eng.Globals().Set(GlobalThreshold, threshold))
	eng.ScheduleAll(Program())

	report, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeConverged, report.Outcome)
	assert.Greater(t, report.Passes, uint64(0))
	return store
}

func TestSolveConvergesOnRelativeNorm(t *testing.T) {
	store := solve(t, nil, 1e-18)
	x := Solution(store)
	assert.InDelta(t, solution2x2[0], x[0], 1e-6)
	assert.InDelta(t, solution2x2[1], x[1], 1e-6)
}

func TestSolveConvergesOnRealNorm(t *testing.T) {
	store := solve(t, solution2x2, 1e-12)
	x := Solution(store)
	assert.InDelta(t, solution2x2[0], x[0], 1e-5)
	assert.InDelta(t, solution2x2[1], x[1], 1e-5)
}

func TestSolveDiagonalSystem(t *testing.T) {
	// No off-diagonal entries: x = b / diag after one round.
	m := &mmio.Matrix{Rows: 3, Cols: 3, Entries: []mmio.Entry{
		{Row: 0, Col: 0, Val: 2},
		{Row: 1, Col: 1, Val: 4},
		{Row: 2, Col: 2, Val: 8},
	}}
	b := []float64{2, 2, 2}
	store, err := BuildGraph(m, b, nil)
	require.NoError(t, err)

	eng := engine.New(store, NewAccumulator(false), engine.Options{Workers: 2, SyncInterval: 4})
	require.NoError(t, eng.Globals().Set(GlobalThreshold, 1e-30))
	eng.ScheduleAll(Program())

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	x := Solution(store)
	assert.Equal(t, []float64{1.0, 0.5, 0.25}, x)
}

func TestAccumulatorFinalizeRequiresThreshold(t *testing.T) {
	// No THRESHOLD registered: the first aggregation pass must surface
	// the lookup failure as a fatal run error.
	store, err := BuildGraph(system2x2, rhs2x2, nil)
	require.NoError(t, err)
	eng := engine.New(store, NewAccumulator(false), engine.Options{Workers: 1, SyncInterval: 2})
	eng.ScheduleAll(Program())
	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrUnknownGlobal)
}

func TestAccumulatorCombine(t *testing.T) {
	a := &Accumulator{RealNorm: 1, RelativeNorm: 2}
	b := &Accumulator{RealNorm: 3, RelativeNorm: 5}
	a.Combine(b)
	assert.Equal(t, 4.0, a.RealNorm)
	assert.Equal(t, 7.0, a.RelativeNorm)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	matrixPath := filepath.Join(dir, "A.mtx")
	rhsPath := filepath.Join(dir, "b.mtx")
	outPath := filepath.Join(dir, "x.out")
	cpDir := filepath.Join(dir, "checkpoints")

	require.NoError(t, os.WriteFile(matrixPath, []byte(`%%MatrixMarket matrix coordinate real general
2 2 4
1 1 4.0
1 2 1.0
2 1 2.0
2 2 5.0
`), 0o644))
	require.NoError(t, os.WriteFile(rhsPath, []byte(`%%MatrixMarket matrix array real general
2 1
9.0
16.0
`), 0o644))

	cfg := &config.Solver{
		Name:          "jacobi",
		Matrix:        matrixPath,
		RHS:           rhsPath,
		Output:        outPath,
		Threshold:     1e-18,
		SyncInterval:  8,
		Workers:       2,
		CheckpointDir: cpDir,
	}

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeConverged, result.Report.Outcome)
	assert.Less(t, result.RelativeNorm, 1e-18)
	require.Len(t, result.Solution, 2)
	assert.InDelta(t, solution2x2[0], result.Solution[0], 1e-6)

	// The solution file round-trips.
	got, err := mmio.ReadVector(outPath)
	require.NoError(t, err)
	assert.Equal(t, result.Solution, got)

	// Checkpoints were taken for at least one pass.
	cp, err := checkpoint.Open(cpDir)
	require.NoError(t, err)
	defer cp.Close()
	pass, ok, err := cp.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, pass, uint64(0))

	var states []VertexData
	require.NoError(t, cp.Load(pass, &states))
	require.Len(t, states, 2)
	assert.InDelta(t, solution2x2[0], states[0].PredX, 1e-4)
}
