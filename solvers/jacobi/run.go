package jacobi

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/graphflow/internal/checkpoint"
	"github.com/vk/graphflow/internal/config"
	"github.com/vk/graphflow/internal/ctxlog"
	"github.com/vk/graphflow/internal/engine"
	"github.com/vk/graphflow/internal/graph"
	"github.com/vk/graphflow/internal/mmio"
	"github.com/vk/graphflow/solvers"
)

func init() {
	solvers.Register("jacobi", Run)
}

// Run executes one configured Jacobi solve: load A, b (and optionally a
// known solution), iterate to convergence, write x next to the input.
func Run(ctx context.Context, cfg *config.Solver) (*solvers.Result, error) {
	logger := ctxlog.FromContext(ctx)

	m, err := mmio.ReadMatrix(cfg.Matrix)
	if err != nil {
		return nil, err
	}
	b, err := mmio.ReadVector(cfg.RHS)
	if err != nil {
		return nil, err
	}
	var truth []float64
	if cfg.Solution != "" {
		if truth, err = mmio.ReadVector(cfg.Solution); err != nil {
			return nil, err
		}
	}
	logger.Info("system loaded", "rows", m.Rows, "nonzeros", len(m.Entries), "ground_truth", truth != nil)

	store, err := BuildGraph(m, b, truth)
	if err != nil {
		return nil, err
	}

	eng := engine.New(store, NewAccumulator(truth != nil), engine.Options{
		Workers:      cfg.Workers,
		SyncInterval: cfg.SyncInterval,
	})
	if err := eng.Globals().Set(GlobalThreshold, cfg.Threshold); err != nil {
		return nil, err
	}

	if cfg.CheckpointDir != "" {
		cp, err := checkpoint.Open(cfg.CheckpointDir)
		if err != nil {
			return nil, err
		}
		defer cp.Close()
		eng.SetSnapshotFunc(func(ctx context.Context, pass uint64, g *graph.Store[VertexData, EdgeData]) error {
			states := make([]VertexData, g.NumVertices())
			for i := range states {
				v, err := g.VertexData(graph.VertexID(i))
				if err != nil {
					return err
				}
				states[i] = *v
			}
			return cp.Save(pass, states)
		})
	}

	eng.ScheduleAll(Program())
	report, err := eng.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("jacobi: %w", err)
	}

	result := &solvers.Result{
		Report:       report,
		RealNorm:     math.NaN(),
		RelativeNorm: math.NaN(),
		Solution:     Solution(store),
	}
	if report.Passes > 0 {
		if v, err := engine.GetGlobal[float64](eng.Globals(), GlobalRealNorm); err == nil {
			result.RealNorm = v
		}
		if v, err := engine.GetGlobal[float64](eng.Globals(), GlobalRelativeNorm); err == nil {
			result.RelativeNorm = v
		}
	}

	if err := mmio.WriteVector(cfg.Output, result.Solution); err != nil {
		return nil, err
	}
	logger.Info("solution written", "path", cfg.Output,
		"outcome", report.Outcome.String(), "relative_norm", result.RelativeNorm)
	return result, nil
}
