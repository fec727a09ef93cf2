package app

import (
	"context"
	"fmt"

	"github.com/vk/graphflow/internal/config"
	"github.com/vk/graphflow/internal/ctxlog"
	"github.com/vk/graphflow/solvers"
)

// Run executes the selected solver block end to end.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	solverCfg, err := a.selectSolver(appConfig.SolverName)
	if err != nil {
		return err
	}
	if appConfig.Workers > 0 {
		solverCfg.Workers = appConfig.Workers
	}

	runner, ok := solvers.Lookup(solverCfg.Name)
	if !ok {
		return fmt.Errorf("no solver registered under %q (available: %v)", solverCfg.Name, solvers.Names())
	}

	a.logger.Info("Starting solver run.",
		"solver", solverCfg.Name,
		"matrix", solverCfg.Matrix,
		"threshold", solverCfg.Threshold)

	result, err := runner(ctx, solverCfg)
	if err != nil {
		return fmt.Errorf("solver %q failed: %w", solverCfg.Name, err)
	}

	a.logger.Info("Solver run finished.",
		"outcome", result.Report.Outcome.String(),
		"invocations", result.Report.Invocations,
		"passes", result.Report.Passes,
		"elapsed", result.Report.Elapsed,
		"real_norm", result.RealNorm,
		"relative_norm", result.RelativeNorm)

	fmt.Fprintf(a.outW, "%s: %s after %d updates (relative norm %g)\n",
		solverCfg.Name, result.Report.Outcome, result.Report.Invocations, result.RelativeNorm)

	a.logger.Debug("App.Run method finished.")
	return nil
}

// selectSolver picks the solver block to run: the named one, or the run
// file's only block when no name was given.
func (a *App) selectSolver(name string) (*config.Solver, error) {
	if name != "" {
		return a.model.Solver(name)
	}
	if len(a.model.Solvers) != 1 {
		return nil, fmt.Errorf("run file defines %d solver blocks; pick one with -solver", len(a.model.Solvers))
	}
	for _, s := range a.model.Solvers {
		return s, nil
	}
	return nil, config.ErrNoSolver
}
