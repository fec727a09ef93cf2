// Package solvers is the registry of pluggable linear-system solvers.
// Each solver registers a Runner under its run-file block name; the CLI
// picks one by that name. Registration happens in solver package init
// functions, driver-style: importing a solver package makes it available.
package solvers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/graphflow/internal/config"
	"github.com/vk/graphflow/internal/engine"
)

// Result is what a solver run produces beyond the files it writes.
type Result struct {
	Report engine.Report

	// RealNorm is the squared distance to the known solution; NaN when
	// no ground truth was provided or no aggregation pass ran.
	RealNorm float64

	// RelativeNorm is the squared distance between the last two
	// iterates; NaN when no aggregation pass ran.
	RelativeNorm float64

	// Solution is the computed x vector, in vertex order.
	Solution []float64
}

// Runner executes one configured solver run end to end: load the system,
// drive the engine to convergence, write the solution.
type Runner func(ctx context.Context, cfg *config.Solver) (*Result, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Runner)
)

// Register makes a runner available under name. Panics on duplicate
// registration: that is a wiring bug, not a runtime condition.
func Register(name string, r Runner) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("solvers: duplicate registration of %q", name))
	}
	registry[name] = r
}

// Lookup returns the runner registered under name.
func Lookup(name string) (Runner, bool) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := registry[name]
	return r, ok
}

// Names lists registered solvers, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
