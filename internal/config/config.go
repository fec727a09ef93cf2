// Package config loads the HCL run file describing one or more solver
// runs: which solver to use, where the system's matrix and vectors live,
// and the engine tuning knobs. A variables block makes paths reusable
// across solver blocks via ${var.*} expressions.
package config

import (
	"errors"
	"fmt"

	"github.com/vk/graphflow/internal/engine"
)

// ErrNoSolver indicates the run file defines no solver block with the
// requested name.
var ErrNoSolver = errors.New("config: solver not defined")

// Defaults applied to solver blocks that omit the corresponding field.
const (
	DefaultThreshold    = 1e-5
	DefaultSyncInterval = engine.DefaultSyncInterval
)

// Solver is one decoded solver block.
type Solver struct {
	Name string `hcl:"name,label"`

	// Matrix is the coordinate-format file holding A.
	Matrix string `hcl:"matrix"`

	// RHS is the array-format file holding b.
	RHS string `hcl:"rhs"`

	// Solution optionally holds a known solution vector for real-norm
	// convergence checks. Without it convergence is judged on the
	// relative norm alone.
	Solution string `hcl:"solution,optional"`

	// Output is where the solved x vector is written.
	// Defaults to Matrix + "x.out".
	Output string `hcl:"output,optional"`

	// Threshold is the termination threshold on the convergence norm.
	Threshold float64 `hcl:"threshold,optional"`

	// SyncInterval is the number of completed vertex updates between
	// convergence checks.
	SyncInterval int `hcl:"sync_interval,optional"`

	// Workers overrides the engine's worker count; 0 means NumCPU.
	Workers int `hcl:"workers,optional"`

	// CheckpointDir enables per-pass state snapshots when non-empty.
	CheckpointDir string `hcl:"checkpoint_dir,optional"`
}

// Model is the fully decoded run file.
type Model struct {
	Solvers map[string]*Solver
}

// Solver returns the named solver block.
func (m *Model) Solver(name string) (*Solver, error) {
	s, ok := m.Solvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSolver, name)
	}
	return s, nil
}

// applyDefaults fills unset tuning fields and validates the block.
func (s *Solver) applyDefaults() error {
	if s.Matrix == "" {
		return fmt.Errorf("config: solver %q: matrix is required", s.Name)
	}
	if s.RHS == "" {
		return fmt.Errorf("config: solver %q: rhs is required", s.Name)
	}
	if s.Output == "" {
		s.Output = s.Matrix + "x.out"
	}
	if s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
	}
	if s.SyncInterval <= 0 {
		s.SyncInterval = DefaultSyncInterval
	}
	if s.Workers < 0 {
		return fmt.Errorf("config: solver %q: workers must be >= 0", s.Name)
	}
	return nil
}
