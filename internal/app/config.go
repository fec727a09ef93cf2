package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	RunPath string // hcl run file or directory

	// SolverName selects the solver block to execute. Empty means: use the
	// only block in the run file, and fail if there is more than one.
	SolverName string

	LogFormat string
	LogLevel  string

	// Workers overrides the per-solver worker count when > 0.
	Workers int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.RunPath == "" {
		return nil, errors.New("RunPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
