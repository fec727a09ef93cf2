package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRunFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSolverBlock(t *testing.T) {
	path := writeRunFile(t, `
solver "jacobi" {
  matrix        = "A.mtx"
  rhs           = "b.mtx"
  threshold     = 1e-7
  sync_interval = 500
  workers       = 4
}
`)
	model, err := Load(context.Background(), path)
	require.NoError(t, err)

	s, err := model.Solver("jacobi")
	require.NoError(t, err)
	assert.Equal(t, "A.mtx", s.Matrix)
	assert.Equal(t, "b.mtx", s.RHS)
	assert.Equal(t, 1e-7, s.Threshold)
	assert.Equal(t, 500, s.SyncInterval)
	assert.Equal(t, 4, s.Workers)
	assert.Equal(t, "A.mtxx.out", s.Output, "output defaults to matrix path + x.out")
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeRunFile(t, `
solver "jacobi" {
  matrix = "A.mtx"
  rhs    = "b.mtx"
}
`)
	model, err := Load(context.Background(), path)
	require.NoError(t, err)

	s, err := model.Solver("jacobi")
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, s.Threshold)
	assert.Equal(t, DefaultSyncInterval, s.SyncInterval)
	assert.Zero(t, s.Workers)
	assert.Empty(t, s.Solution)
	assert.Empty(t, s.CheckpointDir)
}

func TestLoadVariableInterpolation(t *testing.T) {
	path := writeRunFile(t, `
variables {
  data = "/data/systems"
}

solver "jacobi" {
  matrix = "${var.data}/A.mtx"
  rhs    = "${var.data}/b.mtx"
}
`)
	model, err := Load(context.Background(), path)
	require.NoError(t, err)

	s, err := model.Solver("jacobi")
	require.NoError(t, err)
	assert.Equal(t, "/data/systems/A.mtx", s.Matrix)
	assert.Equal(t, "/data/systems/b.mtx", s.RHS)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vars.hcl"),
		[]byte("variables {\n  data = \"d\"\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solver.hcl"),
		[]byte("solver \"jacobi\" {\n  matrix = \"${var.data}/A.mtx\"\n  rhs = \"${var.data}/b.mtx\"\n}\n"), 0o644))

	model, err := Load(context.Background(), dir)
	require.NoError(t, err)
	s, err := model.Solver("jacobi")
	require.NoError(t, err)
	assert.Equal(t, "d/A.mtx", s.Matrix)
}

func TestLoadErrors(t *testing.T) {
	t.Run("unknown solver name", func(t *testing.T) {
		path := writeRunFile(t, "solver \"jacobi\" {\n  matrix = \"A\"\n  rhs = \"b\"\n}\n")
		model, err := Load(context.Background(), path)
		require.NoError(t, err)
		_, err = model.Solver("cg")
		assert.ErrorIs(t, err, ErrNoSolver)
	})

	t.Run("missing matrix", func(t *testing.T) {
		path := writeRunFile(t, "solver \"jacobi\" {\n  rhs = \"b\"\n}\n")
		_, err := Load(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("duplicate solver block", func(t *testing.T) {
		path := writeRunFile(t, `
solver "jacobi" {
  matrix = "A"
  rhs    = "b"
}
solver "jacobi" {
  matrix = "A2"
  rhs    = "b2"
}
`)
		_, err := Load(context.Background(), path)
		assert.ErrorContains(t, err, "duplicate solver block")
	})

	t.Run("invalid hcl", func(t *testing.T) {
		path := writeRunFile(t, "solver \"jacobi\" {\n")
		_, err := Load(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("undefined variable", func(t *testing.T) {
		path := writeRunFile(t, "solver \"jacobi\" {\n  matrix = \"${var.nope}/A\"\n  rhs = \"b\"\n}\n")
		_, err := Load(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("no files", func(t *testing.T) {
		_, err := Load(context.Background(), t.TempDir())
		assert.ErrorContains(t, err, "no .hcl files")
	})
}
