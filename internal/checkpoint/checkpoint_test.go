package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vertexState struct {
	X, Prev float64
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)

	want := []vertexState{{X: 1.5, Prev: 1.0}, {X: -2.0, Prev: -1.5}}
	require.NoError(t, s.Save(3, want))

	var got []vertexState
	require.NoError(t, s.Load(3, &got))
	assert.Equal(t, want, got)
}

func TestLoadMissingPass(t *testing.T) {
	s := openStore(t)

	var got []vertexState
	err := s.Load(42, &got)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestSaveOverwritesPass(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Save(1, []vertexState{{X: 1}}))
	require.NoError(t, s.Save(1, []vertexState{{X: 2}}))

	var got []vertexState
	require.NoError(t, s.Load(1, &got))
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].X)
}

func TestLatest(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Latest()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(1, []vertexState{{X: 1}}))
	require.NoError(t, s.Save(7, []vertexState{{X: 7}}))
	require.NoError(t, s.Save(4, []vertexState{{X: 4}}))

	pass, ok, err := s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), pass)
}
