package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterationState_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".ai_agents", "iteration.json")

	want := IterationState{Current: 2, Max: 5}
	require.NoError(t, SaveIterationState(path, want))

	got, err := LoadIterationState(path, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadIterationState_MissingFileInitializes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iteration.json")

	got, err := LoadIterationState(path, 10)
	require.NoError(t, err)
	assert.Equal(t, IterationState{Current: 0, Max: 10}, got)
}

func TestIterationState_CircuitBroken(t *testing.T) {
	assert.True(t, IterationState{Current: 5, Max: 5}.CircuitBroken())
	assert.False(t, IterationState{Current: 4, Max: 5}.CircuitBroken())
}

func TestIterationState_ValidateRejectsOutOfRange(t *testing.T) {
	assert.Error(t, IterationState{Current: 6, Max: 5}.Validate())
	assert.Error(t, IterationState{Current: 0, Max: 0}.Validate())
	assert.Error(t, IterationState{Current: -1, Max: 5}.Validate())
}
