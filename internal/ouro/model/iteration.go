package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IterationState is the outer loop's only persisted fact. It is rewritten
// atomically after every increment.
type IterationState struct {
	Current int `json:"current_iteration"`
	Max     int `json:"max_iterations"`
}

// CircuitBroken reports whether the run has exhausted its iteration budget.
func (s IterationState) CircuitBroken() bool {
	return s.Current >= s.Max
}

// Validate enforces 0 <= current <= max and max > 0.
func (s IterationState) Validate() error {
	if s.Max <= 0 {
		return fmt.Errorf("iteration state: max must be positive, got %d", s.Max)
	}
	if s.Current < 0 || s.Current > s.Max {
		return fmt.Errorf("iteration state: current (%d) out of range [0, %d]", s.Current, s.Max)
	}
	return nil
}

// LoadIterationState reads persisted state from path. A missing file yields
// a fresh state at {Current: 0, Max: max}; a present file must satisfy
// Validate.
func LoadIterationState(path string, max int) (IterationState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return IterationState{Current: 0, Max: max}, nil
		}
		return IterationState{}, fmt.Errorf("reading iteration state: %w", err)
	}

	var state IterationState
	if err := json.Unmarshal(data, &state); err != nil {
		return IterationState{}, fmt.Errorf("parsing iteration state %s: %w", path, err)
	}
	if err := state.Validate(); err != nil {
		return IterationState{}, err
	}
	return state, nil
}

// SaveIterationState rewrites the state file. It writes to a temp file in
// the same directory and renames over the target so a crash mid-write never
// leaves a truncated or partially-written state file behind.
func SaveIterationState(path string, state IterationState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating iteration state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding iteration state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing iteration state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing iteration state: %w", err)
	}
	return nil
}
