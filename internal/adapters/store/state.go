package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/tradeloop/enginecore/internal/ports"
)

// FileScenarioStateStore implements ports.ScenarioStateStore over one
// state-{scenarioId}.json file per scenario (spec §6): pause/resume plus
// the notification-cooldown ledger.
type FileScenarioStateStore struct {
	Dir string

	mu sync.Mutex
}

// NewFileScenarioStateStore builds a FileScenarioStateStore rooted at dir.
func NewFileScenarioStateStore(dir string) *FileScenarioStateStore {
	return &FileScenarioStateStore{Dir: dir}
}

func (s *FileScenarioStateStore) path(scenarioID string) string {
	return filepath.Join(s.Dir, "state-"+scenarioID+".json")
}

// LoadState returns the persisted control state, or a zero-value
// (not paused, empty cooldown ledger) if the file does not exist yet.
func (s *FileScenarioStateStore) LoadState(ctx context.Context, scenarioID string) (ports.ScenarioState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state ports.ScenarioState
	err := readJSON(s.path(scenarioID), &state)
	if errors.Is(err, os.ErrNotExist) {
		return ports.ScenarioState{LastSignals: make(map[string]ports.LastSignal)}, nil
	}
	if err != nil {
		return ports.ScenarioState{}, err
	}
	if state.LastSignals == nil {
		state.LastSignals = make(map[string]ports.LastSignal)
	}
	return state, nil
}

// SaveState persists state for scenarioID via write-to-temp + atomic-rename.
func (s *FileScenarioStateStore) SaveState(ctx context.Context, scenarioID string, state ports.ScenarioState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeAtomic(s.path(scenarioID), state)
}
