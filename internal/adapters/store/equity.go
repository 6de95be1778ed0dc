package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tradeloop/enginecore/internal/ports"
)

// FileEquityHistory implements ports.EquityHistory, appending hourly equity
// snapshots per scenario. Unlike the signal history it is write-only from
// the engine's perspective (it exists for operators/backtesting, not for
// the tick loop to read back), so it has no sidecar index.
type FileEquityHistory struct {
	Dir string

	mu sync.Mutex
}

var _ ports.EquityHistory = (*FileEquityHistory)(nil)

// NewFileEquityHistory builds a FileEquityHistory rooted at dir.
func NewFileEquityHistory(dir string) *FileEquityHistory {
	return &FileEquityHistory{Dir: dir}
}

func (h *FileEquityHistory) path(scenarioID string) string {
	return filepath.Join(h.Dir, "equity-history-"+scenarioID+".jsonl")
}

// Append writes one equity snapshot line for scenarioID.
func (h *FileEquityHistory) Append(ctx context.Context, scenarioID string, snap ports.EquitySnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return fmt.Errorf("store.FileEquityHistory: mkdir: %w", err)
	}
	line, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store.FileEquityHistory: marshal: %w", err)
	}
	f, err := os.OpenFile(h.path(scenarioID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store.FileEquityHistory: open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("store.FileEquityHistory: write: %w", err)
	}
	return nil
}
