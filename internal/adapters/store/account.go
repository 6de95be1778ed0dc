package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
)

// FileAccountStore implements ports.AccountStore over one
// paper-{scenarioId}.json file per scenario under Dir (spec §4.10/§6).
type FileAccountStore struct {
	Dir string

	mu sync.Mutex
}

// NewFileAccountStore builds a FileAccountStore rooted at dir.
func NewFileAccountStore(dir string) *FileAccountStore {
	return &FileAccountStore{Dir: dir}
}

func (s *FileAccountStore) path(scenarioID string) string {
	return filepath.Join(s.Dir, "paper-"+scenarioID+".json")
}

// LoadAccount returns the persisted account for scenarioID, or a freshly
// initialized one (spec §4.10's "initializes a new one on first access")
// when no file exists yet.
func (s *FileAccountStore) LoadAccount(ctx context.Context, scenarioID string, initialUSDT float64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var account domain.Account
	err := readJSON(s.path(scenarioID), &account)
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewAccount(initialUSDT, time.Now().UTC()), nil
	}
	if err != nil {
		return domain.Account{}, err
	}
	if account.Positions == nil {
		account.Positions = make(map[string]domain.Position)
	}
	for symbol, pos := range account.Positions {
		pos.Side = domain.NormalizeSide(pos.Side)
		account.Positions[symbol] = pos
	}
	if account.OpenOrders == nil {
		account.OpenOrders = make(map[string]domain.PendingOrder)
	}
	return account, nil
}

// SaveAccount persists account for scenarioID via write-to-temp +
// atomic-rename.
func (s *FileAccountStore) SaveAccount(ctx context.Context, scenarioID string, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.UpdatedAt = time.Now().UTC()
	return writeAtomic(s.path(scenarioID), account)
}
