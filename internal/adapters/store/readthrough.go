package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tradeloop/enginecore/internal/domain"
	"github.com/tradeloop/enginecore/internal/ports"
)

// cacheRecord pairs a cached value with the instant it was produced, the
// unit every TTL-gated reader in this file compares against a caller's TTL
// (spec §9: stale reads return unavailable, never panic).
type cacheRecord[T any] struct {
	Value     T
	UpdatedAt time.Time
}

func fresh(updatedAt time.Time, ttl time.Duration) bool {
	if updatedAt.IsZero() {
		return false
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return time.Since(updatedAt) <= ttl
}

// FileReadThrough[T] backs a single scalar TTL-gated cache file (spec §12's
// "one generic read-through helper" for sentiment, pair list, onchain, and
// emergency-halt, which would otherwise each reimplement the same
// load-and-compare-TTL logic). Producers call Write; the Scenario Runtime
// calls Read every tick through one of the concrete *Source wrappers below.
type FileReadThrough[T any] struct {
	Path string

	mu sync.Mutex
}

// Read returns the cached value and Fresh if it was written within ttl of
// now, else the zero value and Unavailable.
func (c *FileReadThrough[T]) Read(ttl time.Duration) (T, ports.Staleness) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rec cacheRecord[T]
	err := readJSON(c.Path, &rec)
	if err != nil {
		var zero T
		return zero, ports.Unavailable
	}
	if !fresh(rec.UpdatedAt, ttl) {
		var zero T
		return zero, ports.Unavailable
	}
	return rec.Value, ports.Fresh
}

// Write persists value as the cache's current reading, stamped at.
func (c *FileReadThrough[T]) Write(value T, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeAtomic(c.Path, cacheRecord[T]{Value: value, UpdatedAt: at})
}

func newReadThrough[T any](dir, filename string) *FileReadThrough[T] {
	return &FileReadThrough[T]{Path: filepath.Join(dir, filename)}
}

// FileSentimentSource implements ports.SentimentSource over sentiment-cache.json.
type FileSentimentSource struct{ c *FileReadThrough[ports.SentimentSnapshot] }

// NewFileSentimentSource builds a FileSentimentSource rooted at dir.
func NewFileSentimentSource(dir string) *FileSentimentSource {
	return &FileSentimentSource{c: newReadThrough[ports.SentimentSnapshot](dir, "sentiment-cache.json")}
}

func (s *FileSentimentSource) Read(ctx context.Context, ttl time.Duration) (ports.SentimentSnapshot, ports.Staleness) {
	return s.c.Read(ttl)
}

// Write lets the sentiment ingestor publish a new reading.
func (s *FileSentimentSource) Write(ctx context.Context, snap ports.SentimentSnapshot, at time.Time) error {
	return s.c.Write(snap, at)
}

// FilePairListSource implements ports.PairListSource over current-pairlist.json.
type FilePairListSource struct{ c *FileReadThrough[[]string] }

// NewFilePairListSource builds a FilePairListSource rooted at dir.
func NewFilePairListSource(dir string) *FilePairListSource {
	return &FilePairListSource{c: newReadThrough[[]string](dir, "current-pairlist.json")}
}

func (s *FilePairListSource) Read(ctx context.Context, ttl time.Duration) ([]string, ports.Staleness) {
	return s.c.Read(ttl)
}

// Write lets the pair-list ingestor publish a new symbol list.
func (s *FilePairListSource) Write(ctx context.Context, symbols []string, at time.Time) error {
	return s.c.Write(symbols, at)
}

// FileOnchainSource implements ports.OnchainSource over onchain-cache.json.
type FileOnchainSource struct{ c *FileReadThrough[float64] }

// NewFileOnchainSource builds a FileOnchainSource rooted at dir.
func NewFileOnchainSource(dir string) *FileOnchainSource {
	return &FileOnchainSource{c: newReadThrough[float64](dir, "onchain-cache.json")}
}

func (s *FileOnchainSource) Read(ctx context.Context, ttl time.Duration) (float64, ports.Staleness) {
	return s.c.Read(ttl)
}

// Write lets the onchain ingestor publish a new signal score.
func (s *FileOnchainSource) Write(ctx context.Context, value float64, at time.Time) error {
	return s.c.Write(value, at)
}

// FileEmergencyHaltSource implements ports.EmergencyHaltSource over
// emergency-halt.json.
type FileEmergencyHaltSource struct{ c *FileReadThrough[bool] }

// NewFileEmergencyHaltSource builds a FileEmergencyHaltSource rooted at dir.
func NewFileEmergencyHaltSource(dir string) *FileEmergencyHaltSource {
	return &FileEmergencyHaltSource{c: newReadThrough[bool](dir, "emergency-halt.json")}
}

func (s *FileEmergencyHaltSource) Read(ctx context.Context, ttl time.Duration) (bool, ports.Staleness) {
	return s.c.Read(ttl)
}

// Write lets an operator or monitor toggle the emergency-halt reading.
func (s *FileEmergencyHaltSource) Write(ctx context.Context, active bool, at time.Time) error {
	return s.c.Write(active, at)
}

// FileCvdSource implements ports.CvdSource over cvd-state.json, keyed by
// symbol since one process tracks CVD for every traded symbol at once.
type FileCvdSource struct {
	path string
	mu   sync.Mutex
}

// NewFileCvdSource builds a FileCvdSource rooted at dir.
func NewFileCvdSource(dir string) *FileCvdSource {
	return &FileCvdSource{path: filepath.Join(dir, "cvd-state.json")}
}

func (s *FileCvdSource) load() (map[string]cacheRecord[domain.CvdEntry], error) {
	var all map[string]cacheRecord[domain.CvdEntry]
	err := readJSON(s.path, &all)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]cacheRecord[domain.CvdEntry]), nil
	}
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = make(map[string]cacheRecord[domain.CvdEntry])
	}
	return all, nil
}

// Read returns the latest CvdEntry for symbol if it was updated within ttl.
func (s *FileCvdSource) Read(ctx context.Context, symbol string, ttl time.Duration) (domain.CvdEntry, ports.Staleness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return domain.CvdEntry{}, ports.Unavailable
	}
	rec, ok := all[symbol]
	if !ok || !fresh(rec.UpdatedAt, ttl) {
		return domain.CvdEntry{}, ports.Unavailable
	}
	return rec.Value, ports.Fresh
}

// Write lets the CVD streaming consumer publish symbol's latest reading.
func (s *FileCvdSource) Write(ctx context.Context, entry domain.CvdEntry, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	all[entry.Symbol] = cacheRecord[domain.CvdEntry]{Value: entry, UpdatedAt: at}
	return writeAtomic(s.path, all)
}

// fundingCacheFile is the on-disk shape backing FileFundingSource: a
// funding rate per symbol plus one shared BTC dominance reading, each
// independently TTL-gated at read time.
type fundingCacheFile struct {
	Rates        map[string]cacheRecord[float64]
	BTCDominance cacheRecord[dominanceReading]
}

type dominanceReading struct {
	Dominance float64
	Delta     float64
}

// FileFundingSource implements ports.FundingSource over funding-cache.json,
// a supplement this spec adds (§12) alongside the six named cache files so
// the context rule family's funding-rate/BTC-dominance inputs have a
// concrete backing store like every other read-through source.
type FileFundingSource struct {
	path string
	mu   sync.Mutex
}

// NewFileFundingSource builds a FileFundingSource rooted at dir.
func NewFileFundingSource(dir string) *FileFundingSource {
	return &FileFundingSource{path: filepath.Join(dir, "funding-cache.json")}
}

func (s *FileFundingSource) load() (fundingCacheFile, error) {
	var f fundingCacheFile
	err := readJSON(s.path, &f)
	if errors.Is(err, os.ErrNotExist) {
		return fundingCacheFile{Rates: make(map[string]cacheRecord[float64])}, nil
	}
	if err != nil {
		return fundingCacheFile{}, err
	}
	if f.Rates == nil {
		f.Rates = make(map[string]cacheRecord[float64])
	}
	return f, nil
}

// FundingRate returns symbol's last published funding rate if fresh within
// one minute (the rule family's own fixed TTL; unlike the other sources,
// spec names no configurable TTL for funding).
func (s *FileFundingSource) FundingRate(ctx context.Context, symbol string) (float64, ports.Staleness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return 0, ports.Unavailable
	}
	rec, ok := f.Rates[symbol]
	if !ok || !fresh(rec.UpdatedAt, time.Minute) {
		return 0, ports.Unavailable
	}
	return rec.Value, ports.Fresh
}

// BTCDominance returns the last published BTC dominance value and its
// recent delta.
func (s *FileFundingSource) BTCDominance(ctx context.Context) (float64, float64, ports.Staleness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return 0, 0, ports.Unavailable
	}
	if !fresh(f.BTCDominance.UpdatedAt, time.Minute) {
		return 0, 0, ports.Unavailable
	}
	return f.BTCDominance.Value.Dominance, f.BTCDominance.Value.Delta, ports.Fresh
}

// WriteFundingRate lets the funding-rate ingestor publish symbol's reading.
func (s *FileFundingSource) WriteFundingRate(ctx context.Context, symbol string, rate float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	f.Rates[symbol] = cacheRecord[float64]{Value: rate, UpdatedAt: at}
	return writeAtomic(s.path, f)
}

// WriteBTCDominance lets the funding ingestor publish the current BTC
// dominance reading and its delta since the previous one.
func (s *FileFundingSource) WriteBTCDominance(ctx context.Context, value, delta float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	f.BTCDominance = cacheRecord[dominanceReading]{Value: dominanceReading{Dominance: value, Delta: delta}, UpdatedAt: at}
	return writeAtomic(s.path, f)
}
