// Package store implements every durable artifact named in spec §6 as a
// plain JSON/JSONL file under one base directory: the per-scenario account
// snapshot, the scenario control-state file, the append-only signal
// history, the heartbeat files, the presence-based kill switch, the
// TTL-gated read-through caches (sentiment, CVD, funding, onchain,
// pair list, emergency halt), and the event calendar, which has no TTL.
//
// The teacher persists through `modernc.org/sqlite` (internal/adapters/
// storage/paper.go); spec §6 names an explicit file layout instead, so
// this package follows the write-to-temp + atomic-rename pattern the
// pack's chidi150c-coinbase sibling uses for its own JSON state file
// (Trader.saveStateFrom: json.MarshalIndent, os.WriteFile to a .tmp
// sibling, os.Rename over the real path) rather than the teacher's SQL
// upsert. See DESIGN.md for the full justification.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic marshals v to indented JSON and writes it to path via a
// temp-file-in-the-same-directory + rename, so a reader never observes a
// partially written file (spec §4.10/§6).
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store.writeAtomic: marshal %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store.writeAtomic: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store.writeAtomic: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store.writeAtomic: write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store.writeAtomic: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store.writeAtomic: rename into %s: %w", path, err)
	}
	return nil
}

// readJSON loads and unmarshals path into v. It returns os.ErrNotExist
// unchanged (wrapped) so callers can distinguish "no file yet" from a real
// read/decode failure.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store.readJSON: decode %s: %w", path, err)
	}
	return nil
}
