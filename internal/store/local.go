package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"gundog/internal/logging"
)

// LocalStore is the SQLite-backed SnapshotStore. Documents are stored as
// JSON and merged at the key level inside a transaction, so concurrent
// report and state saves compose instead of overwriting each other.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("local store ready at %s", path)
	return s, nil
}

func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mission_states (
		identity   TEXT NOT NULL,
		scenario   TEXT NOT NULL,
		doc        TEXT NOT NULL,
		last_saved TIMESTAMP NOT NULL,
		PRIMARY KEY (identity, scenario)
	);
	CREATE TABLE IF NOT EXISTS users (
		email         TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		full_name     TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		password_hint TEXT,
		role          TEXT NOT NULL DEFAULT 'Recruit',
		created_at    TIMESTAMP NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// mergeDoc reads the current document, overlays the provided keys and writes
// the result back, all in one transaction.
func (s *LocalStore) mergeDoc(ctx context.Context, identity, scenario string, keys map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc := map[string]json.RawMessage{}
	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT doc FROM mission_states WHERE identity = ? AND scenario = ?",
		identity, scenario).Scan(&raw)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			logging.StoreError("stored doc for %s/%s unreadable, replacing: %v", identity, scenario, err)
			doc = map[string]json.RawMessage{}
		}
	case errors.Is(err, sql.ErrNoRows):
		// first save for this key
	default:
		return fmt.Errorf("failed to read document: %w", err)
	}

	for k, v := range keys {
		doc[k] = v
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO mission_states (identity, scenario, doc, last_saved)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity, scenario) DO UPDATE SET doc = excluded.doc, last_saved = excluded.last_saved`,
		identity, scenario, string(merged), now)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return tx.Commit()
}

// SaveState merges the snapshot's state keys into the stored document.
func (s *LocalStore) SaveState(ctx context.Context, snap Snapshot) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveState")
	defer timer.Stop()

	keys := map[string]json.RawMessage{}
	for k, v := range map[string]any{
		"chat_history": snap.ChatHistory,
		"unit_data":    snap.Locations,
		"objectives":   snap.Ledger,
		"scores":       snap.Scores,
		"mission_time": snap.Clock,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", k, err)
		}
		keys[k] = raw
	}
	return s.mergeDoc(ctx, snap.Identity, snap.Scenario, keys)
}

// SaveAAR merges only the after-action report into the stored document.
func (s *LocalStore) SaveAAR(ctx context.Context, identity, scenario, report string) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return s.mergeDoc(ctx, identity, scenario, map[string]json.RawMessage{"aar_report": raw})
}

// Load returns the stored snapshot, or ErrNotFound.
func (s *LocalStore) Load(ctx context.Context, identity, scenario string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	var lastSaved time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT doc, last_saved FROM mission_states WHERE identity = ? AND scenario = ?",
		identity, scenario).Scan(&raw, &lastSaved)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read document: %w", err)
	}

	snap := Snapshot{Identity: identity, Scenario: scenario, LastSaved: lastSaved}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("stored document unreadable: %w", err)
	}
	snap.Identity = identity
	snap.Scenario = scenario
	snap.LastSaved = lastSaved
	return snap, nil
}

// Delete removes the stored document.
func (s *LocalStore) Delete(ctx context.Context, identity, scenario string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM mission_states WHERE identity = ? AND scenario = ?", identity, scenario)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	logging.Store("snapshot deleted for %s/%s", identity, scenario)
	return nil
}
