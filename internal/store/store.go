// Package store persists session snapshots and operator accounts. Writes are
// best-effort from the engine's point of view: a failed save is logged and
// the session continues in memory.
//
// Snapshot writes use key-level merge semantics: each save only replaces the
// document keys it carries, so a report-only save (the AAR) never clobbers a
// previously saved transcript.
package store

import (
	"context"
	"errors"
	"time"

	"gundog/internal/session"
)

// ErrNotFound is returned when no snapshot or user exists for the given key.
var ErrNotFound = errors.New("not found")

// Snapshot is one persisted session document, keyed by identity and
// scenario.
type Snapshot struct {
	Identity    string             `json:"username"`
	Scenario    string             `json:"mission_id"`
	ChatHistory []session.Message  `json:"chat_history,omitempty"`
	Locations   map[string]string  `json:"unit_data,omitempty"`
	Ledger      map[string]bool    `json:"objectives,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	Clock       int                `json:"mission_time"`
	AAR         string             `json:"aar_report,omitempty"`
	LastSaved   time.Time          `json:"last_saved"`
}

// SnapshotStore is the persistence contract for session state.
type SnapshotStore interface {
	// SaveState merges the snapshot's state keys into the stored document.
	SaveState(ctx context.Context, snap Snapshot) error

	// SaveAAR merges only the after-action report into the stored document,
	// leaving all other keys untouched.
	SaveAAR(ctx context.Context, identity, scenario, report string) error

	// Load returns the stored snapshot, or ErrNotFound.
	Load(ctx context.Context, identity, scenario string) (Snapshot, error)

	// Delete removes the stored document. Deleting a missing document is not
	// an error.
	Delete(ctx context.Context, identity, scenario string) error
}

// User is one operator account record.
type User struct {
	Email        string
	Username     string
	FullName     string
	PasswordHash string
	PasswordHint string
	Role         string
	CreatedAt    time.Time
}
