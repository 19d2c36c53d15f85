package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gundog/internal/session"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "gundog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := Snapshot{
		Identity: "peter",
		Scenario: "panama",
		ChatHistory: []session.Message{
			{Role: session.RoleCommander, Text: "move out"},
			{Role: session.RoleSquad, Text: "copy", Speakers: map[string]string{"SAM": "copy"}},
		},
		Locations: map[string]string{"SAM": "Dockside"},
		Ledger:    map[string]bool{"obj_a": true, "obj_b": false},
		Scores:    map[string]float64{"csf_pricing": 0.5},
		Clock:     42,
	}
	require.NoError(t, s.SaveState(ctx, snap))

	got, err := s.Load(ctx, "peter", "panama")
	require.NoError(t, err)
	assert.Equal(t, 42, got.Clock)
	assert.Equal(t, "Dockside", got.Locations["SAM"])
	assert.True(t, got.Ledger["obj_a"])
	assert.Equal(t, 0.5, got.Scores["csf_pricing"])
	require.Len(t, got.ChatHistory, 2)
	assert.Equal(t, session.RoleCommander, got.ChatHistory[0].Role)
	assert.False(t, got.LastSaved.IsZero())
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "nobody", "panama")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAARPreservesState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, Snapshot{
		Identity:    "peter",
		Scenario:    "panama",
		ChatHistory: []session.Message{{Role: session.RoleCommander, Text: "go"}},
		Clock:       30,
	}))
	require.NoError(t, s.SaveAAR(ctx, "peter", "panama", "solid command presence"))

	got, err := s.Load(ctx, "peter", "panama")
	require.NoError(t, err)
	assert.Equal(t, "solid command presence", got.AAR)
	assert.Equal(t, 30, got.Clock, "report merge must not clobber state keys")
	assert.Len(t, got.ChatHistory, 1)
}

func TestSaveAARBeforeAnyState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAAR(ctx, "peter", "panama", "report"))
	got, err := s.Load(ctx, "peter", "panama")
	require.NoError(t, err)
	assert.Equal(t, "report", got.AAR)
}

func TestSnapshotsKeyedPerIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, Snapshot{Identity: "peter", Scenario: "panama", Clock: 10}))
	require.NoError(t, s.SaveState(ctx, Snapshot{Identity: "mary", Scenario: "panama", Clock: 50}))

	got, err := s.Load(ctx, "peter", "panama")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Clock)
	got, err = s.Load(ctx, "mary", "panama")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Clock)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveState(ctx, Snapshot{Identity: "peter", Scenario: "panama", Clock: 10}))
	require.NoError(t, s.Delete(ctx, "peter", "panama"))

	_, err := s.Load(ctx, "peter", "panama")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing document is quiet.
	assert.NoError(t, s.Delete(ctx, "peter", "panama"))
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := User{
		Email:        "peter@example.com",
		Username:     "peter",
		FullName:     "Peter Quill",
		PasswordHash: "$2a$10$fakehash",
		PasswordHint: "favorite ship",
		Role:         "Recruit",
	}
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.UserByUsername(ctx, "peter")
	require.NoError(t, err)
	assert.Equal(t, "peter@example.com", got.Email)
	assert.Equal(t, "favorite ship", got.PasswordHint)
	assert.False(t, got.CreatedAt.IsZero())

	got, err = s.UserByEmail(ctx, "peter@example.com")
	require.NoError(t, err)
	assert.Equal(t, "peter", got.Username)

	_, err = s.UserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	// Duplicate registration fails.
	assert.Error(t, s.SaveUser(ctx, u))
}

func TestUpdatePassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, User{
		Email: "a@b.c", Username: "peter", FullName: "P", PasswordHash: "old", Role: "Recruit",
	}))
	require.NoError(t, s.UpdatePassword(ctx, "peter", "new"))

	got, err := s.UserByUsername(ctx, "peter")
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)

	assert.ErrorIs(t, s.UpdatePassword(ctx, "nobody", "x"), ErrNotFound)
}
