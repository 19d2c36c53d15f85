package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gundog/internal/store"
)

type fakeDirectory struct {
	byUsername map[string]store.User
	byEmail    map[string]store.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byUsername: map[string]store.User{},
		byEmail:    map[string]store.User{},
	}
}

func (d *fakeDirectory) SaveUser(_ context.Context, u store.User) error {
	d.byUsername[u.Username] = u
	d.byEmail[u.Email] = u
	return nil
}

func (d *fakeDirectory) UserByUsername(_ context.Context, username string) (store.User, error) {
	u, ok := d.byUsername[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) UserByEmail(_ context.Context, email string) (store.User, error) {
	u, ok := d.byEmail[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) UpdatePassword(_ context.Context, username, hash string) error {
	u, ok := d.byUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	d.byUsername[username] = u
	d.byEmail[u.Email] = u
	return nil
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *fakeDirectory) {
	t.Helper()
	dir := newFakeDirectory()
	a := New(dir, "test-secret", time.Hour)
	require.NoError(t, a.Register(context.Background(),
		"peter@example.com", "peter", "Peter Quill", "hunter2", "favorite ship"))
	return a, dir
}

func TestVerifyTriState(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()

	status, u, err := a.Verify(ctx, "peter", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, status)
	assert.Equal(t, "peter", u.Username)
	assert.Equal(t, DefaultRole, u.Role)

	status, _, err = a.Verify(ctx, "peter", "wrong")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, status)

	status, _, err = a.Verify(ctx, "nobody", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
}

func TestRegisterDuplicate(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()

	err := a.Register(ctx, "other@example.com", "peter", "P", "pw", "")
	assert.ErrorIs(t, err, ErrUserExists)

	err = a.Register(ctx, "peter@example.com", "other", "P", "pw", "")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestPasswordHint(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	hint, err := a.PasswordHint(context.Background(), "Peter@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "favorite ship", hint)

	_, err = a.PasswordHint(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResetPassword(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()

	require.Error(t, a.ResetPassword(ctx, "peter", "wrong", "newpw"))
	require.NoError(t, a.ResetPassword(ctx, "peter", "hunter2", "newpw"))

	status, _, err := a.Verify(ctx, "peter", "newpw")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, status)

	status, _, _ = a.Verify(ctx, "peter", "hunter2")
	assert.Equal(t, StatusRejected, status)
}

func TestTokenRoundTrip(t *testing.T) {
	a, dir := newTestAuthenticator(t)

	token, err := a.IssueToken(dir.byUsername["peter"])
	require.NoError(t, err)

	username, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "peter", username)
}

func TestTokenWrongSecret(t *testing.T) {
	a, dir := newTestAuthenticator(t)
	token, err := a.IssueToken(dir.byUsername["peter"])
	require.NoError(t, err)

	other := New(newFakeDirectory(), "different-secret", time.Hour)
	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpired(t *testing.T) {
	dir := newFakeDirectory()
	a := New(dir, "secret", -time.Hour)
	require.NoError(t, a.Register(context.Background(), "a@b.c", "peter", "P", "pw", ""))

	token, err := a.IssueToken(dir.byUsername["peter"])
	require.NoError(t, err)
	_, err = a.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
