package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gundog/internal/logging"
)

// SaveUser inserts a new operator account. Duplicate email or username is an
// error.
func (s *LocalStore) SaveUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, username, full_name, password_hash, password_hint, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.Username, u.FullName, u.PasswordHash, u.PasswordHint, u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	logging.Store("user %q registered", u.Username)
	return nil
}

// UserByUsername returns the account for a username, or ErrNotFound.
func (s *LocalStore) UserByUsername(ctx context.Context, username string) (User, error) {
	return s.userBy(ctx, "username", username)
}

// UserByEmail returns the account for an email, or ErrNotFound.
func (s *LocalStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.userBy(ctx, "email", email)
}

func (s *LocalStore) userBy(ctx context.Context, column, value string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var hint sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT email, username, full_name, password_hash, password_hint, role, created_at FROM users WHERE "+column+" = ?",
		value).Scan(&u.Email, &u.Username, &u.FullName, &u.PasswordHash, &hint, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to read user: %w", err)
	}
	u.PasswordHint = hint.String
	return u, nil
}

// UpdatePassword replaces a user's password hash.
func (s *LocalStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	logging.Store("password updated for %q", username)
	return nil
}
