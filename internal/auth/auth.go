// Package auth manages operator accounts: bcrypt credential checks,
// registration with a password hint, resets, and signed session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"gundog/internal/logging"
	"gundog/internal/store"
)

// Status is the tri-state outcome of a credential check. StatusUnknown means
// the username does not exist, which callers may present differently from a
// wrong password.
type Status int

const (
	StatusUnknown Status = iota
	StatusRejected
	StatusAuthenticated
)

// DefaultRole is assigned to newly registered operators.
const DefaultRole = "Recruit"

var (
	ErrUserExists   = errors.New("username or email already registered")
	ErrInvalidToken = errors.New("invalid session token")
)

// Directory is the account persistence contract, satisfied by
// store.LocalStore.
type Directory interface {
	SaveUser(ctx context.Context, u store.User) error
	UserByUsername(ctx context.Context, username string) (store.User, error)
	UserByEmail(ctx context.Context, email string) (store.User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
}

// Authenticator verifies credentials and issues session tokens.
type Authenticator struct {
	dir       Directory
	jwtSecret []byte
	tokenTTL  time.Duration
}

// New constructs an Authenticator over an account directory.
func New(dir Directory, jwtSecret string, tokenTTL time.Duration) *Authenticator {
	if tokenTTL == 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	return &Authenticator{dir: dir, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL}
}

// Verify checks a username/password pair against the directory.
func (a *Authenticator) Verify(ctx context.Context, username, password string) (Status, store.User, error) {
	u, err := a.dir.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return StatusUnknown, store.User{}, nil
	}
	if err != nil {
		return StatusUnknown, store.User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		logging.AuthWarn("rejected login for %q", username)
		return StatusRejected, store.User{}, nil
	}
	logging.Auth("login accepted for %q", username)
	return StatusAuthenticated, u, nil
}

// Register creates a new account with a hashed password and the default
// role.
func (a *Authenticator) Register(ctx context.Context, email, username, fullName, password, hint string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" || password == "" {
		return fmt.Errorf("email, username and password are required")
	}

	if _, err := a.dir.UserByUsername(ctx, username); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if _, err := a.dir.UserByEmail(ctx, email); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return a.dir.SaveUser(ctx, store.User{
		Email:        email,
		Username:     username,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
		PasswordHint: strings.TrimSpace(hint),
		Role:         DefaultRole,
	})
}

// PasswordHint returns the stored hint for a registered email address.
func (a *Authenticator) PasswordHint(ctx context.Context, email string) (string, error) {
	u, err := a.dir.UserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", err
	}
	return u.PasswordHint, nil
}

// ResetPassword replaces a user's password after verifying the current one.
func (a *Authenticator) ResetPassword(ctx context.Context, username, currentPassword, newPassword string) error {
	status, _, err := a.Verify(ctx, username, currentPassword)
	if err != nil {
		return err
	}
	if status != StatusAuthenticated {
		return fmt.Errorf("current password does not match")
	}
	if newPassword == "" {
		return fmt.Errorf("new password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return a.dir.UpdatePassword(ctx, username, string(hash))
}

type sessionClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for an authenticated user.
func (a *Authenticator) IssueToken(u store.User) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a session token and returns the username it was
// issued to.
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}
