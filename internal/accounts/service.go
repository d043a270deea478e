// Package accounts implements registration, credential verification,
// password reset and role-gated authorization.
package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"kiadas/internal/core"
	"kiadas/internal/storage"
)

const (
	resetCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	resetCodeLength   = 6
)

type Service struct {
	repo *storage.Repository
}

func NewService(repo *storage.Repository) *Service {
	return &Service{repo: repo}
}

// HashPassword returns the hex SHA-256 digest of the password bytes.
// The digest is deliberately unsalted and single-round to stay
// compatible with hashes written by earlier versions of the ledger.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword recomputes the digest and compares byte for byte.
func VerifyPassword(password, passwordHash string) bool {
	return HashPassword(password) == passwordHash
}

// GenerateResetCode draws a 6-character code from a uniform
// uppercase-alphanumeric alphabet. Each character is drawn with
// rand.Int so no alphabet position is favored.
func GenerateResetCode() (string, error) {
	max := big.NewInt(int64(len(resetCodeAlphabet)))
	code := make([]byte, resetCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw random index: %w", err)
		}
		code[i] = resetCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// Register creates a new user with a freshly computed password digest
// and the default viewer role.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	switch {
	case username == "":
		return fmt.Errorf("%w: username", core.ErrEmptyField)
	case email == "":
		return fmt.Errorf("%w: email", core.ErrEmptyField)
	case password == "":
		return fmt.Errorf("%w: password", core.ErrEmptyField)
	}

	if _, err := s.repo.UserByUsername(ctx, username); err == nil {
		return core.ErrDuplicateUsername
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check username: %w", err)
	}

	// Email uniqueness is enforced here rather than by the schema.
	if _, err := s.repo.UserByEmail(ctx, email); err == nil {
		return core.ErrDuplicateEmail
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check email: %w", err)
	}

	if _, err := s.repo.CreateUser(ctx, username, email, HashPassword(password), core.RoleViewer); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "username", username)
	return nil
}

// Login verifies the credentials and returns the session the caller
// holds across subsequent operations. Unknown usernames and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (core.Session, error) {
	user, err := s.repo.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Session{}, core.ErrInvalidCredentials
		}
		return core.Session{}, fmt.Errorf("look up user: %w", err)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		slog.WarnContext(ctx, "Login rejected", "username", username)
		return core.Session{}, core.ErrInvalidCredentials
	}

	slog.InfoContext(ctx, "Login succeeded", "username", username, "role", user.Role)
	return core.Session{Username: user.Username, Role: user.Role}, nil
}

// RequestReset generates a reset code, persists it against the user row
// (overwriting any prior code) and returns it to the caller for
// display or out-of-band delivery.
func (s *Service) RequestReset(ctx context.Context, username string) (string, error) {
	if _, err := s.repo.UserByUsername(ctx, username); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", core.ErrUnknownUser
		}
		return "", fmt.Errorf("look up user: %w", err)
	}

	code, err := GenerateResetCode()
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}

	if err := s.repo.SetResetCode(ctx, username, code); err != nil {
		return "", fmt.Errorf("store reset code: %w", err)
	}

	slog.InfoContext(ctx, "Reset code issued", "username", username)
	return code, nil
}

// ConfirmReset consumes a pending reset code and replaces the user's
// password. The code is cleared in the same update that writes the new
// digest, so it is single-use.
func (s *Service) ConfirmReset(ctx context.Context, code, newPassword, confirmPassword string) error {
	user, err := s.repo.UserByResetCode(ctx, code)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrInvalidCode
		}
		return fmt.Errorf("look up reset code: %w", err)
	}

	if newPassword != confirmPassword {
		return core.ErrPasswordMismatch
	}

	if err := s.repo.CompletePasswordReset(ctx, user.ID, HashPassword(newPassword)); err != nil {
		return fmt.Errorf("complete reset: %w", err)
	}

	slog.InfoContext(ctx, "Password reset confirmed", "username", user.Username)
	return nil
}

// UserEmail returns the stored email for a username, empty when none.
func (s *Service) UserEmail(ctx context.Context, username string) (string, error) {
	user, err := s.repo.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", core.ErrUnknownUser
		}
		return "", fmt.Errorf("look up user: %w", err)
	}
	return user.Email, nil
}
