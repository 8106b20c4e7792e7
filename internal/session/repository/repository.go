package repository

import (
	"context"
	"errors"

	"gtd-api/backend/internal/session/domain"
)

var (
	// ErrAlreadyExists is returned by Create on a token collision. Tokens are
	// cryptographically unguessable, so this is a defensive check only.
	ErrAlreadyExists = errors.New("session already exists")
	// ErrNotFound is returned by Replace when the old token has no live row,
	// including when a concurrent rotation already consumed it.
	ErrNotFound = errors.New("session not found")
)

// Repository defines persistence for refresh-token sessions.
type Repository interface {
	// Create inserts a new session row.
	Create(ctx context.Context, s *domain.Session) error
	// IsValid reports whether a live session exists for token. An expired row
	// is deleted as a side effect (lazy expiry) and reported as invalid.
	IsValid(ctx context.Context, token string) (bool, error)
	// Delete removes any row matching token. Deleting a nonexistent token is
	// not an error.
	Delete(ctx context.Context, token string) error
	// Replace atomically deletes the row for oldToken and inserts s. Fails
	// with ErrNotFound when oldToken has no row, so concurrent rotations of
	// the same token admit at most one winner.
	Replace(ctx context.Context, oldToken string, s *domain.Session) error
}
