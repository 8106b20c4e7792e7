package repository

import (
	"context"
	"errors"

	"gtd-api/backend/internal/user/domain"
)

// ErrAlreadyExists is returned by Create when the email is already taken
// (storage-level uniqueness; the service also checks before inserting).
var ErrAlreadyExists = errors.New("user already exists")

// Repository defines persistence for users.
type Repository interface {
	// GetByID returns the user for id, or nil if not found.
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByEmail returns the user with the given email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create persists the user and fills in the generated ID and CreatedAt.
	Create(ctx context.Context, u *domain.User) error
}
