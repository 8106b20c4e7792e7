package domain

import (
	"errors"
	"time"
)

// User is the core user entity. ID is assigned by the database at creation;
// records are never mutated afterwards.
type User struct {
	ID           int64
	Email        string
	Name         string // optional display name
	PasswordHash string // never exposed outside the auth core
	CreatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing
// the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// Redacted returns a copy of the user with the password hash cleared,
// safe to hand to layers above the auth core.
func (u *User) Redacted() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}
