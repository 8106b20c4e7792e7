package domain

import "time"

// Session binds one issued refresh token to a user, enabling revocation.
// At most one live row exists per token value; rows are deleted on logout,
// on rotation, or lazily when found expired.
type Session struct {
	ID        string // uuid
	UserID    int64
	Token     string // the refresh token itself; unique across all sessions
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
