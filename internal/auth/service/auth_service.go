// Package service implements the auth core: register, login, refresh with
// rotation, logout, and current-user resolution.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gtd-api/backend/internal/pkg/log"
	"gtd-api/backend/internal/security"
	sessiondomain "gtd-api/backend/internal/session/domain"
	sessionrepo "gtd-api/backend/internal/session/repository"
	userdomain "gtd-api/backend/internal/user/domain"
	userrepo "gtd-api/backend/internal/user/repository"
)

// Sentinel errors for the auth service; the HTTP layer maps them to status codes.
var (
	// ErrUserExists is returned by Register when the email is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned by Login for both an unknown email
	// and a wrong password, so callers cannot enumerate registered emails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers malformed, expired, tampered, and wrong-kind tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidSession is returned by Refresh when the token verifies but no
	// live session backs it (logged out, rotated away, or lazily expired).
	ErrInvalidSession = errors.New("invalid session")
	// ErrUserNotFound is returned when a valid token references a user that
	// no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrValidation is returned for malformed input shapes.
	ErrValidation = errors.New("invalid request")
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	IsValid(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
	Replace(ctx context.Context, oldToken string, s *sessiondomain.Session) error
}

// AuthResult holds the outcome of Register, Login, or Refresh: the user
// (password hash cleared) and a fresh token pair.
type AuthResult struct {
	User         *userdomain.User
	AccessToken  string
	RefreshToken string
}

// AuthService orchestrates the hasher, token provider, user directory, and
// session store into the auth operations.
type AuthService struct {
	users    UserRepo
	sessions SessionRepo
	hasher   *security.Hasher
	tokens   *security.TokenProvider
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(users UserRepo, sessions SessionRepo, hasher *security.Hasher, tokens *security.TokenProvider) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
	}
}

// Register creates a user with the given email and password, then issues a
// token pair and persists a session for the refresh token.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrValidation
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.internal(ctx, "register: lookup email", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, s.internal(ctx, "register: hash password", err)
	}

	user := &userdomain.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hashed,
	}
	if err := user.Validate(); err != nil {
		return nil, ErrValidation
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrAlreadyExists) {
			// Lost a race with a concurrent registration of the same email.
			return nil, ErrUserExists
		}
		return nil, s.internal(ctx, "register: create user", err)
	}

	return s.issueTokens(ctx, user)
}

// Login authenticates with email and password and issues a fresh token pair.
// An unknown email and a wrong password yield the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.internal(ctx, "login: lookup email", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueTokens(ctx, user)
}

// Refresh exchanges a live refresh token for a new token pair, rotating the
// session: the presented token becomes permanently unusable even if it had
// remaining validity. Concurrent refreshes of the same token admit one winner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.Verify(refreshToken, security.TokenKindRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	ok, err := s.sessions.IsValid(ctx, refreshToken)
	if err != nil {
		return nil, s.internal(ctx, "refresh: validate session", err)
	}
	if !ok {
		return nil, ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, s.internal(ctx, "refresh: lookup user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	accessToken, _, err := s.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return nil, s.internal(ctx, "refresh: issue access token", err)
	}
	newRefresh, refreshExp, err := s.tokens.IssueRefresh(user.ID, user.Email)
	if err != nil {
		return nil, s.internal(ctx, "refresh: issue refresh token", err)
	}

	next := newSession(user.ID, newRefresh, refreshExp)
	if err := s.sessions.Replace(ctx, refreshToken, next); err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			// A concurrent refresh rotated this token first.
			return nil, ErrInvalidSession
		}
		return nil, s.internal(ctx, "refresh: rotate session", err)
	}

	return &AuthResult{
		User:         user.Redacted(),
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
	}, nil
}

// Logout deletes the session for the given refresh token. Idempotent: a
// token with no session is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return ErrValidation
	}
	if err := s.sessions.Delete(ctx, refreshToken); err != nil {
		return s.internal(ctx, "logout: delete session", err)
	}
	return nil
}

// Me verifies the access token and returns the user it identifies, with the
// password hash cleared.
func (s *AuthService) Me(ctx context.Context, accessToken string) (*userdomain.User, error) {
	claims, err := s.tokens.Verify(accessToken, security.TokenKindAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, s.internal(ctx, "me: lookup user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user.Redacted(), nil
}

// issueTokens mints an access+refresh pair for user and persists a session
// whose expiry mirrors the refresh token's.
func (s *AuthService) issueTokens(ctx context.Context, user *userdomain.User) (*AuthResult, error) {
	accessToken, _, err := s.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return nil, s.internal(ctx, "issue access token", err)
	}
	refreshToken, refreshExp, err := s.tokens.IssueRefresh(user.ID, user.Email)
	if err != nil {
		return nil, s.internal(ctx, "issue refresh token", err)
	}

	sess := newSession(user.ID, refreshToken, refreshExp)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, s.internal(ctx, "create session", err)
	}

	return &AuthResult{
		User:         user.Redacted(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func newSession(userID int64, token string, expiresAt time.Time) *sessiondomain.Session {
	return &sessiondomain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

// internal logs an unexpected failure for operator visibility and returns it
// unchanged. Sentinel errors never pass through here.
func (s *AuthService) internal(ctx context.Context, msg string, err error) error {
	log.From(ctx).Error(msg, slog.String("err", err.Error()))
	return err
}
