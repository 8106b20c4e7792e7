package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, tampered with,
	// signed with the wrong secret, or carries the wrong kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// TokenKind discriminates access tokens from refresh tokens via the "kind" claim.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims holds the JWT claims carried by both token kinds.
type Claims struct {
	UserID int64     `json:"uid"`
	Email  string    `json:"email"`
	Kind   TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenProvider issues and validates HS256 access and refresh JWTs.
// Access and refresh tokens are signed with distinct secrets so that a leak
// of one class cannot forge the other.
type TokenProvider struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given secrets.
// issuer is set on claims and validated on verification.
func NewTokenProvider(accessSecret, refreshSecret []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess issues a short-lived access JWT for the given user.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(userID int64, email string) (string, time.Time, error) {
	return p.issue(userID, email, TokenKindAccess, p.accessSecret, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT for the given user.
// Returns the token string and its expiration time; the caller persists the
// token in the session store with the same expiry.
func (p *TokenProvider) IssueRefresh(userID int64, email string) (string, time.Time, error) {
	return p.issue(userID, email, TokenKindRefresh, p.refreshSecret, p.refreshTTL)
}

func (p *TokenProvider) issue(userID int64, email string, kind TokenKind, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		Email:  email,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// jti makes every token unique even when two are issued for the
			// same user within one second; iat/exp alone have second precision.
			ID:        uuid.NewString(),
			Subject:   email,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses and validates tokenString against the secret matching kind
// (signature, expiry, issuer, algorithm), then checks the embedded kind claim
// against the caller's expectation. A refresh token presented where an access
// token is expected fails with ErrInvalidToken, and vice versa.
func (p *TokenProvider) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	secret := p.accessSecret
	if kind == TokenKindRefresh {
		secret = p.refreshSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
