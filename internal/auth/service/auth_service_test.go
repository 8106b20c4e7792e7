package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gtd-api/backend/internal/security"
	sessiondomain "gtd-api/backend/internal/session/domain"
	sessionrepo "gtd-api/backend/internal/session/repository"
	userdomain "gtd-api/backend/internal/user/domain"
	userrepo "gtd-api/backend/internal/user/repository"
)

type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[int64]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id int64) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return userrepo.ErrAlreadyExists
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now().UTC()
	c := *u
	r.byID[u.ID] = &c
	return nil
}

func (r *memUserRepo) delete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

type memSessionRepo struct {
	mu      sync.Mutex
	byToken map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byToken: map[string]*sessiondomain.Session{}}
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byToken[s.Token]; ok {
		return sessionrepo.ErrAlreadyExists
	}
	c := *s
	r.byToken[s.Token] = &c
	return nil
}

func (r *memSessionRepo) IsValid(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	if !ok {
		return false, nil
	}
	if s.Expired(time.Now()) {
		delete(r.byToken, token)
		return false, nil
	}
	return true, nil
}

func (r *memSessionRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, token)
	return nil
}

func (r *memSessionRepo) Replace(ctx context.Context, oldToken string, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byToken[oldToken]; !ok {
		return sessionrepo.ErrNotFound
	}
	delete(r.byToken, oldToken)
	c := *s
	r.byToken[s.Token] = &c
	return nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

func newTestService(users *memUserRepo, sessions *memSessionRepo) *AuthService {
	tokens := security.NewTokenProvider(
		[]byte("test-access-secret"),
		[]byte("test-refresh-secret"),
		"gtd-api-test",
		15*time.Minute,
		168*time.Hour,
	)
	return NewAuthService(users, sessions, security.NewHasher(4), tokens)
}

func TestRegister_Success(t *testing.T) {
	users, sessions := newMemUserRepo(), newMemSessionRepo()
	svc := newTestService(users, sessions)

	res, err := svc.Register(context.Background(), "alice@mail.com", "pw123", "Alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User == nil || res.User.ID == 0 {
		t.Fatal("Register should return the created user with an id")
	}
	if res.User.PasswordHash != "" {
		t.Error("returned user must not carry the password hash")
	}
	if res.User.Email != "alice@mail.com" || res.User.Name != "Alice" {
		t.Errorf("user fields: got email=%q name=%q", res.User.Email, res.User.Name)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("Register should return both tokens")
	}
	if sessions.count() != 1 {
		t.Errorf("expected 1 session, got %d", sessions.count())
	}

	stored, _ := users.GetByEmail(context.Background(), "alice@mail.com")
	if stored.PasswordHash == "" || stored.PasswordHash == "pw123" {
		t.Error("stored user must carry a hash, never the plaintext")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())

	if _, err := svc.Register(context.Background(), "alice@mail.com", "pw123", ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice@mail.com", "other", ""); !errors.Is(err, ErrUserExists) {
		t.Errorf("second Register: want ErrUserExists, got %v", err)
	}
}

func TestRegister_EmptyInput(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())

	if _, err := svc.Register(context.Background(), "", "pw123", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty email: want ErrValidation, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "a@b.c", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty password: want ErrValidation, got %v", err)
	}
}

func TestLogin_Success(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())

	if _, err := svc.Register(context.Background(), "alice@mail.com", "pw123", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Login(context.Background(), "alice@mail.com", "pw123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.PasswordHash != "" {
		t.Error("returned user must not carry the password hash")
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("Login should return both tokens")
	}
}

func TestLogin_BackToBackLoginsCreateDistinctSessions(t *testing.T) {
	sessions := newMemSessionRepo()
	svc := newTestService(newMemUserRepo(), sessions)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@mail.com", "pw123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Same-second logins must still mint unique refresh tokens; the session
	// store enforces token uniqueness and would reject a repeat.
	first, err := svc.Login(ctx, "alice@mail.com", "pw123")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second, err := svc.Login(ctx, "alice@mail.com", "pw123")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}

	if first.RefreshToken == reg.RefreshToken || second.RefreshToken == reg.RefreshToken ||
		first.RefreshToken == second.RefreshToken {
		t.Error("each login must issue a distinct refresh token")
	}
	if sessions.count() != 3 {
		t.Errorf("expected 3 live sessions (register + 2 logins), got %d", sessions.count())
	}
}

func TestLogin_SameErrorForUnknownEmailAndWrongPassword(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())

	if _, err := svc.Register(context.Background(), "alice@mail.com", "pw123", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, errWrongPw := svc.Login(context.Background(), "alice@mail.com", "nope")
	_, errNoUser := svc.Login(context.Background(), "ghost@mail.com", "pw123")

	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Errorf("wrong password: want ErrInvalidCredentials, got %v", errWrongPw)
	}
	if !errors.Is(errNoUser, ErrInvalidCredentials) {
		t.Errorf("unknown email: want ErrInvalidCredentials, got %v", errNoUser)
	}
	if errWrongPw.Error() != errNoUser.Error() {
		t.Error("both failures must be indistinguishable")
	}
}

func TestRefresh_RotatesAndInvalidatesOldToken(t *testing.T) {
	sessions := newMemSessionRepo()
	svc := newTestService(newMemUserRepo(), sessions)

	reg, err := svc.Register(context.Background(), "alice@mail.com", "pw123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := svc.Refresh(context.Background(), reg.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.RefreshToken == reg.RefreshToken {
		t.Error("Refresh must issue a new refresh token")
	}
	if res.User.PasswordHash != "" {
		t.Error("returned user must not carry the password hash")
	}
	if sessions.count() != 1 {
		t.Errorf("rotation should leave exactly 1 session, got %d", sessions.count())
	}

	// Single-use: the original token is permanently dead.
	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("second Refresh with the same token: want ErrInvalidSession, got %v", err)
	}

	// The rotated token still works.
	if _, err := svc.Refresh(context.Background(), res.RefreshToken); err != nil {
		t.Errorf("Refresh with rotated token: %v", err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())

	reg, err := svc.Register(context.Background(), "alice@mail.com", "pw123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), reg.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Refresh with an access token: want ErrInvalidToken, got %v", err)
	}
}

func TestRefresh_MalformedToken(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())
	if _, err := svc.Refresh(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
}

func TestRefresh_UserDeleted(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestService(users, newMemSessionRepo())

	reg, err := svc.Register(context.Background(), "alice@mail.com", "pw123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	users.delete(reg.User.ID)

	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("want ErrUserNotFound, got %v", err)
	}
}

func TestRefresh_ExpiredSessionLazilyReaped(t *testing.T) {
	sessions := newMemSessionRepo()
	svc := newTestService(newMemUserRepo(), sessions)

	reg, err := svc.Register(context.Background(), "alice@mail.com", "pw123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Force the stored session past its expiry; the token itself is still valid.
	sessions.mu.Lock()
	sessions.byToken[reg.RefreshToken].ExpiresAt = time.Now().Add(-time.Minute)
	sessions.mu.Unlock()

	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("want ErrInvalidSession, got %v", err)
	}
	if sessions.count() != 0 {
		t.Errorf("expired session should have been deleted on read, %d rows left", sessions.count())
	}
}

func TestLogout_ThenRefreshFails(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())

	reg, err := svc.Register(context.Background(), "alice@mail.com", "pw123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(context.Background(), reg.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Refresh after Logout: want ErrInvalidSession, got %v", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())

	if err := svc.Logout(context.Background(), "never-issued"); err != nil {
		t.Errorf("Logout with unknown token should succeed, got %v", err)
	}
	if err := svc.Logout(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Logout with empty token: want ErrValidation, got %v", err)
	}
}

func TestMe(t *testing.T) {
	users := newMemUserRepo()
	svc := newTestService(users, newMemSessionRepo())

	reg, err := svc.Register(context.Background(), "alice@mail.com", "pw123", "Alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, err := svc.Me(context.Background(), reg.AccessToken)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if user.ID != reg.User.ID || user.Email != "alice@mail.com" {
		t.Errorf("Me: got id=%d email=%q", user.ID, user.Email)
	}
	if user.PasswordHash != "" {
		t.Error("Me must not expose the password hash")
	}

	if _, err := svc.Me(context.Background(), reg.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Me with a refresh token: want ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Me(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Me with garbage: want ErrInvalidToken, got %v", err)
	}

	users.delete(reg.User.ID)
	if _, err := svc.Me(context.Background(), reg.AccessToken); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Me after user deletion: want ErrUserNotFound, got %v", err)
	}
}

func TestAuthFlow_RegisterLoginRefreshMe(t *testing.T) {
	svc := newTestService(newMemUserRepo(), newMemSessionRepo())
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@mail.com", "pw123", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	login, err := svc.Login(ctx, "alice@mail.com", "pw123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("old refresh token should be dead, got %v", err)
	}

	user, err := svc.Me(ctx, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if user.Email != "alice@mail.com" || user.ID != reg.User.ID {
		t.Errorf("Me: got id=%d email=%q", user.ID, user.Email)
	}
	if user.PasswordHash != "" {
		t.Error("password hash leaked through Me")
	}
}
