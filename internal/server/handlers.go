// Package server exposes the auth service over HTTP: routing, request
// decoding/validation, and error-to-status mapping.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"gtd-api/backend/internal/auth/service"
	"gtd-api/backend/internal/pkg/log"
	userdomain "gtd-api/backend/internal/user/domain"
)

// Version reported by the API root endpoint.
const Version = "1.0.0"

// AuthHandler serves the auth routes plus the health/root endpoints.
type AuthHandler struct {
	auth    *service.AuthService
	started time.Time
}

// NewAuthHandler returns an AuthHandler over the given service.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth, started: time.Now()}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (req *registerRequest) validate() error {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return errors.New("invalid email format")
	}
	if req.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req *loginRequest) validate() error {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return errors.New("email is required")
	}
	if req.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (req *refreshRequest) validate() error {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return errors.New("refreshToken is required")
	}
	return nil
}

type userPayload struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserPayload(u *userdomain.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

type authResponse struct {
	User         userPayload `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func toAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{
		User:         toUserPayload(res.User),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAuthResponse(res))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAuthResponse(res))
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAuthResponse(res))
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Me handles GET /api/auth/me. Runs behind RequireAuth.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]userPayload{"user": toUserPayload(user)})
}

// Protected handles GET /api/protected, the sample protected route. Runs
// behind RequireAuth.
func (h *AuthHandler) Protected(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "This is a protected route",
		"user":    toUserPayload(user),
	})
}

// Root handles GET /.
func (h *AuthHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message":   "GTD API is running!",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Health handles GET /health.
func (h *AuthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"uptime":    time.Since(h.started).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// NotFound handles unmatched routes.
func (h *AuthHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, map[string]string{
		"error": "Route not found",
		"path":  r.URL.Path,
	})
}

// respondServiceError maps service sentinel errors to HTTP statuses. Anything
// unexpected is logged and reported as a generic 500.
func (h *AuthHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUserExists):
		respondError(w, http.StatusConflict, "User already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, service.ErrInvalidSession):
		respondError(w, http.StatusUnauthorized, "Invalid session")
	case errors.Is(err, service.ErrUserNotFound):
		respondError(w, http.StatusUnauthorized, "User not found")
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, "Invalid request")
	default:
		log.From(r.Context()).Error("unhandled service error", slog.String("err", err.Error()))
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decode reads the JSON body into dst; on failure it writes a 400 and
// reports false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
