package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gtd-api/backend/internal/auth/service"
)

// NewRouter wires the auth routes, health endpoints, and middleware chain.
func NewRouter(auth *service.AuthService, logger *slog.Logger) http.Handler {
	h := NewAuthHandler(auth)

	r := chi.NewRouter()
	r.Use(Telemetry())
	r.Use(RequestLogger(logger))
	r.Use(Recover())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", h.Register)
			ar.Post("/login", h.Login)
			ar.Post("/refresh", h.Refresh)
			ar.Post("/logout", h.Logout)

			ar.Group(func(pr chi.Router) {
				pr.Use(RequireAuth(auth))
				pr.Get("/me", h.Me)
			})
		})

		api.Group(func(pr chi.Router) {
			pr.Use(RequireAuth(auth))
			pr.Get("/protected", h.Protected)
		})
	})

	r.NotFound(h.NotFound)

	return r
}
