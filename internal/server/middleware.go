package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gtd-api/backend/internal/auth/service"
	"gtd-api/backend/internal/pkg/log"
)

const bearerPrefix = "bearer "

// statusWriter captures the response status code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequireAuth returns middleware that validates the Bearer access token,
// resolves the user, and stores it in the request context. Requests without
// a usable token never reach the wrapped handler.
func RequireAuth(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				respondError(w, http.StatusUnauthorized, "Access token required")
				return
			}
			user, err := auth.Me(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrInvalidToken):
					respondError(w, http.StatusUnauthorized, "Invalid token")
				case errors.Is(err, service.ErrUserNotFound):
					respondError(w, http.StatusUnauthorized, "User not found")
				default:
					log.From(r.Context()).Error("auth middleware", slog.String("err", err.Error()))
					respondError(w, http.StatusInternalServerError, "Internal server error")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or ""
// if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// RequestLogger returns middleware that stores logger in the request context
// and logs one line per request after it completes.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r.WithContext(log.Into(r.Context(), logger)))

			logger.Info("http_request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}

// Recover returns middleware that converts panics into 500 responses instead
// of tearing down the connection.
func Recover() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.From(r.Context()).Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("path", r.URL.Path),
					)
					respondError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Telemetry returns middleware that records a server span plus request count
// and duration metrics for every request. Uses the global providers, so it
// no-ops when no OTLP endpoint is configured.
func Telemetry() func(http.Handler) http.Handler {
	tracer := otel.Tracer("gtd-api/backend/internal/server")
	meter := otel.Meter("gtd-api/backend/internal/server")
	requests, _ := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Completed HTTP requests"))
	duration, _ := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method,
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			// The route pattern is only known after routing; it keeps label
			// cardinality bounded where the raw path would not.
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			span.SetName(r.Method + " " + route)

			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", sw.status),
			)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", sw.status),
			)
			requests.Add(ctx, 1, attrs)
			duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		})
	}
}
