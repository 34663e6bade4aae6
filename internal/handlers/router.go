package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes bundles the HTTP handlers served by the API.
type Routes struct {
	Health    http.Handler
	Messages  http.Handler
	WebSocket http.Handler
}

// NewRouter mounts the API routes with the standard middleware stack.
func NewRouter(routes Routes, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chiMiddleware.Recoverer)

	r.Method(http.MethodGet, "/health", routes.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/messages", routes.Messages)
		if routes.WebSocket != nil {
			r.Method(http.MethodGet, "/ws", routes.WebSocket)
		}
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", chiMiddleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr)
		})
	}
}
