package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Dashboard read surface (no auth; kiosks poll these)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		// Push subscriptions (token-scoped, no auth)
		r.Route("/push", func(r chi.Router) {
			r.Post("/", s.handleCreatePushSubscription)
			r.Delete("/", s.handleDeletePushSubscription)
			r.Get("/{token}", s.handleListPushSubscriptions)
		})

		// Public notice and version reads
		r.Get("/notices", s.handleListNotices)
		r.Get("/app-version/{platform}", s.handleGetAppVersion)

		// Hardware and observer sockets (auth handled at the device level;
		// see SecurityConfig docs)
		r.Get("/ws/device", s.handleDeviceWS)
		r.Get("/ws/client", s.handleClientWS)

		// Admin surface
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/status/connections", s.handleConnectionStatus)

			r.Route("/logs", func(r chi.Router) {
				r.Get("/", s.handleListLogs)
				r.Get("/{id}", s.handleGetLog)
			})

			r.Post("/notices", s.handleCreateNotice)
			r.Delete("/notices/{id}", s.handleDeleteNotice)

			r.Put("/app-version/{platform}", s.handleSetAppVersion)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
