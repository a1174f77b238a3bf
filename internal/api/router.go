package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.instrument)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Every API route goes through the pipeline; the allow-list
		// inside the authenticator lets login and register through.
		r.Use(s.authMiddleware)

		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimitMiddleware).Post("/register", s.handleRegister)
			r.With(s.rateLimitMiddleware).Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.With(s.requireAuthenticated).Get("/user", s.handleCurrentUser)
			r.With(s.requireAuthenticated).Post("/ws-ticket", s.handleWSTicket)
		})

		// The WebSocket authenticates with the bearer header or a ticket.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuthenticated)

			r.Get("/users", s.handleSearchUsers)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Post("/command/{code}", s.handleDeviceCommand)

				r.Route("/{code}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Put("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/command", s.handleDeviceCommand)
					r.Get("/monitorings", s.handleListDeviceMonitorings)
				})
			})

			r.Route("/monitorings", func(r chi.Router) {
				r.Get("/", s.handleListMonitorings)
				r.Post("/", s.handleCreateMonitorings)
				r.Post("/bulk-delete", s.handleBulkDeleteMonitorings)

				r.Route("/{code}", func(r chi.Router) {
					r.Get("/", s.handleGetMonitoring)
					r.Put("/", s.handleUpdateMonitoring)
					r.Delete("/", s.handleDeleteMonitoring)
				})
			})

			r.Get("/audit", s.handleListAuditLogs)
			r.Post("/admin/revocations/sweep", s.handleSweepRevocations)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.events != nil {
		body["mqtt"] = s.events.IsConnected()
	}
	writeJSON(w, http.StatusOK, body)
}
