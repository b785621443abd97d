package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/astrohub/astrohub-core/internal/auth"
	"github.com/astrohub/astrohub-core/internal/metrics"
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

	// Prometheus scrape endpoint (no auth; bind to a trusted network)
	r.Handle("/metrics", metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)
				r.With(s.requirePermission(auth.PermDeviceConfigure)).Post("/", s.handleRegisterDevice)
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/stats", s.handleDeviceStats)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetDevice)
					r.With(s.requirePermission(auth.PermDeviceConfigure)).Delete("/", s.handleDeleteDevice)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermDeviceOperate))
						r.Post("/connect", s.handleConnectDevice)
						r.Post("/disconnect", s.handleDisconnectDevice)
						r.Put("/properties/{name}", s.handleSetProperty)
						r.Post("/command/{action}", s.handleDeviceCommand)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermDeviceRead))
						r.Get("/properties/{name}", s.handleGetProperty)
						r.Get("/image", s.handleDeviceImage)
					})
				})
			})

			// Discovery endpoints
			r.Route("/discovery", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDiscoveryScan)).Post("/scan", s.handleDiscoveryScan)
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/servers", s.handleListServers)
				r.With(s.requirePermission(auth.PermDiscoveryManage)).Post("/servers", s.handleAddServer)
				r.With(s.requirePermission(auth.PermDiscoveryManage)).Delete("/servers/{address}/{port}", s.handleRemoveServer)
			})

			// User management (admin only)
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
					r.Put("/password", s.handleChangePassword)
					r.Get("/sessions", s.handleListSessions)
					r.Delete("/sessions", s.handleRevokeSessions)
				})
			})

			// Audit log (admin only)
			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/audit", s.handleListAuditLogs)

			// System status
			r.With(s.requirePermission(auth.PermDeviceRead)).Get("/system/status", s.handleSystemStatus)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	// Raw Alpaca pass-through for tools that speak the device protocol
	// directly. Auth is enforced inside the handler via query token.
	r.HandleFunc("/proxy/{address}/{port}/*", s.handleProxy)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
