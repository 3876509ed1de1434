package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plateforge/auth-service/internal/application"
	"github.com/plateforge/auth-service/internal/domain"
)

// Handler is the HTTP adapter entrypoint for auth use-cases.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
	limiter *application.RateLimiter
}

func NewHandler(service *application.Service, limiter *application.RateLimiter) *Handler {
	return &Handler{service: service, limiter: limiter}
}

// NewRouter registers HTTP routes and the middleware stack.
// Centralizing routes here keeps auth and error behavior consistent across
// endpoints. Login and register stay outside the rate-limit guard: failed
// logins are throttled by the account lockout counter instead, and the
// guard admits unauthenticated requests anyway.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/oauth/login", handler.oauthLogin)
		r.Post("/password/reset-request", handler.passwordResetRequest)
		r.Post("/password/reset", handler.passwordReset)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/logout", handler.logout)
			r.Post("/logout-all", handler.logoutAll)
			r.Delete("/account", handler.deleteAccount)
			r.Get("/sessions", handler.listSessions)
			r.Delete("/sessions/{session_id}", handler.revokeSession)
			r.Get("/usage", handler.usageStats)
			r.Post("/limits/check", handler.checkRateLimit)
		})

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Use(handler.requireRole(domain.RoleAdmin))
			r.With(handler.rateLimitMiddleware(domain.ActionGraphQLQuery, "audit_logs")).
				Get("/admin/audit-logs", handler.listAuditLogs)
			r.Get("/admin/users", handler.listUsers)
			r.Get("/admin/users/{user_id}", handler.getUser)
			r.Patch("/admin/users/{user_id}", handler.updateUser)
			r.Post("/admin/rate-limits/{user_id}/reset", handler.resetRateLimits)
		})
	})

	return r
}
