package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/application"
	"github.com/plateforge/auth-service/internal/domain"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}

	res, err := h.service.Register(r.Context(), req, requestContextFrom(r))
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), req, requestContextFrom(r))
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) oauthLogin(w http.ResponseWriter, r *http.Request) {
	var req application.OAuthLoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "oauth_login", err)
		return
	}

	res, err := h.service.LoginWithOAuth(r.Context(), req, requestContextFrom(r))
	if err != nil {
		writeMappedError(r.Context(), w, "oauth_login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "password_reset_request", err)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email, requestContextFrom(r)); err != nil {
		writeMappedError(r.Context(), w, "password_reset_request", err)
		return
	}
	writeMessage(w, http.StatusOK, "If the email exists, a password reset link has been sent")
}

func (h *Handler) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req application.PasswordResetRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "password_reset", err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req, requestContextFrom(r)); err != nil {
		writeMappedError(r.Context(), w, "password_reset", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successful. You can now login with your new password.")
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "logout")
		return
	}
	if err := h.service.Logout(r.Context(), token, requestContextFrom(r)); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "logout_all")
		return
	}
	if err := h.service.LogoutAll(r.Context(), token, requestContextFrom(r)); err != nil {
		writeMappedError(r.Context(), w, "logout_all", err)
		return
	}
	writeMessage(w, http.StatusOK, "All sessions revoked successfully")
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "delete_account")
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), token, requestContextFrom(r)); err != nil {
		writeMappedError(r.Context(), w, "delete_account", err)
		return
	}
	writeMessage(w, http.StatusOK, "Account deactivated successfully")
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_sessions")
		return
	}
	items, err := h.service.ListSessions(r.Context(), token)
	if err != nil {
		writeMappedError(r.Context(), w, "list_sessions", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"sessions": items})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_session")
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "revoke_session", errors.New("invalid session_id"))
		return
	}
	if err := h.service.RevokeSession(r.Context(), token, sessionID); err != nil {
		writeMappedError(r.Context(), w, "revoke_session", err)
		return
	}
	writeMessage(w, http.StatusOK, "Session revoked successfully")
}

func (h *Handler) usageStats(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "usage_stats")
		return
	}
	stats, err := h.limiter.UsageStats(r.Context(), user.ID)
	if err != nil {
		writeMappedError(r.Context(), w, "usage_stats", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"usage": stats})
}

// checkRateLimit is the guard surface for other services: they ask whether
// the calling user may perform an action, and optionally record the
// occurrence so subsequent checks see it.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "check_rate_limit")
		return
	}
	var req struct {
		Action   string `json:"action"`
		Resource string `json:"resource"`
		Record   bool   `json:"record"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "check_rate_limit", err)
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeValidationError(r.Context(), w, "check_rate_limit", errors.New("action is required"))
		return
	}

	rc := requestContextFrom(r)
	result := h.limiter.Check(r.Context(), user.ID, domain.AuditAction(req.Action), req.Resource, rc)
	if result.Allowed && req.Record {
		h.recordActionUse(r.Context(), user, domain.AuditAction(req.Action), req.Resource, rc)
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"allowed":    result.Allowed,
		"limit":      result.Limit,
		"remaining":  result.Remaining,
		"reset_time": result.ResetTime,
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	items, err := h.service.ListUsers(r.Context(), page, limit)
	if err != nil {
		writeMappedError(r.Context(), w, "list_users", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"users": items})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "get_user", errors.New("invalid user_id"))
		return
	}
	item, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": item})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := userFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "update_user")
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "update_user", errors.New("invalid user_id"))
		return
	}
	var req application.UpdateUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_user", err)
		return
	}
	item, err := h.service.UpdateUser(r.Context(), userID, req, admin.ID, requestContextFrom(r))
	if err != nil {
		writeMappedError(r.Context(), w, "update_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": item})
}

func (h *Handler) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := application.AuditLogQuery{
		Action: r.URL.Query().Get("action"),
		Days:   parseIntDefault(r.URL.Query().Get("days"), 0),
		Page:   parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeValidationError(r.Context(), w, "list_audit_logs", errors.New("invalid user_id"))
			return
		}
		query.UserID = id
	}

	items, err := h.service.ListAuditLogs(r.Context(), query)
	if err != nil {
		writeMappedError(r.Context(), w, "list_audit_logs", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"audit_logs": items})
}

func (h *Handler) resetRateLimits(w http.ResponseWriter, r *http.Request) {
	admin, ok := userFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "reset_rate_limits")
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "reset_rate_limits", errors.New("invalid user_id"))
		return
	}
	if err := h.limiter.ResetLimits(r.Context(), userID, admin.ID, requestContextFrom(r)); err != nil {
		writeMappedError(r.Context(), w, "reset_rate_limits", err)
		return
	}
	writeMessage(w, http.StatusOK, "Rate limits reset recorded")
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func readIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logHTTPOperationError(ctx, operation, status, code, msg, err)
	writeError(w, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	code := "VALIDATION_ERROR"
	msg := err.Error()
	logHTTPOperationError(ctx, operation, http.StatusBadRequest, code, msg, err)
	writeError(w, http.StatusBadRequest, code, msg)
}

func writeMissingBearerError(ctx context.Context, w http.ResponseWriter, operation string) {
	code := "UNAUTHORIZED"
	msg := "missing bearer token"
	logHTTPOperationError(ctx, operation, http.StatusUnauthorized, code, msg, nil)
	writeError(w, http.StatusUnauthorized, code, msg)
}
