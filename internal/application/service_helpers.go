package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
)

const (
	jobKindWelcomeEmail       = "email.welcome"
	jobKindPasswordResetEmail = "email.password_reset"
)

// emailJobPayload is the JSON body queued for the email worker.
type emailJobPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Token  string `json:"token,omitempty"`
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}
	return strings.ToLower(trimmed), nil
}

// hashToken maps a one-time secret to its stored form. Only the digest is
// persisted, so a database leak does not expose usable reset tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomHex(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// recordAudit writes an audit entry without letting a trail failure abort
// the operation that produced it. Failures are logged and dropped.
func (s *Service) recordAudit(ctx context.Context, entry domain.AuditEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.nowFn()
	}
	if entry.Status == "" {
		entry.Status = domain.AuditSuccess
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit insert failed",
			"operation", "record_audit",
			"outcome", "failure",
			"action", entry.Action,
			"error", err,
		)
	}
}

func (s *Service) recordAuthFailure(ctx context.Context, userID *uuid.UUID, email, role string, action domain.AuditAction, reason string, rc RequestContext) {
	s.recordAudit(ctx, domain.AuditEntry{
		UserID:       userID,
		UserEmail:    email,
		UserRole:     role,
		Action:       action,
		Resource:     "auth",
		Status:       domain.AuditFailure,
		ErrorMessage: reason,
		IPAddress:    rc.IPAddress,
		UserAgent:    rc.UserAgent,
		RequestID:    rc.RequestID,
	})
}

// enqueueEmailJob queues an email for the background worker. Like the audit
// trail, a queue failure never fails the auth operation itself.
func (s *Service) enqueueEmailJob(ctx context.Context, kind string, payload emailJobPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "email job payload marshal failed",
			"operation", "enqueue_email",
			"outcome", "failure",
			"kind", kind,
			"error", err,
		)
		return
	}
	now := s.nowFn()
	if err := s.jobs.Enqueue(ctx, ports.Job{
		JobID:      uuid.New(),
		Kind:       kind,
		Payload:    body,
		RunAt:      now,
		EnqueuedAt: now,
	}); err != nil {
		s.logger.WarnContext(ctx, "email job enqueue failed",
			"operation", "enqueue_email",
			"outcome", "failure",
			"kind", kind,
			"error", err,
		)
	}
}
