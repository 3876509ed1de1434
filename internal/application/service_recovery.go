package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plateforge/auth-service/internal/domain"
)

// RequestPasswordReset issues a one-time reset token and queues the reset
// email. It answers identically for known and unknown addresses so it cannot
// be used for account enumeration; only the raw token in the email reveals
// that an account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, rc RequestContext) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	rawToken, err := randomHex(32)
	if err != nil {
		return err
	}
	now := s.nowFn()
	if err := s.users.SetPasswordResetToken(ctx, user.ID, hashToken(rawToken), now.Add(s.cfg.ResetTokenTTL), now); err != nil {
		return err
	}

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:    &user.ID,
		UserEmail: user.Email,
		UserRole:  user.Role,
		Action:    domain.ActionPasswordReset,
		Resource:  "auth",
		Status:    domain.AuditPending,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
	})
	s.enqueueEmailJob(ctx, jobKindPasswordResetEmail, emailJobPayload{
		UserID: user.ID.String(),
		Email:  user.Email,
		Name:   user.Name,
		Token:  rawToken,
	})
	return nil
}

// ResetPassword consumes a reset token, replaces the credential hash, and
// revokes every session of the account. The consume is single-use: a second
// call with the same token fails with ErrTokenExpired.
func (s *Service) ResetPassword(ctx context.Context, req PasswordResetRequest, rc RequestContext) error {
	if strings.TrimSpace(req.Token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	now := s.nowFn()
	userID, err := s.users.ConsumePasswordResetToken(ctx, hashToken(req.Token), now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrTokenExpired
		}
		return err
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, passwordHash, now); err != nil {
		return err
	}
	// A reset proves the old credential may be compromised; drop every
	// live session for the account.
	if err := s.sessions.RevokeAllByUser(ctx, userID, now); err != nil {
		return err
	}

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:    &userID,
		Action:    domain.ActionPasswordChange,
		Resource:  "auth",
		Status:    domain.AuditSuccess,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
	})
	return nil
}
