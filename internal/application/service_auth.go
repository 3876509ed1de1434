package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
)

// Login verifies credentials and issues a new session.
// Missing user, inactive account, and wrong password all surface as
// ErrInvalidCredentials so callers cannot tell which one it was. Lockout is
// checked before the password so a locked account answers the same way for
// right and wrong passwords.
func (s *Service) Login(ctx context.Context, req LoginRequest, rc RequestContext) (AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.recordAuthFailure(ctx, nil, email, "", domain.ActionLogin, "user not found", rc)
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.recordAuthFailure(ctx, &user.ID, user.Email, user.Role, domain.ActionLogin, "account inactive", rc)
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	now := s.nowFn()
	if user.Locked(now) {
		s.recordAuthFailure(ctx, &user.ID, user.Email, user.Role, domain.ActionLogin, "account locked", rc)
		return AuthResponse{}, domain.ErrAccountLocked
	}

	// Accounts provisioned through OAuth have no local hash; treat the
	// attempt as a plain credential mismatch.
	if user.PasswordHash == "" || s.hasher.Compare(user.PasswordHash, req.Password) != nil {
		if err := s.registerFailedAttempt(ctx, user); err != nil {
			return AuthResponse{}, err
		}
		s.recordAuthFailure(ctx, &user.ID, user.Email, user.Role, domain.ActionLogin, "invalid password", rc)
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	if err := s.users.ResetLoginState(ctx, user.ID, now); err != nil {
		return AuthResponse{}, fmt.Errorf("reset login state: %w", err)
	}

	token, err := s.issueSession(ctx, user, rc)
	if err != nil {
		return AuthResponse{}, err
	}

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:    &user.ID,
		UserEmail: user.Email,
		UserRole:  user.Role,
		Action:    domain.ActionLogin,
		Resource:  "auth",
		Status:    domain.AuditSuccess,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
	})

	return AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.cfg.SessionTTL.Seconds()),
		User:      toUserProfile(user),
	}, nil
}

// registerFailedAttempt bumps the per-user failure counter atomically and
// applies the lockout window once the configured threshold is reached.
func (s *Service) registerFailedAttempt(ctx context.Context, user domain.User) error {
	now := s.nowFn()
	count, err := s.users.IncrementLoginAttempts(ctx, user.ID, now)
	if err != nil {
		return fmt.Errorf("increment login attempts: %w", err)
	}
	if count >= s.cfg.MaxLoginAttempts {
		lockedUntil := now.Add(s.cfg.LockoutDuration)
		if err := s.users.SetLockout(ctx, user.ID, lockedUntil, now); err != nil {
			return fmt.Errorf("set lockout: %w", err)
		}
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			"operation", "login",
			"outcome", "failure",
			"user_id", user.ID,
			"failed_attempts", count,
			"locked_until", lockedUntil,
		)
	}
	return nil
}

// Register creates a local account and issues its first session.
// A duplicate email surfaces as ErrConflict from the repository.
func (s *Service) Register(ctx context.Context, req RegisterRequest, rc RequestContext) (AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return AuthResponse{}, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, ports.CreateUserParams{
		Email:         email,
		Name:          strings.TrimSpace(req.Name),
		PasswordHash:  passwordHash,
		Role:          s.cfg.DefaultRole,
		AuthProvider:  domain.ProviderEmail,
		EmailVerified: false,
		CreatedAtUTC:  s.nowFn(),
	})
	if err != nil {
		return AuthResponse{}, err
	}

	token, err := s.issueSession(ctx, user, rc)
	if err != nil {
		return AuthResponse{}, err
	}

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:    &user.ID,
		UserEmail: user.Email,
		UserRole:  user.Role,
		Action:    domain.ActionRegister,
		Resource:  "auth",
		Status:    domain.AuditSuccess,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
	})
	s.enqueueEmailJob(ctx, jobKindWelcomeEmail, emailJobPayload{
		UserID: user.ID.String(),
		Email:  user.Email,
		Name:   user.Name,
	})

	return AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.cfg.SessionTTL.Seconds()),
		User:      toUserProfile(user),
	}, nil
}

// LoginWithOAuth exchanges a provider authorization code and finds or
// creates the matching account. Exchange failures surface as
// ErrOAuthExchange, distinct from local credential errors.
func (s *Service) LoginWithOAuth(ctx context.Context, req OAuthLoginRequest, rc RequestContext) (AuthResponse, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" || strings.TrimSpace(req.Code) == "" {
		return AuthResponse{}, fmt.Errorf("%w: provider and code are required", domain.ErrInvalidInput)
	}

	identity, err := s.oauth.Exchange(ctx, provider, req.Code)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%w: %v", domain.ErrOAuthExchange, err)
	}

	email, err := normalizeEmail(identity.Email)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("%w: provider returned no usable email", domain.ErrOAuthExchange)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return AuthResponse{}, err
		}
		user, err = s.users.Create(ctx, ports.CreateUserParams{
			Email:         email,
			Name:          identity.Name,
			Role:          s.cfg.DefaultRole,
			AuthProvider:  provider,
			EmailVerified: identity.EmailVerified,
			CreatedAtUTC:  s.nowFn(),
		})
		if err != nil {
			return AuthResponse{}, err
		}
	}
	if !user.IsActive {
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	token, err := s.issueSession(ctx, user, rc)
	if err != nil {
		return AuthResponse{}, err
	}

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:    &user.ID,
		UserEmail: user.Email,
		UserRole:  user.Role,
		Action:    domain.ActionLogin,
		Resource:  "auth",
		Status:    domain.AuditSuccess,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
		Metadata:  map[string]any{"provider": provider},
	})

	return AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.cfg.SessionTTL.Seconds()),
		User:      toUserProfile(user),
	}, nil
}

// Logout revokes the session behind the bearer token. It is idempotent:
// an unparseable token, an unknown session, and a second logout all succeed.
func (s *Service) Logout(ctx context.Context, token string, rc RequestContext) error {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return nil
	}
	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, claims.SessionID, now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, claims.SessionID, claims.ExpiresAt)

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:    &claims.UserID,
		UserEmail: claims.Email,
		UserRole:  claims.Role,
		Action:    domain.ActionLogout,
		Resource:  "auth",
		Status:    domain.AuditSuccess,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
	})
	return nil
}

// LogoutAll revokes every active session of the token's owner.
func (s *Service) LogoutAll(ctx context.Context, token string, rc RequestContext) error {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return domain.ErrUnauthorized
	}
	now := s.nowFn()
	if err := s.sessions.RevokeAllByUser(ctx, claims.UserID, now); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, claims.SessionID, claims.ExpiresAt)

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:    &claims.UserID,
		UserEmail: claims.Email,
		UserRole:  claims.Role,
		Action:    domain.ActionLogout,
		Resource:  "auth",
		Status:    domain.AuditSuccess,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
		Metadata:  map[string]any{"scope": "all_sessions"},
	})
	return nil
}

// ValidateToken resolves a bearer token to its user, or nil.
// Every rejection path returns nil rather than an error: a guard only needs
// to know whether the request is authenticated, and the reasons are already
// logged where they happen.
func (s *Service) ValidateToken(ctx context.Context, token string) *domain.User {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return nil
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, claims.SessionID); revoked {
		return nil
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil
	}
	now := s.nowFn()
	if session.UserID != claims.UserID || !session.Valid(now) {
		return nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		return nil
	}
	return &user
}

// ListSessions returns the caller's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, token string) ([]SessionItem, error) {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	sessions, err := s.sessions.ListByUser(ctx, claims.UserID, 100, 0)
	if err != nil {
		return nil, err
	}
	result := make([]SessionItem, 0, len(sessions))
	for _, it := range sessions {
		result = append(result, toSessionItem(it, claims.SessionID))
	}
	return result, nil
}

// RevokeSession revokes one of the caller's own sessions by id.
func (s *Service) RevokeSession(ctx context.Context, token string, sessionID uuid.UUID) error {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return domain.ErrUnauthorized
	}
	target, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if target.UserID != claims.UserID {
		return domain.ErrUnauthorized
	}
	if err := s.sessions.RevokeByID(ctx, sessionID, s.nowFn()); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, sessionID, target.ExpiresAt)
	return nil
}

// DeactivateAccount soft-deletes the caller's account and revokes all its
// sessions. The user row stays so audit entries keep a live reference; the
// foreign key nulls it out only if the row is ever removed operationally.
func (s *Service) DeactivateAccount(ctx context.Context, token string, rc RequestContext) error {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return domain.ErrUnauthorized
	}
	now := s.nowFn()
	if err := s.users.Deactivate(ctx, claims.UserID, now); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllByUser(ctx, claims.UserID, now); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, claims.SessionID, claims.ExpiresAt)

	s.recordAudit(ctx, domain.AuditEntry{
		UserID:     &claims.UserID,
		UserEmail:  claims.Email,
		UserRole:   claims.Role,
		Action:     domain.ActionUserDeactivate,
		Resource:   "user",
		ResourceID: claims.UserID.String(),
		Status:     domain.AuditSuccess,
		IPAddress:  rc.IPAddress,
		UserAgent:  rc.UserAgent,
		RequestID:  rc.RequestID,
	})
	return nil
}

// issueSession creates the persistent session row and signs the token that
// references it. The session id goes into the claims so logout and the
// revocation fast path can address the session without a table lookup.
func (s *Service) issueSession(ctx context.Context, user domain.User, rc RequestContext) (string, error) {
	now := s.nowFn()
	sessionID := uuid.New()
	expiresAt := now.Add(s.cfg.SessionTTL)

	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	if _, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		SessionID: sessionID,
		UserID:    user.ID,
		Token:     token,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}
