package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
)

// RequestContext carries transport-level metadata into audited operations.
type RequestContext struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type OAuthLoginRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

type PasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// UserProfile is the caller-facing projection of a user record.
type UserProfile struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	IsActive      bool      `json:"is_active"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuthResponse is returned by login, register, and OAuth login.
type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int64       `json:"expires_in"`
	User      UserProfile `json:"user"`
}

type SessionItem struct {
	SessionID uuid.UUID  `json:"session_id"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
	IsActive  bool       `json:"is_active"`
	IsCurrent bool       `json:"is_current"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

type AuditLogQuery struct {
	UserID uuid.UUID
	Action string
	Days   int
	Page   int
	Limit  int
}

type AuditLogItem struct {
	ID           uuid.UUID      `json:"id"`
	UserID       *uuid.UUID     `json:"user_id,omitempty"`
	UserEmail    string         `json:"user_email,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func toUserProfile(u domain.User) UserProfile {
	return UserProfile{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func toSessionItem(s domain.Session, currentID uuid.UUID) SessionItem {
	return SessionItem{
		SessionID: s.ID,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		IsActive:  s.IsActive,
		IsCurrent: s.ID == currentID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		RevokedAt: s.RevokedAt,
	}
}

func toAuditLogItem(e domain.AuditEntry) AuditLogItem {
	return AuditLogItem{
		ID:           e.ID,
		UserID:       e.UserID,
		UserEmail:    e.UserEmail,
		Action:       string(e.Action),
		Resource:     e.Resource,
		ResourceID:   e.ResourceID,
		Status:       string(e.Status),
		ErrorMessage: e.ErrorMessage,
		IPAddress:    e.IPAddress,
		RequestID:    e.RequestID,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}
