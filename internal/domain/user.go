package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

const (
	ProviderEmail    = "email"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// User is the canonical credential record.
// Lockout state lives on the row so failed-attempt accounting survives restarts
// and stays consistent under concurrent logins.
type User struct {
	ID            uuid.UUID
	Email         string
	Name          string
	PasswordHash  string
	Role          string
	AuthProvider  string
	EmailVerified bool
	IsActive      bool
	LoginAttempts int
	LockedUntil   *time.Time
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Locked reports whether the account is inside an active lockout window.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Session is a server-tracked authorization grant identified by an opaque
// signed token. A session is valid iff it is active and not past expiry;
// revocation flips is_active rather than deleting the row.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	IPAddress string
	UserAgent string
	IsActive  bool
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Valid reports whether the session may still authorize requests.
func (s Session) Valid(now time.Time) bool {
	return s.IsActive && !now.After(s.ExpiresAt)
}
