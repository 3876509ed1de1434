package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
)

// CreateUserParams captures the inputs for a new credential record.
type CreateUserParams struct {
	Email         string
	Name          string
	PasswordHash  string
	Role          string
	AuthProvider  string
	EmailVerified bool
	CreatedAtUTC  time.Time
}

// UserUpdateParams is a partial admin edit; nil fields stay untouched.
type UserUpdateParams struct {
	Name     *string
	IsActive *bool
}

// UserRepository defines persistence operations for user credentials.
// IncrementLoginAttempts is a single atomic increment-and-return so the
// lockout decision never races a read-modify-write in application code.
type UserRepository interface {
	Create(ctx context.Context, params CreateUserParams) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
	Update(ctx context.Context, userID uuid.UUID, params UserUpdateParams, now time.Time) (domain.User, error)
	IncrementLoginAttempts(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
	SetLockout(ctx context.Context, userID uuid.UUID, lockedUntil time.Time, now time.Time) error
	ResetLoginState(ctx context.Context, userID uuid.UUID, loginAt time.Time) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, now time.Time) error
	SetPasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt, now time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
	Deactivate(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// SessionCreateParams captures metadata required to create a session record.
type SessionCreateParams struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Token     string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionRepository manages persistent session lifecycle.
// Revocation marks a session inactive rather than deleting it so session
// history remains inspectable; hard removal is the sweeper's job.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	GetByToken(ctx context.Context, token string) (domain.Session, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Session, error)
	RevokeByID(ctx context.Context, sessionID uuid.UUID, revokedAt time.Time) error
	RevokeByToken(ctx context.Context, token string, revokedAt time.Time) error
	RevokeAllByUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditCountFilter selects audit rows for time-windowed counting.
// Resource is optional; empty means "any resource for this action".
type AuditCountFilter struct {
	UserID   uuid.UUID
	Action   domain.AuditAction
	Resource string
	Since    time.Time
}

// AuditQuery filters the admin audit listing.
type AuditQuery struct {
	UserID *uuid.UUID
	Action domain.AuditAction
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// AuditLogRepository is the append-only audit trail.
// Insert is the only write path; entries are never updated or deleted by
// application logic. Count serves the fixed-window rate limiter.
type AuditLogRepository interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
	Count(ctx context.Context, filter AuditCountFilter) (int64, error)
	List(ctx context.Context, query AuditQuery) ([]domain.AuditEntry, error)
}

// Job is the write-side payload for a queued background job.
type Job struct {
	JobID      uuid.UUID
	Kind       string
	Payload    []byte
	RunAt      time.Time
	EnqueuedAt time.Time
}

// JobRecord is the durable queue state including retry/error metadata.
type JobRecord struct {
	JobID          uuid.UUID
	Kind           string
	Payload        []byte
	RetryCount     int
	LastError      *string
	RunAt          time.Time
	CreatedAt      time.Time
	CompletedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// JobRepository controls the claim-retry workflow for background jobs
// (email dispatch, scheduled cleanup). The claim token keeps multiple
// workers from double-processing a batch. MarkFailed releases the claim and
// reschedules the job at retryAt, the caller's backoff deadline.
type JobRepository interface {
	Enqueue(ctx context.Context, job Job) error
	ClaimPending(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]JobRecord, error)
	MarkDone(ctx context.Context, jobID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, claimToken, errMsg string, retryAt time.Time) error
	MarkDeadLettered(ctx context.Context, jobID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
