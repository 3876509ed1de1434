package postgres

import (
	"time"

	"github.com/google/uuid"
)

type userModel struct {
	UserID             uuid.UUID  `gorm:"column:user_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string     `gorm:"column:email"`
	Name               string     `gorm:"column:name"`
	PasswordHash       string     `gorm:"column:password_hash"`
	Role               string     `gorm:"column:role"`
	AuthProvider       string     `gorm:"column:auth_provider"`
	EmailVerified      bool       `gorm:"column:email_verified"`
	IsActive           bool       `gorm:"column:is_active"`
	LoginAttempts      int        `gorm:"column:login_attempts"`
	LockedUntil        *time.Time `gorm:"column:locked_until"`
	LastLoginAt        *time.Time `gorm:"column:last_login_at"`
	ResetTokenHash     *string    `gorm:"column:reset_token_hash"`
	ResetTokenExpires  *time.Time `gorm:"column:reset_token_expires_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
	DeactivatedAt      *time.Time `gorm:"column:deactivated_at"`
}

func (userModel) TableName() string { return "users" }

type sessionModel struct {
	SessionID uuid.UUID  `gorm:"column:session_id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id"`
	Token     string     `gorm:"column:token"`
	IPAddress *string    `gorm:"column:ip_address"`
	UserAgent string     `gorm:"column:user_agent"`
	IsActive  bool       `gorm:"column:is_active"`
	ExpiresAt time.Time  `gorm:"column:expires_at"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string { return "sessions" }

type auditLogModel struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID        *uuid.UUID `gorm:"column:user_id"`
	UserEmail     *string    `gorm:"column:user_email"`
	UserRole      *string    `gorm:"column:user_role"`
	Action        string     `gorm:"column:action"`
	Resource      *string    `gorm:"column:resource"`
	ResourceID    *string    `gorm:"column:resource_id"`
	Status        string     `gorm:"column:status"`
	DurationMs    *int       `gorm:"column:duration_ms"`
	ErrorMessage  *string    `gorm:"column:error_message"`
	IPAddress     *string    `gorm:"column:ip_address"`
	UserAgent     *string    `gorm:"column:user_agent"`
	RequestID     *string    `gorm:"column:request_id"`
	OperationName *string    `gorm:"column:operation_name"`
	OperationType *string    `gorm:"column:operation_type"`
	Variables     *string    `gorm:"column:variables;type:jsonb"`
	Metadata      *string    `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
}

func (auditLogModel) TableName() string { return "audit_logs" }

type jobModel struct {
	JobID          uuid.UUID  `gorm:"column:job_id;type:uuid;primaryKey"`
	Kind           string     `gorm:"column:kind"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	RunAt          time.Time  `gorm:"column:run_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (jobModel) TableName() string { return "jobs" }
