package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the closed set of security-relevant event kinds.
// Keeping it a typed constant set keeps rate-limit config lookups and
// audit queries statically checkable instead of open string dispatch.
type AuditAction string

const (
	ActionLogin          AuditAction = "login"
	ActionLogout         AuditAction = "logout"
	ActionRegister       AuditAction = "register"
	ActionPasswordReset  AuditAction = "password_reset"
	ActionPasswordChange AuditAction = "password_change"

	ActionGraphQLQuery        AuditAction = "graphql_query"
	ActionGraphQLMutation     AuditAction = "graphql_mutation"
	ActionGraphQLSubscription AuditAction = "graphql_subscription"

	ActionUserCreate     AuditAction = "user_create"
	ActionUserUpdate     AuditAction = "user_update"
	ActionUserDelete     AuditAction = "user_delete"
	ActionUserActivate   AuditAction = "user_activate"
	ActionUserDeactivate AuditAction = "user_deactivate"
	ActionUserRead       AuditAction = "user_read"

	ActionAIGenerate AuditAction = "ai_generate"
	ActionAIProcess  AuditAction = "ai_process"
	ActionWorkerJob  AuditAction = "worker_job"

	ActionRateLimitExceeded AuditAction = "rate_limit_exceeded"
	ActionRateLimitReset    AuditAction = "rate_limit_reset"

	ActionSystemError   AuditAction = "system_error"
	ActionSystemWarning AuditAction = "system_warning"
	ActionSystemInfo    AuditAction = "system_info"

	ActionCustom AuditAction = "custom"
)

// AuditStatus is the outcome recorded with an audit entry.
type AuditStatus string

const (
	AuditSuccess   AuditStatus = "success"
	AuditFailure   AuditStatus = "failure"
	AuditPending   AuditStatus = "pending"
	AuditCancelled AuditStatus = "cancelled"
)

// AuditEntry is one immutable row of the security audit trail.
// UserID is nullable so unauthenticated events still log, and audit history
// survives user removal (the reference is set to null, never cascaded).
type AuditEntry struct {
	ID            uuid.UUID
	UserID        *uuid.UUID
	UserEmail     string
	UserRole      string
	Action        AuditAction
	Resource      string
	ResourceID    string
	Status        AuditStatus
	DurationMs    *int
	ErrorMessage  string
	IPAddress     string
	UserAgent     string
	RequestID     string
	OperationName string
	OperationType string
	Variables     map[string]any
	Metadata      map[string]any
	CreatedAt     time.Time
}
