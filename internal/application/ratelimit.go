package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
)

// RateLimitConfig is one fixed-window policy: at most MaxRequests occurrences
// of an action per Window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// defaultRateLimits are the built-in policies, keyed by action or by
// "action_resource" for resource-specific overrides.
var defaultRateLimits = map[string]RateLimitConfig{
	"ai_generate":      {MaxRequests: 10, Window: time.Hour},
	"ai_process":       {MaxRequests: 50, Window: time.Hour},
	"graphql_query":    {MaxRequests: 1000, Window: time.Hour},
	"graphql_mutation": {MaxRequests: 100, Window: time.Hour},
	"auth_login":       {MaxRequests: 5, Window: 15 * time.Minute},
}

// fallbackRateLimit applies when neither the action nor the action_resource
// pair has a configured policy.
var fallbackRateLimit = RateLimitConfig{MaxRequests: 100, Window: time.Hour}

// RateLimitResult is the outcome of one admission check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// UsageStat reports a user's standing against one configured policy.
type UsageStat struct {
	Action    string    `json:"action"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// RateLimiter enforces per-user fixed windows by counting audit trail rows.
// The audit trail is the source of truth: no separate counter state exists,
// so limits and the security log can never disagree about what happened.
type RateLimiter struct {
	audit   ports.AuditLogRepository
	logger  *slog.Logger
	configs map[string]RateLimitConfig
	nowFn   func() time.Time
}

// NewRateLimiter builds a limiter with the default policies merged with
// overrides. Override keys use the same action / action_resource scheme.
func NewRateLimiter(audit ports.AuditLogRepository, logger *slog.Logger, overrides map[string]RateLimitConfig) *RateLimiter {
	configs := make(map[string]RateLimitConfig, len(defaultRateLimits)+len(overrides))
	for k, v := range defaultRateLimits {
		configs[k] = v
	}
	for k, v := range overrides {
		if v.MaxRequests > 0 && v.Window > 0 {
			configs[k] = v
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		audit:   audit,
		logger:  logger.With("module", "application", "layer", "ratelimit"),
		configs: configs,
		nowFn:   time.Now().UTC,
	}
}

// resolveConfig picks the policy for an action, preferring the
// resource-qualified key over the bare action, then the fallback.
func (rl *RateLimiter) resolveConfig(action, resource string) RateLimitConfig {
	if resource != "" {
		if cfg, ok := rl.configs[action+"_"+resource]; ok {
			return cfg
		}
	}
	if cfg, ok := rl.configs[action]; ok {
		return cfg
	}
	return fallbackRateLimit
}

// Check admits or denies one occurrence of action for the user.
// Storage errors fail open: an unavailable audit store must not take the
// product down with it. Denials are themselves audited, which is safe from
// feedback because denial rows use a distinct action.
func (rl *RateLimiter) Check(ctx context.Context, userID uuid.UUID, action domain.AuditAction, resource string, rc RequestContext) RateLimitResult {
	cfg := rl.resolveConfig(string(action), resource)
	now := rl.nowFn()
	resetTime := now.Add(cfg.Window)

	count, err := rl.audit.Count(ctx, ports.AuditCountFilter{
		UserID:   userID,
		Action:   action,
		Resource: resource,
		Since:    now.Add(-cfg.Window),
	})
	if err != nil {
		rl.logger.WarnContext(ctx, "rate limit count failed, allowing request",
			"operation", "rate_limit_check",
			"outcome", "degraded",
			"action", action,
			"error", err,
		)
		return RateLimitResult{Allowed: true, Limit: cfg.MaxRequests, Remaining: cfg.MaxRequests, ResetTime: resetTime}
	}

	remaining := cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	result := RateLimitResult{
		Allowed:   int(count) < cfg.MaxRequests,
		Limit:     cfg.MaxRequests,
		Remaining: remaining,
		ResetTime: resetTime,
	}
	if !result.Allowed {
		rl.recordDenial(ctx, userID, action, resource, int(count), cfg, rc)
	}
	return result
}

func (rl *RateLimiter) recordDenial(ctx context.Context, userID uuid.UUID, action domain.AuditAction, resource string, current int, cfg RateLimitConfig, rc RequestContext) {
	deniedResource := resource
	if deniedResource == "" {
		deniedResource = string(action)
	}
	id := userID
	entry := domain.AuditEntry{
		ID:        uuid.New(),
		UserID:    &id,
		Action:    domain.ActionRateLimitExceeded,
		Resource:  deniedResource,
		Status:    domain.AuditFailure,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
		Metadata: map[string]any{
			"current_count": current,
			"limit":         cfg.MaxRequests,
			"window_ms":     cfg.Window.Milliseconds(),
		},
		CreatedAt: rl.nowFn(),
	}
	if err := rl.audit.Insert(ctx, entry); err != nil {
		rl.logger.WarnContext(ctx, "rate limit denial audit failed",
			"operation", "rate_limit_check",
			"outcome", "failure",
			"action", action,
			"error", err,
		)
	}
}

// UsageStats reports the user's standing against every built-in policy.
func (rl *RateLimiter) UsageStats(ctx context.Context, userID uuid.UUID) ([]UsageStat, error) {
	now := rl.nowFn()
	stats := make([]UsageStat, 0, len(defaultRateLimits))
	for _, action := range []string{"ai_generate", "ai_process", "graphql_query", "graphql_mutation", "auth_login"} {
		cfg := rl.configs[action]
		count, err := rl.audit.Count(ctx, ports.AuditCountFilter{
			UserID: userID,
			Action: domain.AuditAction(action),
			Since:  now.Add(-cfg.Window),
		})
		if err != nil {
			return nil, err
		}
		remaining := cfg.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		stats = append(stats, UsageStat{
			Action:    action,
			Limit:     cfg.MaxRequests,
			Used:      int(count),
			Remaining: remaining,
			ResetTime: now.Add(cfg.Window),
		})
	}
	return stats, nil
}

// ResetLimits records an administrative reset marker for the user. The trail
// is append-only, so nothing is deleted; counting windows simply roll past
// the old entries while the marker documents who intervened and when.
func (rl *RateLimiter) ResetLimits(ctx context.Context, userID uuid.UUID, adminID uuid.UUID, rc RequestContext) error {
	id := userID
	return rl.audit.Insert(ctx, domain.AuditEntry{
		ID:        uuid.New(),
		UserID:    &id,
		Action:    domain.ActionRateLimitReset,
		Resource:  "rate_limit",
		Status:    domain.AuditSuccess,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		RequestID: rc.RequestID,
		Metadata:  map[string]any{"reset_by": adminID.String()},
		CreatedAt: rl.nowFn(),
	})
}
