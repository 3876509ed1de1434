package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/plateforge/auth-service/internal/application"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the auth service.
// It merges file defaults and environment overrides to support both local
// and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	JWTSecret  string
	BcryptCost int

	SessionTTL       time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	ResetTokenTTL    time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	ResetURL     string

	MaxDBConns       int32
	JobsPollInterval time.Duration
	JobsBatchSize    int
	JobsClaimTTL     time.Duration
	JobsMaxRetries   int
	SweepInterval    time.Duration
	SweepRetention   time.Duration

	// RateLimitOverrides are keyed by action or action_resource and replace
	// the built-in policy for that key.
	RateLimitOverrides map[string]application.RateLimitConfig
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	RateLimits map[string]string `yaml:"rate_limits"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific
// overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:        "auth-service",
		HTTPPort:         8080,
		GRPCPort:         9090,
		BcryptCost:       12,
		SessionTTL:       7 * 24 * time.Hour,
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
		ResetTokenTTL:    time.Hour,
		SMTPPort:         587,
		SMTPFrom:         "no-reply@localhost",
		MaxDBConns:       20,
		JobsPollInterval: 2 * time.Second,
		JobsBatchSize:    100,
		JobsClaimTTL:     30 * time.Second,
		JobsMaxRetries:   5,
		SweepInterval:    time.Hour,
		SweepRetention:   30 * 24 * time.Hour,
	}

	overrides := map[string]application.RateLimitConfig{}
	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.SMTP.Host != "" {
			cfg.SMTPHost = f.SMTP.Host
		}
		if f.SMTP.Port > 0 {
			cfg.SMTPPort = f.SMTP.Port
		}
		if f.SMTP.Username != "" {
			cfg.SMTPUsername = f.SMTP.Username
		}
		if f.SMTP.Password != "" {
			cfg.SMTPPassword = f.SMTP.Password
		}
		if f.SMTP.From != "" {
			cfg.SMTPFrom = f.SMTP.From
		}
		for key, spec := range f.RateLimits {
			if rl, parseErr := parseRateLimitSpec(spec); parseErr == nil {
				overrides[key] = rl
			}
		}
	}

	cfg.DatabaseURL = envOrDefault("DATABASE_URL", envOrDefault("DB_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.MaxLoginAttempts = envInt("MAX_LOGIN_ATTEMPTS", cfg.MaxLoginAttempts)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	if d, parseErr := parseExpiry(os.Getenv("JWT_EXPIRES_IN")); parseErr == nil && d > 0 {
		cfg.SessionTTL = d
	}
	cfg.LockoutDuration = time.Duration(envInt("LOCKOUT_DURATION_MS", int(cfg.LockoutDuration.Milliseconds()))) * time.Millisecond
	cfg.ResetTokenTTL = time.Duration(envInt("RESET_TOKEN_TTL_MINUTES", int(cfg.ResetTokenTTL.Minutes()))) * time.Minute

	cfg.SMTPHost = envOrDefault("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = envInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = envOrDefault("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envOrDefault("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = envOrDefault("SMTP_FROM", cfg.SMTPFrom)
	cfg.ResetURL = envOrDefault("PASSWORD_RESET_URL", cfg.ResetURL)

	cfg.JobsPollInterval = time.Duration(envInt("JOBS_POLL_SECONDS", int(cfg.JobsPollInterval.Seconds()))) * time.Second
	cfg.JobsBatchSize = envInt("JOBS_BATCH_SIZE", cfg.JobsBatchSize)
	cfg.JobsClaimTTL = time.Duration(envInt("JOBS_CLAIM_TTL_SECONDS", int(cfg.JobsClaimTTL.Seconds()))) * time.Second
	cfg.JobsMaxRetries = envInt("JOBS_MAX_RETRIES", cfg.JobsMaxRetries)
	cfg.SweepInterval = time.Duration(envInt("SESSION_SWEEP_MINUTES", int(cfg.SweepInterval.Minutes()))) * time.Minute
	cfg.SweepRetention = time.Duration(envInt("SESSION_RETENTION_DAYS", int(cfg.SweepRetention.Hours()/24))) * 24 * time.Hour

	// RATE_LIMIT_<ACTION>="max/window" overrides a single policy, e.g.
	// RATE_LIMIT_AI_GENERATE="20/1h".
	for _, entry := range os.Environ() {
		name, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(name, "RATE_LIMIT_") {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, "RATE_LIMIT_"))
		if rl, parseErr := parseRateLimitSpec(value); parseErr == nil {
			overrides[key] = rl
		}
	}
	cfg.RateLimitOverrides = overrides

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing JWT_SECRET")
	}

	return cfg, nil
}

// parseRateLimitSpec reads "max/window" policy strings such as "100/1h" or
// "5/15m".
func parseRateLimitSpec(raw string) (application.RateLimitConfig, error) {
	maxPart, windowPart, found := strings.Cut(strings.TrimSpace(raw), "/")
	if !found {
		return application.RateLimitConfig{}, fmt.Errorf("rate limit spec %q must be max/window", raw)
	}
	maxRequests, err := strconv.Atoi(strings.TrimSpace(maxPart))
	if err != nil || maxRequests <= 0 {
		return application.RateLimitConfig{}, fmt.Errorf("invalid rate limit max in %q", raw)
	}
	window, err := time.ParseDuration(strings.TrimSpace(windowPart))
	if err != nil || window <= 0 {
		return application.RateLimitConfig{}, fmt.Errorf("invalid rate limit window in %q", raw)
	}
	return application.RateLimitConfig{MaxRequests: maxRequests, Window: window}, nil
}

// parseExpiry reads durations that may carry a day suffix, e.g. "7d" or "24h".
func parseExpiry(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
