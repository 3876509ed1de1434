package application

import (
	"log/slog"
	"time"

	"github.com/plateforge/auth-service/internal/ports"
)

// Config carries the policy knobs for the auth service.
type Config struct {
	DefaultRole      string
	SessionTTL       time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	ResetTokenTTL    time.Duration
}

type Service struct {
	cfg         Config
	logger      *slog.Logger
	users       ports.UserRepository
	sessions    ports.SessionRepository
	audit       ports.AuditLogRepository
	jobs        ports.JobRepository
	revocations ports.SessionRevocationStore
	hasher      ports.PasswordHasher
	tokenSigner ports.TokenSigner
	oauth       ports.OAuthVerifier
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Logger      *slog.Logger
	Users       ports.UserRepository
	Sessions    ports.SessionRepository
	Audit       ports.AuditLogRepository
	Jobs        ports.JobRepository
	Revocations ports.SessionRevocationStore
	Hasher      ports.PasswordHasher
	TokenSigner ports.TokenSigner
	OAuth       ports.OAuthVerifier
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "user"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:         cfg,
		logger:      logger.With("module", "application", "layer", "service"),
		users:       deps.Users,
		sessions:    deps.Sessions,
		audit:       deps.Audit,
		jobs:        deps.Jobs,
		revocations: deps.Revocations,
		hasher:      deps.Hasher,
		tokenSigner: deps.TokenSigner,
		oauth:       deps.OAuth,
		nowFn:       time.Now().UTC,
	}
}
