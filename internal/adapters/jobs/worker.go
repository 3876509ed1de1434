package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/ports"
)

// Worker drains the durable job queue: email dispatch plus scheduled
// cleanup. Jobs are claimed in batches with a claim token, retried on
// failure, and moved to the dead letter state once the retry budget is
// spent. Enqueue is transactional with the operation that produced the job,
// so delivery work cannot be lost between process restarts.
type Worker struct {
	logger     *slog.Logger
	jobs       ports.JobRepository
	mailer     ports.Mailer
	resetURL   string
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

type WorkerConfig struct {
	// ResetURL is the base link embedded in password reset emails; the raw
	// token is appended as a query parameter.
	ResetURL   string
	Interval   time.Duration
	BatchSize  int
	ClaimTTL   time.Duration
	MaxRetries int
}

func NewWorker(logger *slog.Logger, jobs ports.JobRepository, mailer ports.Mailer, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		logger:     logger.With("module", "jobs.worker", "layer", "adapter"),
		jobs:       jobs,
		mailer:     mailer,
		resetURL:   cfg.ResetURL,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		claimTTL:   cfg.ClaimTTL,
		maxRetries: cfg.MaxRetries,
	}
}

// Run executes the periodic claim-and-dispatch loop until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "job iteration failed",
				"operation", "jobs_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.jobs.ClaimPending(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	done := 0
	failed := 0
	deadLettered := 0
	for _, rec := range records {
		if rec.RetryCount >= w.maxRetries {
			deadLettered++
			_ = w.jobs.MarkDeadLettered(ctx, rec.JobID, claimToken, "retry threshold reached before dispatch", now)
			continue
		}

		if err := w.dispatch(ctx, rec); err != nil {
			failed++
			retriesAfterFailure := rec.RetryCount + 1
			if retriesAfterFailure >= w.maxRetries {
				deadLettered++
				w.logger.ErrorContext(ctx, "job moved to dlq",
					"operation", "dispatch_job",
					"outcome", "failure",
					"job_id", rec.JobID,
					"kind", rec.Kind,
					"retry_count", retriesAfterFailure,
					"error", err,
				)
				_ = w.jobs.MarkDeadLettered(ctx, rec.JobID, claimToken, err.Error(), now)
				continue
			}

			backoff := retryBackoff(retriesAfterFailure)
			w.logger.WarnContext(ctx, "job dispatch failed; retry scheduled",
				"operation", "dispatch_job",
				"outcome", "failure",
				"job_id", rec.JobID,
				"kind", rec.Kind,
				"retry_count", retriesAfterFailure,
				"retry_in", backoff.String(),
				"error", err,
			)
			_ = w.jobs.MarkFailed(ctx, rec.JobID, claimToken, err.Error(), now.Add(backoff))
			continue
		}
		done++
		_ = w.jobs.MarkDone(ctx, rec.JobID, claimToken, now)
	}
	if len(records) > 0 {
		w.logger.InfoContext(ctx, "job batch processed",
			"operation", "jobs_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"done_count", done,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return nil
}

// retryBackoff doubles the retry delay per attempt, capped so a stuck job
// never waits more than fifteen minutes between tries.
func retryBackoff(retries int) time.Duration {
	const (
		base = 30 * time.Second
		max  = 15 * time.Minute
	)
	d := base
	for i := 1; i < retries; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

type emailPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Token  string `json:"token"`
}

func (w *Worker) dispatch(ctx context.Context, rec ports.JobRecord) error {
	switch rec.Kind {
	case "email.welcome":
		var p emailPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		name := p.Name
		if name == "" {
			name = p.Email
		}
		body := fmt.Sprintf("Hello %s,\n\nYour account is ready. You can sign in with this email address at any time.\n", name)
		return w.mailer.Send(ctx, p.Email, "Welcome", body)

	case "email.password_reset":
		var p emailPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		link := p.Token
		if w.resetURL != "" {
			link = w.resetURL + "?token=" + p.Token
		}
		body := fmt.Sprintf("A password reset was requested for this account.\n\nReset link: %s\n\nThe link expires in one hour. If you did not request this, ignore this email.\n", link)
		return w.mailer.Send(ctx, p.Email, "Password reset", body)

	default:
		return fmt.Errorf("unknown job kind %q", rec.Kind)
	}
}

// Sweeper periodically deletes sessions whose expiry has long passed.
// Revoked and expired sessions stay queryable for the retention window and
// only then leave the table.
type Sweeper struct {
	logger    *slog.Logger
	sessions  ports.SessionRepository
	interval  time.Duration
	retention time.Duration
}

func NewSweeper(logger *slog.Logger, sessions ports.SessionRepository, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		logger:    logger.With("module", "jobs.sweeper", "layer", "adapter"),
		sessions:  sessions,
		interval:  interval,
		retention: retention,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().UTC().Add(-s.retention)
		deleted, err := s.sessions.DeleteExpiredBefore(ctx, cutoff)
		if err != nil {
			s.logger.ErrorContext(ctx, "session sweep failed",
				"operation", "sweep_sessions",
				"outcome", "failure",
				"error", err,
			)
		} else if deleted > 0 {
			s.logger.InfoContext(ctx, "expired sessions removed",
				"operation", "sweep_sessions",
				"outcome", "success",
				"deleted_count", deleted,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
