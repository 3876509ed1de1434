package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type jobRepository struct {
	db *gorm.DB
}

func (r *jobRepository) Enqueue(ctx context.Context, job ports.Job) error {
	rec := jobModel{
		JobID:     job.JobID,
		Kind:      job.Kind,
		Payload:   string(job.Payload),
		RunAt:     job.RunAt,
		CreatedAt: job.EnqueuedAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// ClaimPending stamps a batch of due jobs with the worker's claim token and
// returns them. SKIP LOCKED keeps concurrent workers from contending on the
// same rows; a stale claim (claim_until in the past) is reclaimable, which
// recovers jobs from a worker that died mid-batch.
func (r *jobRepository) ClaimPending(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.JobRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	now := time.Now().UTC()
	var rows []jobModel
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subquery := tx.Model(&jobModel{}).
			Select("job_id").
			Where("completed_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Where("run_at <= ?", now).
			Where("claim_until IS NULL OR claim_until < ?", now).
			Order("run_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&jobModel{}).
			Where("job_id IN (?)", subquery).
			Updates(map[string]any{
				"claim_token": claimToken,
				"claim_until": claimUntil,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ?", claimToken).
			Where("completed_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Order("run_at ASC").
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}

	result := make([]ports.JobRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, ports.JobRecord{
			JobID:          row.JobID,
			Kind:           row.Kind,
			Payload:        []byte(row.Payload),
			RetryCount:     row.RetryCount,
			LastError:      row.LastError,
			RunAt:          row.RunAt,
			CreatedAt:      row.CreatedAt,
			CompletedAt:    row.CompletedAt,
			LastErrorAt:    row.LastErrorAt,
			ClaimToken:     row.ClaimToken,
			ClaimUntil:     row.ClaimUntil,
			DeadLetteredAt: row.DeadLetteredAt,
		})
	}
	return result, nil
}

func (r *jobRepository) MarkDone(ctx context.Context, jobID uuid.UUID, claimToken string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("job_id = ?", jobID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"completed_at": at,
			"claim_token":  nil,
			"claim_until":  nil,
		}).Error
}

// MarkFailed releases the claim and pushes run_at to retryAt, so a failed
// job waits out its backoff instead of reappearing on the next poll tick.
func (r *jobRepository) MarkFailed(ctx context.Context, jobID uuid.UUID, claimToken, errMsg string, retryAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("job_id = ?", jobID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    errMsg,
			"last_error_at": time.Now().UTC(),
			"run_at":        retryAt,
			"claim_token":   nil,
			"claim_until":   nil,
		}).Error
}

func (r *jobRepository) MarkDeadLettered(ctx context.Context, jobID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("job_id = ?", jobID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":      gorm.Expr("retry_count + 1"),
			"last_error":       errMsg,
			"last_error_at":    at,
			"dead_lettered_at": at,
			"claim_token":      nil,
			"claim_until":      nil,
		}).Error
}
