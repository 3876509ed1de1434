package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) Create(ctx context.Context, params ports.CreateUserParams) (domain.User, error) {
	rec := userModel{
		Email:         params.Email,
		Name:          params.Name,
		PasswordHash:  params.PasswordHash,
		Role:          params.Role,
		AuthProvider:  params.AuthProvider,
		EmailVerified: params.EmailVerified,
		IsActive:      true,
		CreatedAt:     params.CreatedAtUTC,
		UpdatedAt:     params.CreatedAtUTC,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrConflict
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

// List returns a page of accounts, newest first.
func (r *userRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	var recs []userModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomainUser(rec))
	}
	return out, nil
}

// Update applies a partial admin edit and returns the fresh row.
// Reactivating clears the deactivation stamp alongside the flag.
func (r *userRepository) Update(ctx context.Context, userID uuid.UUID, params ports.UserUpdateParams, now time.Time) (domain.User, error) {
	updates := map[string]any{"updated_at": now}
	if params.Name != nil {
		updates["name"] = *params.Name
	}
	if params.IsActive != nil {
		updates["is_active"] = *params.IsActive
		if *params.IsActive {
			updates["deactivated_at"] = nil
		} else {
			updates["deactivated_at"] = now
		}
	}
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return domain.User{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, userID)
}

// IncrementLoginAttempts bumps the failure counter in one round trip and
// returns the new value, so concurrent failed logins all observe distinct
// counts and exactly one of them crosses the lockout threshold.
func (r *userRepository) IncrementLoginAttempts(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var attempts int
	res := r.db.WithContext(ctx).Raw(
		`UPDATE users
		    SET login_attempts = login_attempts + 1, updated_at = ?
		  WHERE user_id = ?
		  RETURNING login_attempts`,
		now, userID,
	).Scan(&attempts)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, domain.ErrNotFound
	}
	return attempts, nil
}

func (r *userRepository) SetLockout(ctx context.Context, userID uuid.UUID, lockedUntil time.Time, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"locked_until": lockedUntil,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetLoginState clears failure accounting after a successful login.
func (r *userRepository) ResetLoginState(ctx context.Context, userID uuid.UUID, loginAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"login_attempts": 0,
			"locked_until":   nil,
			"last_login_at":  loginAt,
			"updated_at":     loginAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"password_hash":  passwordHash,
			"login_attempts": 0,
			"locked_until":   nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepository) SetPasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"reset_token_hash":       tokenHash,
			"reset_token_expires_at": expiresAt,
			"updated_at":             now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumePasswordResetToken resolves and clears a live reset token in one
// transaction. The row lock makes the token single-use under concurrent
// redemption attempts.
func (r *userRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	var rec userModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reset_token_hash = ?", tokenHash).
			Where("reset_token_expires_at > ?", now).
			Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		return tx.Model(&userModel{}).
			Where("user_id = ?", rec.UserID).
			Updates(map[string]any{
				"reset_token_hash":       nil,
				"reset_token_expires_at": nil,
				"updated_at":             now,
			}).Error
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.UserID, nil
}

func (r *userRepository) Deactivate(ctx context.Context, userID uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"is_active":      false,
			"deactivated_at": now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
