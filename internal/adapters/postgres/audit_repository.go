package postgres

import (
	"context"

	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
	"gorm.io/gorm"
)

type auditLogRepository struct {
	db *gorm.DB
}

func (r *auditLogRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	rec := toAuditLogModel(entry)
	return r.db.WithContext(ctx).Create(&rec).Error
}

// Count serves the rate limiter's fixed-window checks. The filter matches
// the composite (user_id, action, created_at) index; the optional resource
// narrows within it.
func (r *auditLogRepository) Count(ctx context.Context, filter ports.AuditCountFilter) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&auditLogModel{}).
		Where("user_id = ?", filter.UserID).
		Where("action = ?", string(filter.Action)).
		Where("created_at >= ?", filter.Since)
	if filter.Resource != "" {
		query = query.Where("resource = ?", filter.Resource)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *auditLogRepository) List(ctx context.Context, q ports.AuditQuery) ([]domain.AuditEntry, error) {
	query := r.db.WithContext(ctx).Model(&auditLogModel{})
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.Action != "" {
		query = query.Where("action = ?", string(q.Action))
	}
	if q.Since != nil {
		query = query.Where("created_at >= ?", *q.Since)
	}
	if q.Until != nil {
		query = query.Where("created_at < ?", *q.Until)
	}

	var rows []auditLogModel
	if err := query.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainAuditEntry(row))
	}
	return result, nil
}
