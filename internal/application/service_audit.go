package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
)

const (
	auditDefaultPageSize = 50
	auditMaxPageSize     = 200
)

// RecordAudit appends an externally produced audit entry, for callers such
// as the gateway middleware that audit operations outside this service.
// It shares the fire-and-forget contract of internal auditing.
func (s *Service) RecordAudit(ctx context.Context, entry domain.AuditEntry) {
	s.recordAudit(ctx, entry)
}

// ListAuditLogs returns a page of the audit trail, newest first.
// Intended for admin surfaces; authorization happens at the transport layer.
func (s *Service) ListAuditLogs(ctx context.Context, q AuditLogQuery) ([]AuditLogItem, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = auditDefaultPageSize
	}
	if limit > auditMaxPageSize {
		limit = auditMaxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	query := ports.AuditQuery{
		Action: domain.AuditAction(q.Action),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if q.UserID != uuid.Nil {
		id := q.UserID
		query.UserID = &id
	}
	if q.Days > 0 {
		since := s.nowFn().Add(-time.Duration(q.Days) * 24 * time.Hour)
		query.Since = &since
	}

	entries, err := s.audit.List(ctx, query)
	if err != nil {
		return nil, err
	}
	items := make([]AuditLogItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, toAuditLogItem(e))
	}
	return items, nil
}
