package postgres

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/plateforge/auth-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainUser(row userModel) domain.User {
	return domain.User{
		ID:            row.UserID,
		Email:         row.Email,
		Name:          row.Name,
		PasswordHash:  row.PasswordHash,
		Role:          row.Role,
		AuthProvider:  row.AuthProvider,
		EmailVerified: row.EmailVerified,
		IsActive:      row.IsActive,
		LoginAttempts: row.LoginAttempts,
		LockedUntil:   row.LockedUntil,
		LastLoginAt:   row.LastLoginAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.Session{
		ID:        row.SessionID,
		UserID:    row.UserID,
		Token:     row.Token,
		IPAddress: ip,
		UserAgent: row.UserAgent,
		IsActive:  row.IsActive,
		ExpiresAt: row.ExpiresAt,
		RevokedAt: row.RevokedAt,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toAuditLogModel(e domain.AuditEntry) auditLogModel {
	return auditLogModel{
		ID:            e.ID,
		UserID:        e.UserID,
		UserEmail:     nullableString(e.UserEmail),
		UserRole:      nullableString(e.UserRole),
		Action:        string(e.Action),
		Resource:      nullableString(e.Resource),
		ResourceID:    nullableString(e.ResourceID),
		Status:        string(e.Status),
		DurationMs:    e.DurationMs,
		ErrorMessage:  nullableString(e.ErrorMessage),
		IPAddress:     nullableString(e.IPAddress),
		UserAgent:     nullableString(e.UserAgent),
		RequestID:     nullableString(e.RequestID),
		OperationName: nullableString(e.OperationName),
		OperationType: nullableString(e.OperationType),
		Variables:     marshalJSONB(e.Variables),
		Metadata:      marshalJSONB(e.Metadata),
		CreatedAt:     e.CreatedAt,
	}
}

func toDomainAuditEntry(row auditLogModel) domain.AuditEntry {
	return domain.AuditEntry{
		ID:            row.ID,
		UserID:        row.UserID,
		UserEmail:     stringOrEmpty(row.UserEmail),
		UserRole:      stringOrEmpty(row.UserRole),
		Action:        domain.AuditAction(row.Action),
		Resource:      stringOrEmpty(row.Resource),
		ResourceID:    stringOrEmpty(row.ResourceID),
		Status:        domain.AuditStatus(row.Status),
		DurationMs:    row.DurationMs,
		ErrorMessage:  stringOrEmpty(row.ErrorMessage),
		IPAddress:     stringOrEmpty(row.IPAddress),
		UserAgent:     stringOrEmpty(row.UserAgent),
		RequestID:     stringOrEmpty(row.RequestID),
		OperationName: stringOrEmpty(row.OperationName),
		OperationType: stringOrEmpty(row.OperationType),
		Variables:     unmarshalJSONB(row.Variables),
		Metadata:      unmarshalJSONB(row.Metadata),
		CreatedAt:     row.CreatedAt,
	}
}

func marshalJSONB(m map[string]any) *string {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

func unmarshalJSONB(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*raw), &m); err != nil {
		return nil
	}
	return m
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
