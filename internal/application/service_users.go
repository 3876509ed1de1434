package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
)

const (
	userDefaultPageSize = 20
	userMaxPageSize     = 100
)

// UpdateUserRequest carries the admin-editable fields. Nil means unchanged.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

// ListUsers returns a page of accounts, newest first.
// Intended for admin surfaces; authorization happens at the transport layer.
func (s *Service) ListUsers(ctx context.Context, page, limit int) ([]UserProfile, error) {
	if limit <= 0 {
		limit = userDefaultPageSize
	}
	if limit > userMaxPageSize {
		limit = userMaxPageSize
	}
	if page < 1 {
		page = 1
	}

	users, err := s.users.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	items := make([]UserProfile, 0, len(users))
	for _, u := range users {
		items = append(items, toUserProfile(u))
	}
	return items, nil
}

// GetUser returns one account by id.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (UserProfile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	return toUserProfile(u), nil
}

// UpdateUser applies an admin edit to a user's name or active flag and audits
// the change under the acting admin. Deactivation takes effect on the target's
// next token check: validation refuses inactive users, so open sessions stop
// working without being revoked here.
func (s *Service) UpdateUser(ctx context.Context, userID uuid.UUID, req UpdateUserRequest, adminID uuid.UUID, rc RequestContext) (UserProfile, error) {
	params := ports.UserUpdateParams{IsActive: req.IsActive}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return UserProfile{}, fmt.Errorf("%w: name must not be empty", domain.ErrInvalidInput)
		}
		params.Name = &name
	}
	if params.Name == nil && params.IsActive == nil {
		return UserProfile{}, fmt.Errorf("%w: no fields to update", domain.ErrInvalidInput)
	}

	updated, err := s.users.Update(ctx, userID, params, s.nowFn())
	if err != nil {
		return UserProfile{}, err
	}

	changed := map[string]any{}
	if params.Name != nil {
		changed["name"] = *params.Name
	}
	if params.IsActive != nil {
		changed["is_active"] = *params.IsActive
	}
	actor := adminID
	s.recordAudit(ctx, domain.AuditEntry{
		UserID:     &actor,
		Action:     domain.ActionUserUpdate,
		Resource:   "user",
		ResourceID: userID.String(),
		Status:     domain.AuditSuccess,
		IPAddress:  rc.IPAddress,
		UserAgent:  rc.UserAgent,
		RequestID:  rc.RequestID,
		Metadata:   changed,
	})
	return toUserProfile(updated), nil
}
