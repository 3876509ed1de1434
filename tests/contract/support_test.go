package contract

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/plateforge/auth-service/internal/adapters/cache"
	"github.com/plateforge/auth-service/internal/adapters/security"
	"github.com/plateforge/auth-service/internal/application"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
)

// newContractFixture wires the application service against real token and
// revocation adapters (HS256 signer, miniredis denylist) with in-memory
// persistence, so contract tests exercise the same token path production runs.
func newContractFixture(t *testing.T) *contractFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	signer, err := security.NewJWTSigner(strings.Repeat("contract-secret-", 2))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	users := &contractUsers{byEmail: map[string]domain.User{}, byID: map[uuid.UUID]domain.User{}}
	sessions := &contractSessions{byID: map[uuid.UUID]domain.Session{}, byToken: map[string]uuid.UUID{}}
	audit := &contractAudit{}

	svc := application.NewService(application.Dependencies{
		Users:       users,
		Sessions:    sessions,
		Audit:       audit,
		Jobs:        noopJobs{},
		Revocations: cache.NewRedisSessionRevocationStore(client),
		Hasher:      contractHasher{},
		TokenSigner: signer,
		OAuth:       noopOAuth{},
	})

	return &contractFixture{
		service: svc,
		limiter: application.NewRateLimiter(audit, nil, nil),
		users:   users,
		audit:   audit,
	}
}

type contractFixture struct {
	service *application.Service
	limiter *application.RateLimiter
	users   *contractUsers
	audit   *contractAudit
}

func testContext() application.RequestContext {
	return application.RequestContext{IPAddress: "127.0.0.1", UserAgent: "contract-test"}
}

// registerUser creates an account and returns its auth response.
func (f *contractFixture) registerUser(t *testing.T, email string) application.AuthResponse {
	t.Helper()
	res, err := f.service.Register(context.Background(), application.RegisterRequest{
		Email:    email,
		Password: "Secret123!",
	}, application.RequestContext{IPAddress: "127.0.0.1", UserAgent: "contract-test"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

type contractUsers struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
	byID    map[uuid.UUID]domain.User
}

func (c *contractUsers) setRole(userID uuid.UUID, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.byID[userID]
	u.Role = role
	c.byID[userID] = u
	c.byEmail[u.Email] = u
}

func (c *contractUsers) Create(_ context.Context, params ports.CreateUserParams) (domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byEmail[params.Email]; ok {
		return domain.User{}, domain.ErrConflict
	}
	u := domain.User{
		ID:            uuid.New(),
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
	c.byEmail[u.Email] = u
	c.byID[u.ID] = u
	return u, nil
}

func (c *contractUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (c *contractUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (c *contractUsers) List(_ context.Context, limit, offset int) ([]domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]domain.User, 0, len(c.byID))
	for _, u := range c.byID {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Email < all[j].Email
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]domain.User{}, all[offset:end]...), nil
}

func (c *contractUsers) Update(_ context.Context, userID uuid.UUID, params ports.UserUpdateParams, now time.Time) (domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	if params.Name != nil {
		u.Name = *params.Name
	}
	if params.IsActive != nil {
		u.IsActive = *params.IsActive
	}
	u.UpdatedAt = now
	c.byID[u.ID] = u
	c.byEmail[u.Email] = u
	return u, nil
}

func (c *contractUsers) IncrementLoginAttempts(_ context.Context, userID uuid.UUID, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byID[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	u.LoginAttempts++
	u.UpdatedAt = now
	c.byID[userID] = u
	c.byEmail[u.Email] = u
	return u.LoginAttempts, nil
}

func (c *contractUsers) SetLockout(_ context.Context, userID uuid.UUID, lockedUntil, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.LockedUntil = &lockedUntil
	u.UpdatedAt = now
	c.byID[userID] = u
	c.byEmail[u.Email] = u
	return nil
}

func (c *contractUsers) ResetLoginState(_ context.Context, userID uuid.UUID, loginAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &loginAt
	c.byID[userID] = u
	c.byEmail[u.Email] = u
	return nil
}

func (c *contractUsers) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = now
	c.byID[userID] = u
	c.byEmail[u.Email] = u
	return nil
}

func (c *contractUsers) SetPasswordResetToken(context.Context, uuid.UUID, string, time.Time, time.Time) error {
	return nil
}

func (c *contractUsers) ConsumePasswordResetToken(context.Context, string, time.Time) (uuid.UUID, error) {
	return uuid.Nil, domain.ErrNotFound
}

func (c *contractUsers) Deactivate(_ context.Context, userID uuid.UUID, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsActive = false
	u.UpdatedAt = now
	c.byID[userID] = u
	c.byEmail[u.Email] = u
	return nil
}

type contractSessions struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]domain.Session
	byToken map[string]uuid.UUID
}

func (c *contractSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := domain.Session{
		ID:        params.SessionID,
		UserID:    params.UserID,
		Token:     params.Token,
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		IsActive:  true,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: params.CreatedAt,
	}
	c.byID[s.ID] = s
	c.byToken[s.Token] = s.ID
	return s, nil
}

func (c *contractSessions) GetByToken(_ context.Context, token string) (domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byToken[token]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return c.byID[id], nil
}

func (c *contractSessions) GetByID(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *contractSessions) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Session
	for _, s := range c.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *contractSessions) RevokeByID(_ context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.IsActive = false
	s.RevokedAt = &revokedAt
	c.byID[sessionID] = s
	return nil
}

func (c *contractSessions) RevokeByToken(_ context.Context, token string, revokedAt time.Time) error {
	c.mu.Lock()
	id, ok := c.byToken[token]
	c.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	return c.RevokeByID(context.Background(), id, revokedAt)
}

func (c *contractSessions) RevokeAllByUser(_ context.Context, userID uuid.UUID, revokedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.byID {
		if s.UserID == userID {
			s.IsActive = false
			s.RevokedAt = &revokedAt
			c.byID[id] = s
		}
	}
	return nil
}

func (c *contractSessions) DeleteExpiredBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type contractAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (c *contractAudit) Insert(_ context.Context, entry domain.AuditEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

func (c *contractAudit) Count(_ context.Context, filter ports.AuditCountFilter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, e := range c.entries {
		if e.UserID == nil || *e.UserID != filter.UserID {
			continue
		}
		if e.Action != filter.Action {
			continue
		}
		if filter.Resource != "" && e.Resource != filter.Resource {
			continue
		}
		if e.CreatedAt.Before(filter.Since) {
			continue
		}
		n++
	}
	return n, nil
}

func (c *contractAudit) List(_ context.Context, query ports.AuditQuery) ([]domain.AuditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range c.entries {
		if query.UserID != nil && (e.UserID == nil || *e.UserID != *query.UserID) {
			continue
		}
		if query.Action != "" && e.Action != query.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type noopJobs struct{}

func (noopJobs) Enqueue(context.Context, ports.Job) error { return nil }
func (noopJobs) ClaimPending(context.Context, int, string, time.Time) ([]ports.JobRecord, error) {
	return nil, nil
}
func (noopJobs) MarkDone(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (noopJobs) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (noopJobs) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type contractHasher struct{}

func (contractHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (contractHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type noopOAuth struct{}

func (noopOAuth) Exchange(context.Context, string, string) (ports.OAuthIdentity, error) {
	return ports.OAuthIdentity{}, errors.New("oauth not configured")
}
