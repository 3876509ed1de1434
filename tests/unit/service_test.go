package unit

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plateforge/auth-service/internal/application"
	"github.com/plateforge/auth-service/internal/domain"
	"github.com/plateforge/auth-service/internal/ports"
)

func TestRegisterLoginLogout(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	registerRes, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "user@example.com",
		Password: "Secret123!",
		Name:     "Test User",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if registerRes.Token == "" {
		t.Fatalf("register should issue a session token")
	}
	if registerRes.User.ID == uuid.Nil {
		t.Fatalf("register returned empty user id")
	}

	loginRes, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "user@example.com",
		Password: "Secret123!",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("login token should not be empty")
	}

	if user := f.service.ValidateToken(ctx, loginRes.Token); user == nil {
		t.Fatalf("expected valid token to resolve a user")
	}

	if err := f.service.Logout(ctx, loginRes.Token, testRequestContext()); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if user := f.service.ValidateToken(ctx, loginRes.Token); user != nil {
		t.Fatalf("expected nil user after logout")
	}
	// Logout is idempotent: replaying the same token still succeeds.
	if err := f.service.Logout(ctx, loginRes.Token, testRequestContext()); err != nil {
		t.Fatalf("second logout should succeed: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	req := application.RegisterRequest{Email: "dup@example.com", Password: "Secret123!"}
	if _, err := f.service.Register(ctx, req, testRequestContext()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := f.service.Register(ctx, req, testRequestContext()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate email, got %v", err)
	}
}

func TestRegisterEnqueuesWelcomeEmail(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "welcome@example.com",
		Password: "Secret123!",
		Name:     "Welcome",
	}, testRequestContext()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	job := f.jobs.lastOfKind("email.welcome")
	if job == nil {
		t.Fatalf("expected welcome email job to be enqueued")
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("invalid welcome payload: %v", err)
	}
	if payload.Email != "welcome@example.com" {
		t.Fatalf("welcome email addressed to %q", payload.Email)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "known@example.com",
		Password: "Secret123!",
	}, testRequestContext()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, unknownErr := f.service.Login(ctx, application.LoginRequest{
		Email:    "nobody@example.com",
		Password: "Secret123!",
	}, testRequestContext())
	_, wrongErr := f.service.Login(ctx, application.LoginRequest{
		Email:    "known@example.com",
		Password: "WrongPass1",
	}, testRequestContext())

	if !errors.Is(unknownErr, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongErr)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "lockme@example.com",
		Password: "Secret123!",
	}, testRequestContext()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := f.service.Login(ctx, application.LoginRequest{
			Email:    "lockme@example.com",
			Password: "WrongPass1",
		}, testRequestContext()); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Once locked, even the correct password is refused.
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "lockme@example.com",
		Password: "Secret123!",
	}, testRequestContext()); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "counter@example.com",
		Password: "Secret123!",
	}, testRequestContext()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := f.service.Login(ctx, application.LoginRequest{
			Email:    "counter@example.com",
			Password: "WrongPass1",
		}, testRequestContext()); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("failed attempt %d: got %v", i+1, err)
		}
	}
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "counter@example.com",
		Password: "Secret123!",
	}, testRequestContext()); err != nil {
		t.Fatalf("correct login after failures should succeed: %v", err)
	}

	user, err := f.users.GetByEmail(ctx, "counter@example.com")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.LoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", user.LoginAttempts)
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last_login_at to be set")
	}
}

func TestValidateTokenRejections(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if user := f.service.ValidateToken(ctx, "not-a-token"); user != nil {
		t.Fatalf("garbage token should resolve to nil")
	}

	res, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "validate@example.com",
		Password: "Secret123!",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := f.service.LogoutAll(ctx, res.Token, testRequestContext()); err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	if user := f.service.ValidateToken(ctx, res.Token); user != nil {
		t.Fatalf("token should be nil after logout all")
	}
}

func TestValidateTokenNilForDeactivatedUser(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	res, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "deactivate@example.com",
		Password: "Secret123!",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := f.service.DeactivateAccount(ctx, res.Token, testRequestContext()); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if user := f.service.ValidateToken(ctx, res.Token); user != nil {
		t.Fatalf("deactivated user should not validate")
	}
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "deactivate@example.com",
		Password: "Secret123!",
	}, testRequestContext()); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("deactivated login should fail as invalid credentials, got %v", err)
	}
}

func TestRevokeSessionOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	alice, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "alice@example.com",
		Password: "Secret123!",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("register alice failed: %v", err)
	}
	bob, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "bob@example.com",
		Password: "Secret123!",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("register bob failed: %v", err)
	}

	bobSessions, err := f.service.ListSessions(ctx, bob.Token)
	if err != nil || len(bobSessions) == 0 {
		t.Fatalf("list bob sessions: %v", err)
	}

	if err := f.service.RevokeSession(ctx, alice.Token, bobSessions[0].SessionID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized revoking another user's session, got %v", err)
	}
	if err := f.service.RevokeSession(ctx, bob.Token, bobSessions[0].SessionID); err != nil {
		t.Fatalf("owner revoke failed: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	res, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "reset@example.com",
		Password: "Secret123!",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := f.service.RequestPasswordReset(ctx, "reset@example.com", testRequestContext()); err != nil {
		t.Fatalf("request reset failed: %v", err)
	}
	job := f.jobs.lastOfKind("email.password_reset")
	if job == nil {
		t.Fatalf("expected reset email job")
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.Token == "" {
		t.Fatalf("expected raw reset token in job payload, err=%v", err)
	}

	if err := f.service.ResetPassword(ctx, application.PasswordResetRequest{
		Token:       payload.Token,
		NewPassword: "NewSecret456",
	}, testRequestContext()); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}

	// All sessions drop with the old credential.
	if user := f.service.ValidateToken(ctx, res.Token); user != nil {
		t.Fatalf("expected sessions revoked after password reset")
	}
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "reset@example.com",
		Password: "Secret123!",
	}, testRequestContext()); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "reset@example.com",
		Password: "NewSecret456",
	}, testRequestContext()); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}

	// The token is single-use.
	if err := f.service.ResetPassword(ctx, application.PasswordResetRequest{
		Token:       payload.Token,
		NewPassword: "AnotherPass7",
	}, testRequestContext()); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired on token replay, got %v", err)
	}
}

func TestPasswordResetRequestUnknownEmailIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if err := f.service.RequestPasswordReset(ctx, "ghost@example.com", testRequestContext()); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if job := f.jobs.lastOfKind("email.password_reset"); job != nil {
		t.Fatalf("no reset email should be queued for unknown addresses")
	}
}

func TestOAuthLoginFindsOrCreatesUser(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	res, err := f.service.LoginWithOAuth(ctx, application.OAuthLoginRequest{
		Provider: "google",
		Code:     "code-ok",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("oauth login failed: %v", err)
	}
	if res.User.Email != "oauth@example.com" {
		t.Fatalf("expected provisioned oauth user, got %q", res.User.Email)
	}

	again, err := f.service.LoginWithOAuth(ctx, application.OAuthLoginRequest{
		Provider: "google",
		Code:     "code-ok",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("second oauth login failed: %v", err)
	}
	if again.User.ID != res.User.ID {
		t.Fatalf("oauth login should reuse the existing account")
	}

	if _, err := f.service.LoginWithOAuth(ctx, application.OAuthLoginRequest{
		Provider: "google",
		Code:     "code-bad",
	}, testRequestContext()); !errors.Is(err, domain.ErrOAuthExchange) {
		t.Fatalf("expected ErrOAuthExchange, got %v", err)
	}
}

func TestAuditTrailRecordsOutcomes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "audit@example.com",
		Password: "Secret123!",
	}, testRequestContext()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "audit@example.com",
		Password: "WrongPass1",
	}, testRequestContext()); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected failed login, got %v", err)
	}

	var sawRegister, sawFailedLogin bool
	for _, e := range f.audit.snapshot() {
		if e.Action == domain.ActionRegister && e.Status == domain.AuditSuccess {
			sawRegister = true
		}
		if e.Action == domain.ActionLogin && e.Status == domain.AuditFailure {
			sawFailedLogin = true
		}
	}
	if !sawRegister {
		t.Fatalf("expected register success entry in audit trail")
	}
	if !sawFailedLogin {
		t.Fatalf("expected failed login entry in audit trail")
	}
}

func TestAdminUserManagement(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	first, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "managed@example.com",
		Password: "Secret123!",
		Name:     "Managed User",
	}, testRequestContext())
	if err != nil {
		t.Fatalf("register first: %v", err)
	}
	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "second@example.com",
		Password: "Secret123!",
	}, testRequestContext()); err != nil {
		t.Fatalf("register second: %v", err)
	}

	users, err := f.service.ListUsers(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	pageOne, err := f.service.ListUsers(ctx, 1, 1)
	if err != nil || len(pageOne) != 1 {
		t.Fatalf("page 1: err=%v items=%d", err, len(pageOne))
	}
	pageTwo, err := f.service.ListUsers(ctx, 2, 1)
	if err != nil || len(pageTwo) != 1 {
		t.Fatalf("page 2: err=%v items=%d", err, len(pageTwo))
	}
	if pageOne[0].ID == pageTwo[0].ID {
		t.Fatalf("pages should not overlap")
	}

	got, err := f.service.GetUser(ctx, first.User.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != "managed@example.com" {
		t.Fatalf("unexpected user %q", got.Email)
	}
	if _, err := f.service.GetUser(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	adminID := uuid.New()
	newName := "Renamed User"
	inactive := false
	updated, err := f.service.UpdateUser(ctx, first.User.ID, application.UpdateUserRequest{
		Name:     &newName,
		IsActive: &inactive,
	}, adminID, testRequestContext())
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if updated.Name != "Renamed User" || updated.IsActive {
		t.Fatalf("update not applied: %+v", updated)
	}

	// Deactivation bites on the next token check.
	if u := f.service.ValidateToken(ctx, first.Token); u != nil {
		t.Fatalf("deactivated user should not validate")
	}

	var sawUpdate bool
	for _, e := range f.audit.snapshot() {
		if e.Action != domain.ActionUserUpdate || e.ResourceID != first.User.ID.String() {
			continue
		}
		sawUpdate = true
		if e.UserID == nil || *e.UserID != adminID {
			t.Fatalf("update audit should name the acting admin")
		}
		if e.Metadata["is_active"] != false {
			t.Fatalf("expected is_active change in metadata, got %v", e.Metadata)
		}
	}
	if !sawUpdate {
		t.Fatalf("expected user_update audit entry")
	}

	if _, err := f.service.UpdateUser(ctx, first.User.ID, application.UpdateUserRequest{}, adminID, testRequestContext()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty update should be rejected, got %v", err)
	}
}

func newFixture() *fixture {
	users := &fakeUsers{
		byEmail: map[string]domain.User{},
		byID:    map[uuid.UUID]domain.User{},
	}
	sessions := &fakeSessions{byID: map[uuid.UUID]domain.Session{}, byToken: map[string]uuid.UUID{}}
	audit := &fakeAudit{}
	jobs := &fakeJobs{}
	revocations := &fakeRevocations{revoked: map[uuid.UUID]bool{}}
	oauth := &fakeOAuth{
		identities: map[string]ports.OAuthIdentity{
			"code-ok": {
				Provider:      "google",
				Subject:       "provider-sub-1",
				Email:         "oauth@example.com",
				EmailVerified: true,
				Name:          "OAuth User",
			},
		},
	}

	svc := application.NewService(application.Dependencies{
		Users:       users,
		Sessions:    sessions,
		Audit:       audit,
		Jobs:        jobs,
		Revocations: revocations,
		Hasher:      &fakeHasher{},
		TokenSigner: &fakeSigner{tokens: map[string]ports.AuthClaims{}},
		OAuth:       oauth,
	})

	return &fixture{
		service:  svc,
		users:    users,
		sessions: sessions,
		audit:    audit,
		jobs:     jobs,
	}
}

func testRequestContext() application.RequestContext {
	return application.RequestContext{
		IPAddress: "127.0.0.1",
		UserAgent: "unit-test",
		RequestID: "req-1",
	}
}

type fixture struct {
	service  *application.Service
	users    *fakeUsers
	sessions *fakeSessions
	audit    *fakeAudit
	jobs     *fakeJobs
}

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
	byID    map[uuid.UUID]domain.User

	resetHashes  map[uuid.UUID]string
	resetExpires map[uuid.UUID]time.Time
}

func (f *fakeUsers) store(u domain.User) {
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u
}

func (f *fakeUsers) Create(_ context.Context, params ports.CreateUserParams) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[params.Email]; ok {
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
	f.store(u)
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) List(_ context.Context, limit, offset int) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]domain.User, 0, len(f.byID))
	for _, u := range f.byID {
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

func (f *fakeUsers) Update(_ context.Context, userID uuid.UUID, params ports.UserUpdateParams, now time.Time) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
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
	f.store(u)
	return u, nil
}

func (f *fakeUsers) IncrementLoginAttempts(_ context.Context, userID uuid.UUID, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	u.LoginAttempts++
	u.UpdatedAt = now
	f.store(u)
	return u.LoginAttempts, nil
}

func (f *fakeUsers) SetLockout(_ context.Context, userID uuid.UUID, lockedUntil, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.LockedUntil = &lockedUntil
	u.UpdatedAt = now
	f.store(u)
	return nil
}

func (f *fakeUsers) ResetLoginState(_ context.Context, userID uuid.UUID, loginAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &loginAt
	u.UpdatedAt = loginAt
	f.store(u)
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
	f.store(u)
	return nil
}

func (f *fakeUsers) SetPasswordResetToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[userID]; !ok {
		return domain.ErrNotFound
	}
	if f.resetHashes == nil {
		f.resetHashes = map[uuid.UUID]string{}
		f.resetExpires = map[uuid.UUID]time.Time{}
	}
	f.resetHashes[userID] = tokenHash
	f.resetExpires[userID] = expiresAt
	return nil
}

func (f *fakeUsers) ConsumePasswordResetToken(_ context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for userID, hash := range f.resetHashes {
		if hash != tokenHash {
			continue
		}
		if now.After(f.resetExpires[userID]) {
			return uuid.Nil, domain.ErrNotFound
		}
		delete(f.resetHashes, userID)
		delete(f.resetExpires, userID)
		return userID, nil
	}
	return uuid.Nil, domain.ErrNotFound
}

func (f *fakeUsers) Deactivate(_ context.Context, userID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsActive = false
	u.UpdatedAt = now
	f.store(u)
	return nil
}

type fakeSessions struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]domain.Session
	byToken map[string]uuid.UUID
}

func (f *fakeSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.Session{
		ID:        params.SessionID,
		UserID:    params.UserID,
		Token:     params.Token,
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		IsActive:  true,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: params.CreatedAt,
		UpdatedAt: params.CreatedAt,
	}
	f.byID[s.ID] = s
	f.byToken[s.Token] = s.ID
	return s, nil
}

func (f *fakeSessions) GetByToken(_ context.Context, token string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byToken[token]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeSessions) GetByID(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) RevokeByID(_ context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.IsActive = false
	s.RevokedAt = &revokedAt
	f.byID[sessionID] = s
	return nil
}

func (f *fakeSessions) RevokeByToken(_ context.Context, token string, revokedAt time.Time) error {
	f.mu.Lock()
	id, ok := f.byToken[token]
	f.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	return f.RevokeByID(context.Background(), id, revokedAt)
}

func (f *fakeSessions) RevokeAllByUser(_ context.Context, userID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.byID {
		if s.UserID == userID {
			s.IsActive = false
			s.RevokedAt = &revokedAt
			f.byID[id] = s
		}
	}
	return nil
}

func (f *fakeSessions) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, s := range f.byID {
		if s.ExpiresAt.Before(cutoff) {
			delete(f.byID, id)
			delete(f.byToken, s.Token)
			removed++
		}
	}
	return removed, nil
}

type fakeAudit struct {
	mu       sync.Mutex
	entries  []domain.AuditEntry
	countErr error
}

func (f *fakeAudit) Insert(_ context.Context, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) Count(_ context.Context, filter ports.AuditCountFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, e := range f.entries {
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

func (f *fakeAudit) List(_ context.Context, query ports.AuditQuery) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range f.entries {
		if query.UserID != nil && (e.UserID == nil || *e.UserID != *query.UserID) {
			continue
		}
		if query.Action != "" && e.Action != query.Action {
			continue
		}
		if query.Since != nil && e.CreatedAt.Before(*query.Since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAudit) snapshot() []domain.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AuditEntry{}, f.entries...)
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []ports.Job
}

func (f *fakeJobs) Enqueue(_ context.Context, job ports.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeJobs) ClaimPending(context.Context, int, string, time.Time) ([]ports.JobRecord, error) {
	return nil, nil
}
func (f *fakeJobs) MarkDone(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeJobs) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeJobs) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeJobs) lastOfKind(kind string) *ports.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.jobs) - 1; i >= 0; i-- {
		if f.jobs[i].Kind == kind {
			cp := f.jobs[i]
			return &cp
		}
	}
	return nil
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func (f *fakeRevocations) MarkRevoked(_ context.Context, sessionID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[sessionID] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[sessionID], nil
}

type fakeHasher struct{}

func (f *fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (f *fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type fakeSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.AuthClaims
}

func (f *fakeSigner) Sign(claims ports.AuthClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.tokens[token] = claims
	return token, nil
}

func (f *fakeSigner) ParseAndValidate(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.tokens[token]
	if !ok {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

type fakeOAuth struct {
	mu         sync.Mutex
	identities map[string]ports.OAuthIdentity
}

func (f *fakeOAuth) Exchange(_ context.Context, provider, code string) (ports.OAuthIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.identities[code]
	if !ok {
		return ports.OAuthIdentity{}, errors.New("provider rejected code")
	}
	identity.Provider = provider
	return identity, nil
}
