package contract

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcadapter "github.com/plateforge/auth-service/internal/adapters/grpc"
)

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return s
}

func TestAuthInternalValidateTokenContract(t *testing.T) {
	t.Parallel()

	f := newContractFixture(t)
	ctx := context.Background()
	res := f.registerUser(t, "grpc-contract@example.com")

	server := grpcadapter.NewAuthInternalServer(f.service, f.limiter)
	resp, err := server.ValidateToken(ctx, mustStruct(t, map[string]any{"token": res.Token}))
	if err != nil {
		t.Fatalf("validate token failed: %v", err)
	}

	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		t.Fatalf("expected valid token response")
	}
	if fields["email"].GetStringValue() != "grpc-contract@example.com" {
		t.Fatalf("unexpected email: %s", fields["email"].GetStringValue())
	}
	if fields["user_id"].GetStringValue() != res.User.ID.String() {
		t.Fatalf("unexpected user_id: %s", fields["user_id"].GetStringValue())
	}
}

func TestAuthInternalValidateTokenRejectsMissingToken(t *testing.T) {
	t.Parallel()

	f := newContractFixture(t)
	server := grpcadapter.NewAuthInternalServer(f.service, f.limiter)

	_, err := server.ValidateToken(context.Background(), mustStruct(t, map[string]any{}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAuthInternalValidateTokenRejectsGarbage(t *testing.T) {
	t.Parallel()

	f := newContractFixture(t)
	server := grpcadapter.NewAuthInternalServer(f.service, f.limiter)

	_, err := server.ValidateToken(context.Background(), mustStruct(t, map[string]any{"token": "garbage"}))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestAuthInternalValidateTokenAfterLogout(t *testing.T) {
	t.Parallel()

	f := newContractFixture(t)
	ctx := context.Background()
	res := f.registerUser(t, "grpc-logout@example.com")

	if err := f.service.Logout(ctx, res.Token, testContext()); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	server := grpcadapter.NewAuthInternalServer(f.service, f.limiter)
	_, err := server.ValidateToken(ctx, mustStruct(t, map[string]any{"token": res.Token}))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated after logout, got %v", err)
	}
}

func TestAuthInternalCheckRateLimitContract(t *testing.T) {
	t.Parallel()

	f := newContractFixture(t)
	ctx := context.Background()
	res := f.registerUser(t, "grpc-ratelimit@example.com")
	server := grpcadapter.NewAuthInternalServer(f.service, f.limiter)

	// ai_generate allows 10 per hour; recorded checks consume the budget.
	for i := 0; i < 10; i++ {
		resp, err := server.CheckRateLimit(ctx, mustStruct(t, map[string]any{
			"user_id": res.User.ID.String(),
			"action":  "ai_generate",
			"record":  true,
		}))
		if err != nil {
			t.Fatalf("check %d failed: %v", i+1, err)
		}
		if !resp.GetFields()["allowed"].GetBoolValue() {
			t.Fatalf("check %d should be allowed", i+1)
		}
	}

	resp, err := server.CheckRateLimit(ctx, mustStruct(t, map[string]any{
		"user_id": res.User.ID.String(),
		"action":  "ai_generate",
		"record":  true,
	}))
	if err != nil {
		t.Fatalf("final check failed: %v", err)
	}
	fields := resp.GetFields()
	if fields["allowed"].GetBoolValue() {
		t.Fatalf("expected denial after exhausting the window")
	}
	if fields["remaining"].GetNumberValue() != 0 {
		t.Fatalf("expected zero remaining, got %v", fields["remaining"].GetNumberValue())
	}
	if fields["limit"].GetNumberValue() != 10 {
		t.Fatalf("expected limit 10, got %v", fields["limit"].GetNumberValue())
	}
}

func TestAuthInternalCheckRateLimitRequiresArgs(t *testing.T) {
	t.Parallel()

	f := newContractFixture(t)
	server := grpcadapter.NewAuthInternalServer(f.service, f.limiter)
	ctx := context.Background()

	_, err := server.CheckRateLimit(ctx, mustStruct(t, map[string]any{"action": "ai_generate"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument without user_id, got %v", err)
	}

	_, err = server.CheckRateLimit(ctx, mustStruct(t, map[string]any{
		"user_id": "not-a-uuid",
		"action":  "ai_generate",
	}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for bad user_id, got %v", err)
	}
}
