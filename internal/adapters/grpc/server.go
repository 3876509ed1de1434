package grpc

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/plateforge/auth-service/internal/application"
	"github.com/plateforge/auth-service/internal/domain"
)

// AuthInternalService is the internal surface other services consume:
// token introspection and rate-limit admission. Requests and responses are
// Struct-encoded so the contract does not require generated stubs on either
// side.
type AuthInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckRateLimit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type AuthInternalServer struct {
	service *application.Service
	limiter *application.RateLimiter
}

func NewAuthInternalServer(service *application.Service, limiter *application.RateLimiter) *AuthInternalServer {
	return &AuthInternalServer{service: service, limiter: limiter}
}

func Register(server grpc.ServiceRegistrar, svc AuthInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "plateforge.auth.v1.AuthInternalService",
		HandlerType: (*AuthInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler:    structHandler(svc, "ValidateToken", AuthInternalService.ValidateToken),
			},
			{
				MethodName: "CheckRateLimit",
				Handler:    structHandler(svc, "CheckRateLimit", AuthInternalService.CheckRateLimit),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "plateforge/auth/v1/auth_internal.proto",
	}, svc)
}

func (s *AuthInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := req.GetFields()["token"].GetStringValue()
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	user := s.service.ValidateToken(ctx, token)
	if user == nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	resp, err := structpb.NewStruct(map[string]any{
		"valid":   true,
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *AuthInternalServer) CheckRateLimit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	rawUserID := fields["user_id"].GetStringValue()
	action := fields["action"].GetStringValue()
	if rawUserID == "" || action == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and action are required")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid user_id")
	}
	resource := fields["resource"].GetStringValue()

	result := s.limiter.Check(ctx, userID, domain.AuditAction(action), resource, application.RequestContext{
		RequestID: fields["request_id"].GetStringValue(),
	})
	if result.Allowed && fields["record"].GetBoolValue() {
		id := userID
		s.service.RecordAudit(ctx, domain.AuditEntry{
			UserID:   &id,
			Action:   domain.AuditAction(action),
			Resource: resource,
			Status:   domain.AuditSuccess,
		})
	}

	resp, err := structpb.NewStruct(map[string]any{
		"allowed":    result.Allowed,
		"limit":      result.Limit,
		"remaining":  result.Remaining,
		"reset_time": result.ResetTime.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func structHandler(
	svc AuthInternalService,
	method string,
	call func(AuthInternalService, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/plateforge.auth.v1.AuthInternalService/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(svc, ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(svc, ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
