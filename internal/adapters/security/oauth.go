package security

import (
	"context"
	"fmt"

	"github.com/plateforge/auth-service/internal/ports"
)

// DisabledOAuthVerifier rejects every exchange. Deployments without
// provider credentials run with this so the OAuth endpoint answers with a
// clean error instead of a panic or a missing route.
type DisabledOAuthVerifier struct{}

func NewDisabledOAuthVerifier() *DisabledOAuthVerifier {
	return &DisabledOAuthVerifier{}
}

func (DisabledOAuthVerifier) Exchange(_ context.Context, provider, _ string) (ports.OAuthIdentity, error) {
	return ports.OAuthIdentity{}, fmt.Errorf("oauth provider %q is not configured", provider)
}
