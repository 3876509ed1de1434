package unit

import (
	"strings"
	"testing"

	"github.com/plateforge/auth-service/internal/domain"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		password  string
		wantError bool
	}{
		{name: "valid", password: "Secret123!", wantError: false},
		{name: "valid without symbol", password: "Secret123", wantError: false},
		{name: "too short", password: "Ab1", wantError: true},
		{name: "too long", password: "A1" + strings.Repeat("a", 130), wantError: true},
		{name: "no upper", password: "secret123", wantError: true},
		{name: "no lower", password: "SECRET123", wantError: true},
		{name: "no digit", password: "SecretPass", wantError: true},
		{name: "weak pattern", password: "Password123", wantError: true},
		{name: "weak sequence", password: "Abc123456", wantError: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := domain.ValidatePassword(tc.password)
			if tc.wantError && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantError && err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
		})
	}
}
