package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed.
	// The reason is to prevent account-enumeration side channels; it also
	// covers inactive accounts so deactivation state does not leak.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	ErrAccountLocked = errors.New("account locked")
	// ErrConflict covers uniqueness violations, most notably duplicate email
	// at registration.
	ErrConflict = errors.New("conflict")
	// ErrTokenExpired covers invalid, already-consumed, and expired one-time
	// tokens. A caller cannot tell which, so reset tokens stay unguessable.
	ErrTokenExpired       = errors.New("token invalid or expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrSessionExpired     = errors.New("session expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrNotImplemented     = errors.New("not implemented")
	// ErrOAuthExchange marks a failed provider code exchange distinctly from
	// local credential failures.
	ErrOAuthExchange = errors.New("oauth exchange failed")
	// ErrStorageTimeout and ErrStorageUnavailable classify collaborator
	// failures. The auth service surfaces them as generic failures; the rate
	// limiter fails open instead.
	ErrStorageTimeout     = errors.New("storage timeout")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
