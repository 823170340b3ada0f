package auth

import "errors"

// Authentication errors. UNAUTHENTICATED for missing/invalid (doesn't
// confirm key existence), PERMISSION_DENIED for revoked (key exists but is
// blocked).
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrNoSecret         = errors.New("no HMAC secret configured (set MARIO_HMAC_SECRET)")
	ErrKeyNotFound      = errors.New("API key not found or already revoked")

	// errDatabase marks storage failures, mapped to UNAVAILABLE.
	errDatabase = errors.New("database error")
)
