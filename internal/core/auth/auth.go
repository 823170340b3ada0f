// Package auth provides HMAC-based API key authentication for the plumbing
// service and the key management behind `mario keys`.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/mario/internal/types"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// keyIDKey is the context key for storing the authenticated API key ID.
const keyIDKey = contextKey("api_key_id")

// lastUsedThrottle bounds last_used_at writes for busy keys.
const lastUsedThrottle = time.Minute

// Queries defines the database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Select(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
	}
}

// Authenticate validates an API key and returns its key ID on success.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (types.KeyID, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var result struct {
		APIKeyID   string         `db:"api_key_id"`
		Label      string         `db:"label"`
		RevokedAt  sql.NullString `db:"revoked_at"`
		LastUsedAt sql.NullString `db:"last_used_at"`
	}

	// key_hash is unique, so at most one row matches
	err = a.queries.Get(ctx, "get-api-key-by-hash", &result, KeyHash(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", errDatabase, err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	now := a.now().UTC()
	if shouldUpdateLastUsed(result.LastUsedAt, now) {
		_, _ = a.queries.Exec(ctx, "update-last-used", now.Format(time.RFC3339), result.APIKeyID)
	}

	return types.KeyID(result.APIKeyID), nil
}

// shouldUpdateLastUsed throttles last_used_at writes to one per minute.
func shouldUpdateLastUsed(lastUsed sql.NullString, now time.Time) bool {
	if !lastUsed.Valid {
		return true
	}
	t, err := time.Parse(time.RFC3339, lastUsed.String)
	if err != nil {
		return true
	}
	return now.Sub(t) > lastUsedThrottle
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Health checks pass unauthenticated so probes need no key.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == healthCheckMethod {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		keyID, err := a.Authenticate(ctx, apiKeys[0])
		switch {
		case err == nil:
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, errDatabase):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(context.WithValue(ctx, keyIDKey, keyID), req)
	}
}

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// KeyIDFromContext extracts the authenticated key ID from context.
// Returns empty string if not found.
func KeyIDFromContext(ctx context.Context) types.KeyID {
	if keyID, ok := ctx.Value(keyIDKey).(types.KeyID); ok {
		return keyID
	}
	return ""
}
