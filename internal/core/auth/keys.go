package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/solatis/mario/internal/types"
)

// KeyInfo describes a stored API key. The key itself is never stored.
type KeyInfo struct {
	ID         string         `db:"api_key_id"`
	Label      string         `db:"label"`
	SecretID   string         `db:"secret_id"`
	CreatedAt  string         `db:"created_at"`
	LastUsedAt sql.NullString `db:"last_used_at"`
	RevokedAt  sql.NullString `db:"revoked_at"`
}

// Revoked reports whether the key has been revoked.
func (k KeyInfo) Revoked() bool {
	return k.RevokedAt.Valid
}

// SelectSecret picks the secret new keys are signed with: the one named by
// secretID, or the only configured secret when secretID is empty.
func SelectSecret(secrets map[string][]byte, secretID string) (string, []byte, error) {
	if len(secrets) == 0 {
		return "", nil, ErrNoSecret
	}
	if secretID != "" {
		secret, ok := secrets[secretID]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrUnknownKey, secretID)
		}
		return secretID, secret, nil
	}
	if len(secrets) > 1 {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return "", nil, fmt.Errorf("%d HMAC secrets configured, choose one of %v", len(secrets), ids)
	}
	for id, secret := range secrets {
		return id, secret, nil
	}
	return "", nil, ErrNoSecret
}

// CreateKey generates and stores a new API key. The returned key is shown
// once; only its HMAC is kept.
func CreateKey(ctx context.Context, q Queries, secretID string, secret []byte, label string) (types.KeyID, string, error) {
	key, err := GenerateAPIKey(secretID)
	if err != nil {
		return "", "", err
	}

	id := types.NewKeyID()
	_, err = q.Exec(ctx, "insert-api-key",
		string(id), label, secretID, KeyHash(secret, key), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", "", fmt.Errorf("store API key: %w", err)
	}
	return id, key, nil
}

// ListKeys returns every stored key, oldest first.
func ListKeys(ctx context.Context, q Queries) ([]KeyInfo, error) {
	var keys []KeyInfo
	if err := q.Select(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("list API keys: %w", err)
	}
	return keys, nil
}

// RevokeKey marks a key revoked. Revoking twice is ErrKeyNotFound.
func RevokeKey(ctx context.Context, q Queries, id types.KeyID) error {
	res, err := q.Exec(ctx, "revoke-api-key", time.Now().UTC().Format(time.RFC3339), string(id))
	if err != nil {
		return fmt.Errorf("revoke API key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke API key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return nil
}
