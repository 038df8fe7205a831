package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gunes1hakan/feature-flags/internal/engine"
)

// Compile-time checks: the store is both the key repository and the
// authenticator the evaluation session depends on.
var (
	_ SDKKeyRepository     = (*PostgresStore)(nil)
	_ engine.Authenticator = (*PostgresStore)(nil)
)

// SDKKey represents an environment-bound credential. Only the SHA-256 hash is
// persisted; the plaintext key is shown once at creation and never stored.
type SDKKey struct {
	ID            int64      `db:"id"`
	EnvironmentID int64      `db:"environment_id"`
	KeyHash       string     `db:"key_hash"`
	Label         string     `db:"label"`
	CreatedAt     time.Time  `db:"created_at"`
	RevokedAt     *time.Time `db:"revoked_at"`
}

// SDKKeyRepository defines the interface for SDK key persistence operations.
type SDKKeyRepository interface {
	// CreateSDKKey inserts a new key and populates ID and CreatedAt in the struct.
	CreateSDKKey(ctx context.Context, k *SDKKey) error

	// ListSDKKeys retrieves the keys of an environment ordered by id ascending.
	ListSDKKeys(ctx context.Context, environmentID int64) ([]*SDKKey, error)

	// RevokeSDKKey marks a key as revoked. Returns ErrNotFound when absent or
	// already revoked.
	RevokeSDKKey(ctx context.Context, id int64) error
}

// HashSDKKey returns the hex-encoded SHA-256 digest under which a key is stored.
func HashSDKKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CreateSDKKey inserts a new SDK key hash bound to an environment.
func (s *PostgresStore) CreateSDKKey(ctx context.Context, k *SDKKey) error {
	query := `
		INSERT INTO sdk_keys (environment_id, key_hash, label)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query, k.EnvironmentID, k.KeyHash, k.Label).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sdk key %w", ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("environment %d %w", k.EnvironmentID, ErrNotFound)
		}
		return fmt.Errorf("failed to insert sdk key: %w", err)
	}

	return nil
}

// ListSDKKeys retrieves the keys of an environment ordered by id ascending.
func (s *PostgresStore) ListSDKKeys(ctx context.Context, environmentID int64) ([]*SDKKey, error) {
	query := `
		SELECT id, environment_id, key_hash, label, created_at, revoked_at
		FROM sdk_keys
		WHERE environment_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sdk keys: %w", err)
	}
	defer rows.Close()

	keys := []*SDKKey{}
	for rows.Next() {
		var k SDKKey
		if err := rows.Scan(&k.ID, &k.EnvironmentID, &k.KeyHash, &k.Label, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sdk key row: %w", err)
		}
		keys = append(keys, &k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return keys, nil
}

// RevokeSDKKey marks a key as revoked. Revoked keys stay in the table for
// auditability but never authenticate again.
func (s *PostgresStore) RevokeSDKKey(ctx context.Context, id int64) error {
	query := `UPDATE sdk_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`

	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke sdk key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sdk key %d %w", id, ErrNotFound)
	}
	return nil
}

// ResolveSDKKey looks up the environment an unrevoked key is bound to. The SDK
// plane uses this to discover the project/environment pair, since SDK requests
// carry only the key and an environment name.
func (s *PostgresStore) ResolveSDKKey(ctx context.Context, sdkKey string) (*Environment, error) {
	if sdkKey == "" {
		return nil, &engine.AuthError{Reason: "missing sdk key"}
	}

	query := `
		SELECT e.id, e.project_id, e.name, e.created_at
		FROM sdk_keys k
		JOIN environments e ON e.id = k.environment_id
		WHERE k.key_hash = $1 AND k.revoked_at IS NULL
	`

	var env Environment
	err := s.db.QueryRow(ctx, query, HashSDKKey(sdkKey)).Scan(&env.ID, &env.ProjectID, &env.Name, &env.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, &engine.AuthError{Reason: "unknown sdk key"}
		}
		return nil, fmt.Errorf("failed to resolve sdk key: %w", err)
	}

	return &env, nil
}

// Authenticate verifies that the presented SDK key is an unrevoked credential
// of exactly the requested project/environment pair. The lookup happens by
// hash, so a miss and a mismatch are indistinguishable to the caller.
func (s *PostgresStore) Authenticate(ctx context.Context, sdkKey string, projectID, environmentID int64) error {
	if sdkKey == "" {
		return &engine.AuthError{Reason: "missing sdk key"}
	}

	query := `
		SELECT e.id, e.project_id
		FROM sdk_keys k
		JOIN environments e ON e.id = k.environment_id
		WHERE k.key_hash = $1 AND k.revoked_at IS NULL
	`

	var envID, envProjectID int64
	err := s.db.QueryRow(ctx, query, HashSDKKey(sdkKey)).Scan(&envID, &envProjectID)
	if err != nil {
		if isNoRows(err) {
			return &engine.AuthError{Reason: "unknown sdk key"}
		}
		return fmt.Errorf("failed to authenticate sdk key: %w", err)
	}

	if envID != environmentID || envProjectID != projectID {
		return &engine.AuthError{Reason: "sdk key is not bound to this environment"}
	}

	return nil
}
