package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Compile-time check to verify that PostgresStore implements ConfigRepository.
var _ ConfigRepository = (*PostgresStore)(nil)

// ConfigEntry represents a project-scoped remote config value. A NULL
// environment_id marks a GLOBAL entry; a concrete one scopes the entry to a
// single environment.
type ConfigEntry struct {
	ID            int64           `db:"id"`
	ProjectID     int64           `db:"project_id"`
	EnvironmentID *int64          `db:"environment_id"`
	Key           string          `db:"key"`
	Value         json.RawMessage `db:"value"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// ConfigRepository defines the interface for remote config persistence operations.
type ConfigRepository interface {
	// UpsertConfig inserts a config entry or replaces the value of an existing
	// one with the same (project, environment, key) identity.
	UpsertConfig(ctx context.Context, e *ConfigEntry) error

	// ListConfigs retrieves all config entries of a project, globals first.
	ListConfigs(ctx context.Context, projectID int64) ([]*ConfigEntry, error)

	// DeleteConfig removes a config entry by its identity. Returns ErrNotFound when absent.
	DeleteConfig(ctx context.Context, projectID int64, environmentID *int64, key string) error
}

// UpsertConfig inserts or replaces a config entry. The configs table carries a
// UNIQUE NULLS NOT DISTINCT constraint over (project, environment, key), so a
// single ON CONFLICT target covers global and scoped entries alike.
func (s *PostgresStore) UpsertConfig(ctx context.Context, e *ConfigEntry) error {
	query := `
		INSERT INTO configs (project_id, environment_id, key, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, environment_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		RETURNING id, updated_at
	`

	err := s.db.QueryRow(ctx, query, e.ProjectID, e.EnvironmentID, e.Key, e.Value).
		Scan(&e.ID, &e.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("project or environment for config %w", ErrNotFound)
		}
		return fmt.Errorf("failed to upsert config: %w", err)
	}

	return nil
}

// ListConfigs retrieves all config entries of a project. Globals come first so
// that a straight walk applies scoped entries as overrides.
func (s *PostgresStore) ListConfigs(ctx context.Context, projectID int64) ([]*ConfigEntry, error) {
	query := `
		SELECT id, project_id, environment_id, key, value, updated_at
		FROM configs
		WHERE project_id = $1
		ORDER BY environment_id ASC NULLS FIRST, key ASC
	`

	rows, err := s.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	entries := []*ConfigEntry{}
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.EnvironmentID, &e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

// DeleteConfig removes a config entry by its (project, environment, key) identity.
func (s *PostgresStore) DeleteConfig(ctx context.Context, projectID int64, environmentID *int64, key string) error {
	var (
		query string
		args  []any
	)
	if environmentID == nil {
		query = `DELETE FROM configs WHERE project_id = $1 AND environment_id IS NULL AND key = $2`
		args = []any{projectID, key}
	} else {
		query = `DELETE FROM configs WHERE project_id = $1 AND environment_id = $2 AND key = $3`
		args = []any{projectID, *environmentID, key}
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("config %q %w", key, ErrNotFound)
	}
	return nil
}
