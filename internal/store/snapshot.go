package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gunes1hakan/feature-flags/internal/engine"
)

// Compile-time check: the store is the canonical snapshot source behind the cache.
var _ engine.SnapshotLoader = (*PostgresStore)(nil)

// LoadEvaluationSnapshot reads everything one evaluation needs for a project
// inside a single repeatable-read, read-only transaction. Admin writes
// committing mid-load can therefore never produce a torn snapshot.
func (s *PostgresStore) LoadEvaluationSnapshot(ctx context.Context, projectID int64) (*engine.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	// Read-only tx: rollback is the unconditional cleanup.
	defer func() { _ = tx.Rollback(ctx) }()

	// Verify the project exists so an unknown id surfaces as not-found rather
	// than an empty snapshot.
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}
	if !exists {
		return nil, &engine.NotFoundError{Resource: "project", Name: fmt.Sprint(projectID)}
	}

	snap := &engine.Snapshot{ProjectID: projectID}

	if snap.Flags, err = loadSnapshotFlags(ctx, tx, projectID); err != nil {
		return nil, err
	}
	if snap.Variants, err = loadSnapshotVariants(ctx, tx, projectID); err != nil {
		return nil, err
	}
	if snap.Rules, err = loadSnapshotRules(ctx, tx, projectID); err != nil {
		return nil, err
	}
	if snap.Configs, err = loadSnapshotConfigs(ctx, tx, projectID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	return snap, nil
}

func loadSnapshotFlags(ctx context.Context, tx pgx.Tx, projectID int64) ([]engine.Flag, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, project_id, key, enabled, default_variant, status
		FROM flags
		WHERE project_id = $1
		ORDER BY id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot flags: %w", err)
	}
	defer rows.Close()

	flags := []engine.Flag{}
	for rows.Next() {
		var f engine.Flag
		var status string
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Key, &f.On, &f.DefaultVariant, &status); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot flag: %w", err)
		}
		f.Status = engine.FlagStatus(status)
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func loadSnapshotVariants(ctx context.Context, tx pgx.Tx, projectID int64) ([]engine.Variant, error) {
	rows, err := tx.Query(ctx, `
		SELECT v.id, v.flag_id, v.name, v.payload
		FROM variants v
		JOIN flags f ON f.id = v.flag_id
		WHERE f.project_id = $1
		ORDER BY v.id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot variants: %w", err)
	}
	defer rows.Close()

	variants := []engine.Variant{}
	for rows.Next() {
		var v engine.Variant
		if err := rows.Scan(&v.ID, &v.FlagID, &v.Name, &v.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func loadSnapshotRules(ctx context.Context, tx pgx.Tx, projectID int64) ([]engine.Rule, error) {
	rows, err := tx.Query(ctx, `
		SELECT r.id, r.flag_id, r.environment_id, r.priority, r.predicate, r.distribution
		FROM rules r
		JOIN flags f ON f.id = r.flag_id
		WHERE f.project_id = $1
		ORDER BY r.id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot rules: %w", err)
	}
	defer rows.Close()

	rules := []engine.Rule{}
	for rows.Next() {
		var r engine.Rule
		// Predicate and distribution stay raw: a decayed document must only
		// ever degrade its own rule at evaluation time, never the load.
		if err := rows.Scan(&r.ID, &r.FlagID, &r.EnvironmentID, &r.Priority, &r.Predicate, &r.Distribution); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func loadSnapshotConfigs(ctx context.Context, tx pgx.Tx, projectID int64) ([]engine.ConfigEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, project_id, environment_id, key, value
		FROM configs
		WHERE project_id = $1
		ORDER BY id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot configs: %w", err)
	}
	defer rows.Close()

	configs := []engine.ConfigEntry{}
	for rows.Next() {
		var e engine.ConfigEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.EnvironmentID, &e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot config: %w", err)
		}
		configs = append(configs, e)
	}
	return configs, rows.Err()
}
