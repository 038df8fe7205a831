package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Compile-time check to verify that PostgresStore implements FlagRepository.
// If the interface changes and the struct doesn't, the build fails here.
var _ FlagRepository = (*PostgresStore)(nil)

// Flag represents the database schema for a feature flag.
// It mirrors the 'flags' table structure.
type Flag struct {
	ID             int64     `db:"id"`
	ProjectID      int64     `db:"project_id"`
	Key            string    `db:"key"`
	Description    string    `db:"description"`
	Enabled        bool      `db:"enabled"`
	Status         string    `db:"status"`
	DefaultVariant string    `db:"default_variant"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Variant represents one named outcome of a flag with its JSON payload.
type Variant struct {
	ID        int64           `db:"id"`
	FlagID    int64           `db:"flag_id"`
	Name      string          `db:"name"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}

// Rule represents an environment-scoped targeting rule of a flag. Predicate
// and Distribution are stored as JSONB; the predicate stays raw because its
// validity is an evaluation-time concern.
type Rule struct {
	ID            int64            `db:"id"`
	FlagID        int64            `db:"flag_id"`
	EnvironmentID int64            `db:"environment_id"`
	Priority      int              `db:"priority"`
	Predicate     json.RawMessage  `db:"predicate"`
	Distribution  map[string]int64 `db:"distribution"`
	CreatedAt     time.Time        `db:"created_at"`
}

// FlagRepository defines the interface for flag, variant and rule persistence
// operations. Using an interface allows for dependency injection and easier
// mocking in tests.
type FlagRepository interface {
	// CreateFlag inserts a new flag and populates the ID and timestamps in the struct.
	CreateFlag(ctx context.Context, f *Flag) error

	// GetFlag retrieves a flag by project and key. Returns ErrNotFound when absent.
	GetFlag(ctx context.Context, projectID int64, key string) (*Flag, error)

	// ListFlags retrieves a paginated list of a project's flags and the total count.
	// It orders results by ID descending (deterministic).
	ListFlags(ctx context.Context, projectID int64, limit, offset int) ([]*Flag, int64, error)

	// SetFlagEnabled flips the master switch and returns the updated flag.
	SetFlagEnabled(ctx context.Context, projectID int64, key string, enabled bool) (*Flag, error)

	// SetFlagStatus moves the flag through its lifecycle and returns the updated flag.
	SetFlagStatus(ctx context.Context, projectID int64, key, status string) (*Flag, error)

	// SetFlagDefaultVariant repoints the default variant and returns the updated flag.
	// An empty name clears the default.
	SetFlagDefaultVariant(ctx context.Context, projectID int64, key, variant string) (*Flag, error)

	// DeleteFlag removes a flag with its variants and rules. Returns ErrNotFound when absent.
	DeleteFlag(ctx context.Context, projectID int64, key string) error

	// CreateVariant inserts a new variant under a flag.
	CreateVariant(ctx context.Context, v *Variant) error

	// ListVariants retrieves the variants of a flag ordered by id ascending.
	ListVariants(ctx context.Context, flagID int64) ([]*Variant, error)

	// DeleteVariant removes a variant by name. Returns ErrNotFound when absent.
	DeleteVariant(ctx context.Context, flagID int64, name string) error

	// CreateRule inserts a new targeting rule under a flag.
	CreateRule(ctx context.Context, r *Rule) error

	// ListRules retrieves the rules of a flag ordered by (priority, id) ascending.
	ListRules(ctx context.Context, flagID int64) ([]*Rule, error)

	// DeleteRule removes a rule by id. Returns ErrNotFound when absent.
	DeleteRule(ctx context.Context, id int64) error
}

const flagColumns = `id, project_id, key, description, enabled, status, default_variant, created_at, updated_at`

func scanFlag(row interface{ Scan(dest ...any) error }, f *Flag) error {
	return row.Scan(
		&f.ID,
		&f.ProjectID,
		&f.Key,
		&f.Description,
		&f.Enabled,
		&f.Status,
		&f.DefaultVariant,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
}

// CreateFlag inserts a new flag into the database.
// It uses the RETURNING clause to get the server-generated ID and timestamps efficiently.
func (s *PostgresStore) CreateFlag(ctx context.Context, f *Flag) error {
	query := `
		INSERT INTO flags (project_id, key, description, enabled, status, default_variant)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		f.ProjectID,
		f.Key,
		f.Description,
		f.Enabled,
		f.Status,
		f.DefaultVariant,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("flag with key %q %w", f.Key, ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("project %d %w", f.ProjectID, ErrNotFound)
		}
		return fmt.Errorf("failed to insert flag: %w", err)
	}

	return nil
}

// GetFlag retrieves a single flag by project and key.
func (s *PostgresStore) GetFlag(ctx context.Context, projectID int64, key string) (*Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags WHERE project_id = $1 AND key = $2`

	var f Flag
	if err := scanFlag(s.db.QueryRow(ctx, query, projectID, key), &f); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("flag %q %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get flag: %w", err)
	}

	return &f, nil
}

// ListFlags retrieves a subset of a project's flags based on pagination parameters.
// It executes two queries: one for the data and one for the total count.
func (s *PostgresStore) ListFlags(ctx context.Context, projectID int64, limit, offset int) ([]*Flag, int64, error) {
	// 1. Get Total Count (for pagination metadata)
	var total int64
	countQuery := `SELECT count(*) FROM flags WHERE project_id = $1`

	if err := s.db.QueryRow(ctx, countQuery, projectID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count flags: %w", err)
	}

	// If there are no flags, return empty immediately to save the second query.
	if total == 0 {
		return []*Flag{}, 0, nil
	}

	// 2. Get Data
	query := `
		SELECT ` + flagColumns + `
		FROM flags
		WHERE project_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list flags: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	flags := make([]*Flag, 0, limit)
	for rows.Next() {
		var f Flag
		if err := scanFlag(rows, &f); err != nil {
			return nil, 0, fmt.Errorf("failed to scan flag row: %w", err)
		}
		flags = append(flags, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return flags, total, nil
}

// updateFlagColumn updates a single column of a flag identified by project and
// key, returning the updated row. All flag patch operations funnel through here.
func (s *PostgresStore) updateFlagColumn(ctx context.Context, projectID int64, key, column string, value any) (*Flag, error) {
	// column comes from a fixed call-site set, never from user input.
	query := fmt.Sprintf(`
		UPDATE flags
		SET %s = $3, updated_at = now()
		WHERE project_id = $1 AND key = $2
		RETURNING `+flagColumns, column)

	var f Flag
	if err := scanFlag(s.db.QueryRow(ctx, query, projectID, key, value), &f); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("flag %q %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update flag %s: %w", column, err)
	}

	return &f, nil
}

// SetFlagEnabled flips the master on/off switch of a flag.
func (s *PostgresStore) SetFlagEnabled(ctx context.Context, projectID int64, key string, enabled bool) (*Flag, error) {
	return s.updateFlagColumn(ctx, projectID, key, "enabled", enabled)
}

// SetFlagStatus moves a flag through its lifecycle (draft/active/published).
// Status validity is the caller's concern; the store persists what it is given.
func (s *PostgresStore) SetFlagStatus(ctx context.Context, projectID int64, key, status string) (*Flag, error) {
	return s.updateFlagColumn(ctx, projectID, key, "status", status)
}

// SetFlagDefaultVariant repoints the flag's default variant by name.
func (s *PostgresStore) SetFlagDefaultVariant(ctx context.Context, projectID int64, key, variant string) (*Flag, error) {
	return s.updateFlagColumn(ctx, projectID, key, "default_variant", variant)
}

// DeleteFlag removes a flag. Variants and rules fall with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteFlag(ctx context.Context, projectID int64, key string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM flags WHERE project_id = $1 AND key = $2`, projectID, key)
	if err != nil {
		return fmt.Errorf("failed to delete flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("flag %q %w", key, ErrNotFound)
	}
	return nil
}

// CreateVariant inserts a new variant under a flag.
func (s *PostgresStore) CreateVariant(ctx context.Context, v *Variant) error {
	query := `
		INSERT INTO variants (flag_id, name, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	payload := v.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	err := s.db.QueryRow(ctx, query, v.FlagID, v.Name, payload).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("variant %q %w", v.Name, ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("flag %d %w", v.FlagID, ErrNotFound)
		}
		return fmt.Errorf("failed to insert variant: %w", err)
	}

	v.Payload = payload
	return nil
}

// ListVariants retrieves the variants of a flag ordered by id ascending.
func (s *PostgresStore) ListVariants(ctx context.Context, flagID int64) ([]*Variant, error) {
	query := `
		SELECT id, flag_id, name, payload, created_at
		FROM variants
		WHERE flag_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query, flagID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	variants := []*Variant{}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.FlagID, &v.Name, &v.Payload, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variant row: %w", err)
		}
		variants = append(variants, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return variants, nil
}

// DeleteVariant removes a variant by name. Rules or defaults that still name
// it are left in place; the evaluator treats them as dangling and degrades.
func (s *PostgresStore) DeleteVariant(ctx context.Context, flagID int64, name string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM variants WHERE flag_id = $1 AND name = $2`, flagID, name)
	if err != nil {
		return fmt.Errorf("failed to delete variant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("variant %q %w", name, ErrNotFound)
	}
	return nil
}

// CreateRule inserts a new targeting rule under a flag.
func (s *PostgresStore) CreateRule(ctx context.Context, r *Rule) error {
	distribution, err := json.Marshal(r.Distribution)
	if err != nil {
		return fmt.Errorf("failed to encode distribution: %w", err)
	}

	query := `
		INSERT INTO rules (flag_id, environment_id, priority, predicate, distribution)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = s.db.QueryRow(ctx, query,
		r.FlagID,
		r.EnvironmentID,
		r.Priority,
		r.Predicate,
		distribution,
	).Scan(&r.ID, &r.CreatedAt)

	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("flag or environment for rule %w", ErrNotFound)
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// ListRules retrieves the rules of a flag in evaluation order (priority, id ascending).
func (s *PostgresStore) ListRules(ctx context.Context, flagID int64) ([]*Rule, error) {
	query := `
		SELECT id, flag_id, environment_id, priority, predicate, distribution, created_at
		FROM rules
		WHERE flag_id = $1
		ORDER BY priority ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, flagID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []*Rule{}
	for rows.Next() {
		var r Rule
		var distribution []byte
		if err := rows.Scan(&r.ID, &r.FlagID, &r.EnvironmentID, &r.Priority, &r.Predicate, &distribution, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		if err := json.Unmarshal(distribution, &r.Distribution); err != nil {
			return nil, fmt.Errorf("failed to decode distribution for rule %d: %w", r.ID, err)
		}
		rules = append(rules, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rules, nil
}

// DeleteRule removes a rule by id.
func (s *PostgresStore) DeleteRule(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %d %w", id, ErrNotFound)
	}
	return nil
}
