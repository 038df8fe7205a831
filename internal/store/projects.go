package store

import (
	"context"
	"fmt"
	"time"
)

// Compile-time check to verify that PostgresStore implements ProjectRepository.
var _ ProjectRepository = (*PostgresStore)(nil)

// Project represents the database schema for a project, the top-level tenant
// of the system. It mirrors the 'projects' table structure.
type Project struct {
	ID        int64     `db:"id"`
	Key       string    `db:"key"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Environment represents a named deployment target within a project.
type Environment struct {
	ID        int64     `db:"id"`
	ProjectID int64     `db:"project_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// ProjectRepository defines the interface for project and environment
// persistence operations.
type ProjectRepository interface {
	// CreateProject inserts a new project and populates ID and timestamps in the struct.
	CreateProject(ctx context.Context, p *Project) error

	// GetProject retrieves a project by id. Returns ErrNotFound when absent.
	GetProject(ctx context.Context, id int64) (*Project, error)

	// ListProjects retrieves all projects ordered by id ascending.
	ListProjects(ctx context.Context) ([]*Project, error)

	// DeleteProject removes a project and, via cascading constraints, every
	// entity under it. Returns ErrNotFound when absent.
	DeleteProject(ctx context.Context, id int64) error

	// CreateEnvironment inserts a new environment under a project.
	CreateEnvironment(ctx context.Context, e *Environment) error

	// ListEnvironments retrieves the environments of a project ordered by id.
	ListEnvironments(ctx context.Context, projectID int64) ([]*Environment, error)

	// GetEnvironment retrieves an environment by id. Returns ErrNotFound when absent.
	GetEnvironment(ctx context.Context, id int64) (*Environment, error)

	// GetEnvironmentByName resolves an environment name within a project.
	// Returns ErrNotFound when absent.
	GetEnvironmentByName(ctx context.Context, projectID int64, name string) (*Environment, error)

	// DeleteEnvironment removes an environment. Returns ErrNotFound when absent.
	DeleteEnvironment(ctx context.Context, id int64) error
}

// CreateProject inserts a new project into the database.
// It uses the RETURNING clause to get the server-generated ID and timestamps efficiently.
func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	query := `
		INSERT INTO projects (key, name)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query, p.Key, p.Name).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project with key %q %w", p.Key, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}

	return nil
}

// GetProject retrieves a single project by id.
func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	query := `
		SELECT id, key, name, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var p Project
	err := s.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("project %d %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &p, nil
}

// ListProjects retrieves all projects ordered by id ascending.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]*Project, error) {
	query := `
		SELECT id, key, name, created_at, updated_at
		FROM projects
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return projects, nil
}

// DeleteProject removes a project. Environments, flags, keys and configs fall
// with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteProject(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %d %w", id, ErrNotFound)
	}
	return nil
}

// CreateEnvironment inserts a new environment under a project.
func (s *PostgresStore) CreateEnvironment(ctx context.Context, e *Environment) error {
	query := `
		INSERT INTO environments (project_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query, e.ProjectID, e.Name).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("environment %q %w", e.Name, ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("project %d %w", e.ProjectID, ErrNotFound)
		}
		return fmt.Errorf("failed to insert environment: %w", err)
	}

	return nil
}

// ListEnvironments retrieves the environments of a project ordered by id ascending.
func (s *PostgresStore) ListEnvironments(ctx context.Context, projectID int64) ([]*Environment, error) {
	query := `
		SELECT id, project_id, name, created_at
		FROM environments
		WHERE project_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	envs := []*Environment{}
	for rows.Next() {
		var e Environment
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan environment row: %w", err)
		}
		envs = append(envs, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return envs, nil
}

// GetEnvironment retrieves a single environment by id.
func (s *PostgresStore) GetEnvironment(ctx context.Context, id int64) (*Environment, error) {
	query := `
		SELECT id, project_id, name, created_at
		FROM environments
		WHERE id = $1
	`

	var e Environment
	err := s.db.QueryRow(ctx, query, id).Scan(&e.ID, &e.ProjectID, &e.Name, &e.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("environment %d %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}

	return &e, nil
}

// GetEnvironmentByName resolves an environment by its name within a project.
// The SDK surface addresses environments by name; everything below it works
// with ids only.
func (s *PostgresStore) GetEnvironmentByName(ctx context.Context, projectID int64, name string) (*Environment, error) {
	query := `
		SELECT id, project_id, name, created_at
		FROM environments
		WHERE project_id = $1 AND name = $2
	`

	var e Environment
	err := s.db.QueryRow(ctx, query, projectID, name).Scan(&e.ID, &e.ProjectID, &e.Name, &e.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("environment %q %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}

	return &e, nil
}

// DeleteEnvironment removes an environment and its keys, rules and scoped configs.
func (s *PostgresStore) DeleteEnvironment(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM environments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete environment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("environment %d %w", id, ErrNotFound)
	}
	return nil
}
