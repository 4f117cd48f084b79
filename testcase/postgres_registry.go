package testcase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRegistry implements Registry backed by the test_cases table
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgresRegistry creates a PostgreSQL-backed Registry
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// validProject reports whether id can be a projects.id value
func validProject(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *PostgresRegistry) Create(ctx context.Context, tc *TestCase) error {
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO test_cases (project_id, id, title, description, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, tc.ProjectID, tc.ID, tc.Title, tc.Description, tc.Priority, tc.Status).Scan(&tc.CreatedAt, &tc.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("test case %s: %w", tc.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert test case: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Get(ctx context.Context, projectID, id string) (*TestCase, error) {
	if !validProject(projectID) {
		return nil, fmt.Errorf("test case %s: %w", id, ErrNotFound)
	}

	tc := TestCase{ProjectID: projectID}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, priority, status, created_at, updated_at
		FROM test_cases
		WHERE project_id = $1 AND id = $2
	`, projectID, id).Scan(&tc.ID, &tc.Title, &tc.Description, &tc.Priority, &tc.Status, &tc.CreatedAt, &tc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("test case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test case: %w", err)
	}
	return &tc, nil
}

func (r *PostgresRegistry) List(ctx context.Context, projectID string) ([]*TestCase, error) {
	if !validProject(projectID) {
		return []*TestCase{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, priority, status, created_at, updated_at
		FROM test_cases
		WHERE project_id = $1
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list test cases: %w", err)
	}
	defer rows.Close()

	cases := []*TestCase{}
	for rows.Next() {
		tc := TestCase{ProjectID: projectID}
		if err := rows.Scan(&tc.ID, &tc.Title, &tc.Description, &tc.Priority, &tc.Status, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan test case row: %w", err)
		}
		cases = append(cases, &tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test case rows: %w", err)
	}
	return cases, nil
}

func (r *PostgresRegistry) Update(ctx context.Context, tc *TestCase) error {
	if !validProject(tc.ProjectID) {
		return fmt.Errorf("test case %s: %w", tc.ID, ErrNotFound)
	}

	err := r.db.QueryRowContext(ctx, `
		UPDATE test_cases
		SET title = $1, description = $2, priority = $3, status = $4, updated_at = NOW()
		WHERE project_id = $5 AND id = $6
		RETURNING created_at, updated_at
	`, tc.Title, tc.Description, tc.Priority, tc.Status, tc.ProjectID, tc.ID).Scan(&tc.CreatedAt, &tc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("test case %s: %w", tc.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update test case: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Delete(ctx context.Context, projectID, id string) error {
	if !validProject(projectID) {
		return fmt.Errorf("test case %s: %w", id, ErrNotFound)
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM test_cases WHERE project_id = $1 AND id = $2
	`, projectID, id)
	if err != nil {
		return fmt.Errorf("failed to delete test case: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("test case %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PostgresRegistry) Missing(ctx context.Context, projectID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !validProject(projectID) {
		return missing(ids, func(string) bool { return false }), nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM test_cases WHERE project_id = $1 AND id = ANY($2)
	`, projectID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to look up test cases: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan test case id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test case ids: %w", err)
	}
	return missing(ids, func(id string) bool { return found[id] }), nil
}
