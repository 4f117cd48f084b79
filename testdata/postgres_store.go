package testdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/liamcoop/cstt/dataset"
)

// PostgresStore implements Store backed by PostgreSQL. Records and templates
// are kept in json (not jsonb) columns so field order survives a round trip.
type PostgresStore struct {
	db        *sql.DB
	projectID string
}

// NewPostgresStore creates a PostgreSQL-backed Store for a specific project
func NewPostgresStore(db *sql.DB, projectID string) *PostgresStore {
	return &PostgresStore{
		db:        db,
		projectID: projectID,
	}
}

const selectColumns = `id, project_id, name, description, data, template, format, active, test_case_ids, created_at, updated_at`

func (s *PostgresStore) Add(ctx context.Context, td *TestData) error {
	data, template, err := encodeColumns(td)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	td.ProjectID = s.projectID
	td.CreatedAt = now
	td.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_data (id, project_id, name, description, data, template, format, active, test_case_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, td.ID, s.projectID, td.Name, td.Description, data, template, td.Format.String(), td.Active,
		pq.Array(td.TestCaseIDs), td.CreatedAt, td.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("test data %s: %w", td.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert test data: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*TestData, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("test data %s: %w", id, ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM test_data
		WHERE id = $1 AND project_id = $2
	`, id, s.projectID)

	td, err := scanTestData(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("test data %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test data: %w", err)
	}
	return td, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*TestData, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM test_data
		WHERE project_id = $1
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*TestData, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM test_data
		WHERE project_id = $1 AND active = true
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresStore) query(ctx context.Context, query string) ([]*TestData, error) {
	rows, err := s.db.QueryContext(ctx, query, s.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list test data: %w", err)
	}
	defer rows.Close()

	var list []*TestData
	for rows.Next() {
		td, err := scanTestData(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test data: %w", err)
		}
		list = append(list, td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test data: %w", err)
	}
	return list, nil
}

func (s *PostgresStore) Update(ctx context.Context, td *TestData) error {
	if !isUUID(td.ID) {
		return fmt.Errorf("test data %s: %w", td.ID, ErrNotFound)
	}
	data, template, err := encodeColumns(td)
	if err != nil {
		return err
	}

	td.ProjectID = s.projectID
	td.UpdatedAt = time.Now().UTC()

	err = s.db.QueryRowContext(ctx, `
		UPDATE test_data
		SET name = $1, description = $2, data = $3, template = $4, format = $5,
		    active = $6, test_case_ids = $7, updated_at = $8
		WHERE id = $9 AND project_id = $10
		RETURNING created_at
	`, td.Name, td.Description, data, template, td.Format.String(), td.Active,
		pq.Array(td.TestCaseIDs), td.UpdatedAt, td.ID, s.projectID).Scan(&td.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("test data %s: %w", td.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update test data: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return fmt.Errorf("test data %s: %w", id, ErrNotFound)
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM test_data
		WHERE id = $1 AND project_id = $2
	`, id, s.projectID)
	if err != nil {
		return fmt.Errorf("failed to delete test data: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("test data %s: %w", id, ErrNotFound)
	}
	return nil
}

// isUUID guards queries against the uuid column; other ids cannot exist
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTestData(row scanner) (*TestData, error) {
	var (
		td       TestData
		data     []byte
		template []byte
		format   string
	)
	if err := row.Scan(&td.ID, &td.ProjectID, &td.Name, &td.Description, &data, &template,
		&format, &td.Active, pq.Array(&td.TestCaseIDs), &td.CreatedAt, &td.UpdatedAt); err != nil {
		return nil, err
	}

	ds, err := dataset.DecodeDataset(data)
	if err != nil {
		return nil, fmt.Errorf("invalid data for test data %s: %w", td.ID, err)
	}
	td.Data = ds
	if len(template) > 0 {
		if err := json.Unmarshal(template, &td.Template); err != nil {
			return nil, fmt.Errorf("invalid template for test data %s: %w", td.ID, err)
		}
	}
	td.Format, _ = dataset.ParseFormat(format)
	return &td, nil
}

func encodeColumns(td *TestData) (data, template []byte, err error) {
	if td.TestCaseIDs == nil {
		td.TestCaseIDs = []string{}
	}
	ds := td.Data
	if ds == nil {
		ds = dataset.Dataset{}
	}
	data, err = json.Marshal(ds)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode data: %w", err)
	}
	template, err = json.Marshal(td.Template)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode template: %w", err)
	}
	return data, template, nil
}
