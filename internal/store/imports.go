package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportRun records one inspect/dry-run/apply pass over an uploaded dataset.
type ImportRun struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Mode         string
	Filename     string
	TotalRows    int
	ValidRows    int
	InvalidRows  int
	AppliedRows  int
	WarningCount int
	Status       string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

type CreateImportRunParams struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Mode     string
	Filename string
}

func (s *Store) CreateImportRun(ctx context.Context, params CreateImportRunParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO import_runs (tenant_id, user_id, mode, filename, status)
		VALUES ($1, $2, $3, $4, 'running')
		RETURNING id
	`, params.TenantID, params.UserID, params.Mode, params.Filename).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create import run: %w", err)
	}
	return id, nil
}

type CompleteImportRunParams struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	TotalRows    int
	ValidRows    int
	InvalidRows  int
	AppliedRows  int
	WarningCount int
	Status       string
}

func (s *Store) CompleteImportRun(ctx context.Context, params CompleteImportRunParams) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_runs
		SET total_rows = $3,
		    valid_rows = $4,
		    invalid_rows = $5,
		    applied_rows = $6,
		    warning_count = $7,
		    status = $8,
		    completed_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, params.ID, params.TenantID, params.TotalRows, params.ValidRows, params.InvalidRows, params.AppliedRows, params.WarningCount, params.Status)
	if err != nil {
		return fmt.Errorf("complete import run: %w", err)
	}
	return nil
}

func (s *Store) GetImportRunByID(ctx context.Context, id, tenantID uuid.UUID) (ImportRun, error) {
	var run ImportRun
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, mode, filename, total_rows, valid_rows, invalid_rows,
		       applied_rows, warning_count, status, created_at, completed_at
		FROM import_runs
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(
		&run.ID,
		&run.TenantID,
		&run.UserID,
		&run.Mode,
		&run.Filename,
		&run.TotalRows,
		&run.ValidRows,
		&run.InvalidRows,
		&run.AppliedRows,
		&run.WarningCount,
		&run.Status,
		&run.CreatedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return ImportRun{}, err
	}
	return run, nil
}

// ImportRowResult is one row-level outcome within a run. Severity is one of
// error, warning or info; RowNumber is 1-based over the uploaded dataset.
type ImportRowResult struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	RowNumber int
	Severity  string
	Result    string
	ClientKey string
	Message   string
}

type InsertImportRowResultParams struct {
	RunID     uuid.UUID
	TenantID  uuid.UUID
	RowNumber int
	Severity  string
	Result    string
	ClientKey string
	Message   string
}

func (s *Store) InsertImportRowResult(ctx context.Context, params InsertImportRowResultParams) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_row_results (run_id, tenant_id, row_number, severity, result, client_key, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, params.RunID, params.TenantID, params.RowNumber, params.Severity, params.Result, params.ClientKey, params.Message)
	if err != nil {
		return fmt.Errorf("insert import row result: %w", err)
	}
	return nil
}

// ListImportRowResults returns row outcomes ordered by row number. An empty
// severity returns all rows.
func (s *Store) ListImportRowResults(ctx context.Context, runID, tenantID uuid.UUID, severity string) ([]ImportRowResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, row_number, severity, result, client_key, message
		FROM import_row_results
		WHERE run_id = $1 AND tenant_id = $2
		  AND ($3 = '' OR severity = $3)
		ORDER BY row_number, id
	`, runID, tenantID, severity)
	if err != nil {
		return nil, fmt.Errorf("list import row results: %w", err)
	}
	defer rows.Close()

	results := []ImportRowResult{}
	for rows.Next() {
		var result ImportRowResult
		if err := rows.Scan(&result.ID, &result.RunID, &result.RowNumber, &result.Severity, &result.Result, &result.ClientKey, &result.Message); err != nil {
			return nil, fmt.Errorf("scan import row result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
