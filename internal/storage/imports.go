package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateImport records a table import. Creating an ID that already exists
// restarts it, which is how a queued (pending) import becomes running.
func (s *Store) CreateImport(ctx context.Context, imp Import) error {
	started := imp.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	status := imp.Status
	if status == "" {
		status = ImportRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO imports (id, kind, location, status, rows, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, rows = excluded.rows, started_at = excluded.started_at,
			finished_at = NULL, last_error = NULL`,
		imp.ID, imp.Kind, imp.Location, status, imp.Rows, started.UTC().Format(time.RFC3339),
	)
	return err
}

// FinishImport marks an import completed with its row count, or failed when
// importErr is non-nil.
func (s *Store) FinishImport(ctx context.Context, id string, rows int64, importErr error) error {
	status, lastError := ImportCompleted, ""
	if importErr != nil {
		status, lastError = ImportFailed, importErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE imports SET status = ?, rows = ?, finished_at = ?, last_error = ? WHERE id = ?`,
		status, rows, time.Now().UTC().Format(time.RFC3339), lastError, id,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// GetImport returns one import by ID.
func (s *Store) GetImport(ctx context.Context, id string) (Import, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, location, status, rows, started_at, finished_at, last_error
		FROM imports WHERE id = ?`, id)
	imp, err := scanImport(row)
	if err == sql.ErrNoRows {
		return Import{}, ErrNotFound
	}
	return imp, err
}

// ListImports returns the most recent imports first.
func (s *Store) ListImports(ctx context.Context, limit int) ([]Import, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, location, status, rows, started_at, finished_at, last_error
		FROM imports ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, imp)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImport(row rowScanner) (Import, error) {
	var imp Import
	var startedAt string
	var finishedAt, lastError sql.NullString
	if err := row.Scan(&imp.ID, &imp.Kind, &imp.Location, &imp.Status, &imp.Rows, &startedAt, &finishedAt, &lastError); err != nil {
		return Import{}, err
	}
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return Import{}, fmt.Errorf("parsing started_at: %w", err)
	}
	imp.StartedAt = t
	if finishedAt.Valid && finishedAt.String != "" {
		ft, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return Import{}, fmt.Errorf("parsing finished_at: %w", err)
		}
		imp.FinishedAt = &ft
	}
	imp.LastError = lastError.String
	return imp, nil
}
