package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 3
	maxRetryDelay      = 5 * time.Minute
)

const importJobColumns = `id, import_id, kind, parquet_path, mysql_table, status,
	attempts, max_attempts, run_after, created_at, updated_at, last_error`

// QueueImport records imp as pending and queues job to run it. Both rows
// are written in one transaction, so a queued job always has its import.
func (s *Store) QueueImport(ctx context.Context, imp Import, job ImportJob) error {
	now := time.Now().UTC()
	if imp.StartedAt.IsZero() {
		imp.StartedAt = now
	}
	runAfter := job.RunAfter
	if runAfter.IsZero() {
		runAfter = now
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning queue transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO imports (id, kind, location, status, rows, started_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		imp.ID, imp.Kind, imp.Location, ImportPending, imp.StartedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording import %s: %w", imp.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO import_jobs (id, import_id, kind, parquet_path, mysql_table, status, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, imp.ID, job.Kind, job.ParquetPath, job.MySQLTable, JobPending, maxAttempts,
		runAfter.UTC().Format(time.RFC3339), now.Format(time.RFC3339), now.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("queueing job for import %s: %w", imp.ID, err)
	}
	return tx.Commit()
}

// ClaimImportJob marks the oldest runnable pending job running and returns
// it, or nil when there is nothing to do.
func (s *Store) ClaimImportJob(ctx context.Context) (*ImportJob, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	row := s.db.QueryRowContext(ctx, `
		UPDATE import_jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM import_jobs
			WHERE status = ? AND run_after <= ?
			ORDER BY run_after ASC, created_at ASC
			LIMIT 1
		)
		RETURNING `+importJobColumns,
		JobRunning, now, JobPending, now,
	)
	job, err := scanImportJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming import job: %w", err)
	}
	return &job, nil
}

// CompleteImportJob marks a job done.
func (s *Store) CompleteImportJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE import_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		JobCompleted, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// FailImportJob records a failed attempt and reports whether the job will
// run again. Retries back off exponentially until max_attempts; the last
// failure also fails the job's import unless it already completed.
func (s *Store) FailImportJob(ctx context.Context, id, errMsg string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var importID string
	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `SELECT import_id, attempts, max_attempts FROM import_jobs WHERE id = ?`, id).
		Scan(&importID, &attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	attempts++
	retry := attempts < maxAttempts

	if retry {
		_, err = tx.ExecContext(ctx, `
			UPDATE import_jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ?
			WHERE id = ?`,
			JobPending, attempts, errMsg, now.Add(retryDelay(attempts)).Format(time.RFC3339), now.Format(time.RFC3339), id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE import_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ?
			WHERE id = ?`,
			JobFailed, attempts, errMsg, now.Format(time.RFC3339), id)
		if err == nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE imports SET status = ?, last_error = ?, finished_at = ?
				WHERE id = ? AND status != ?`,
				ImportFailed, errMsg, now.Format(time.RFC3339), importID, ImportCompleted)
		}
	}
	if err != nil {
		return false, err
	}
	return retry, tx.Commit()
}

// retryDelay is 2^attempts seconds, capped at maxRetryDelay.
func retryDelay(attempts int) time.Duration {
	if attempts >= 9 {
		return maxRetryDelay
	}
	return min(time.Duration(1<<attempts)*time.Second, maxRetryDelay)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanImportJob(row rowScanner) (ImportJob, error) {
	var j ImportJob
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	if err := row.Scan(
		&j.ID, &j.ImportID, &j.Kind, &j.ParquetPath, &j.MySQLTable, &j.Status,
		&j.Attempts, &j.MaxAttempts, &runAfter, &createdAt, &updatedAt, &lastError,
	); err != nil {
		return ImportJob{}, err
	}
	j.LastError = lastError.String

	var err error
	for _, f := range []struct {
		dst *time.Time
		raw string
	}{{&j.RunAfter, runAfter}, {&j.CreatedAt, createdAt}, {&j.UpdatedAt, updatedAt}} {
		if *f.dst, err = time.Parse(time.RFC3339, f.raw); err != nil {
			return ImportJob{}, fmt.Errorf("parsing job %s timestamps: %w", j.ID, err)
		}
	}
	return j, nil
}
