package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const interactionColumns = `loan_id, session_date, offer, service, converted, fico, income, existing_loan_size, current_loan_mob`

// ReplaceInteractions swaps the whole interaction table for records in a
// single transaction. onRow, if non-nil, is called after every inserted row.
func (s *Store) ReplaceInteractions(ctx context.Context, importID string, records []InteractionRecord, onRow func()) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interactions`); err != nil {
		return fmt.Errorf("clearing interactions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO interactions (`+interactionColumns+`, import_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.LoanID, r.SessionDate.UTC().Format(time.RFC3339), r.Offer, r.Service, boolToInt(r.Converted),
			r.FICO, r.Income, r.ExistingLoanSize, r.CurrentLoanMOB, importID,
		); err != nil {
			return fmt.Errorf("inserting row %d (loan %d): %w", i, r.LoanID, err)
		}
		if onRow != nil {
			onRow()
		}
	}

	return tx.Commit()
}

// ListInteractionRecords returns the full table ordered by customer and date.
func (s *Store) ListInteractionRecords(ctx context.Context) ([]InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+interactionColumns+`
		FROM interactions ORDER BY loan_id ASC, session_date ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// CustomerInteractions returns one customer's rows ordered by date.
func (s *Store) CustomerInteractions(ctx context.Context, loanID int64) ([]InteractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+interactionColumns+`
		FROM interactions WHERE loan_id = ? ORDER BY session_date ASC, id ASC`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// CountInteractions returns the number of rows in the table.
func (s *Store) CountInteractions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n)
	return n, err
}

// CustomerKeys returns the distinct loan IDs in ascending order.
func (s *Store) CustomerKeys(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT loan_id FROM interactions ORDER BY loan_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []int64
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanInteractions(rows *sql.Rows) ([]InteractionRecord, error) {
	var results []InteractionRecord
	for rows.Next() {
		var r InteractionRecord
		var sessionDate string
		var converted int
		if err := rows.Scan(&r.LoanID, &sessionDate, &r.Offer, &r.Service, &converted,
			&r.FICO, &r.Income, &r.ExistingLoanSize, &r.CurrentLoanMOB); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, sessionDate)
		if err != nil {
			return nil, fmt.Errorf("parsing session_date for loan %d: %w", r.LoanID, err)
		}
		r.SessionDate = t
		r.Converted = converted != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
