// Package source reads the interaction table from external systems and
// imports it into the local store.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kalambet/offerjourney/internal/storage"
)

// Source kinds.
const (
	KindParquet = "parquet"
	KindMySQL   = "mysql"
)

// ErrUnknownKind is returned by Open for an unsupported source kind.
var ErrUnknownKind = errors.New("unknown source kind")

// Reader streams interaction records from an external table.
type Reader interface {
	Kind() string
	// Location identifies the source without credentials.
	Location() string
	Count(ctx context.Context) (int64, error)
	Read(ctx context.Context, fn func(storage.InteractionRecord) error) error
	Close() error
}

// Spec describes where to import the interaction table from. It holds the
// DSN, so it is built from configuration and never decoded from requests.
type Spec struct {
	Kind    string
	Path    string
	DSN     string
	Table   string
	Columns *Columns
}

func (s Spec) columns() Columns {
	if s.Columns == nil {
		return DefaultColumns()
	}
	return *s.Columns
}

// Merge fills the empty fields of s from base.
func (s Spec) Merge(base Spec) Spec {
	if s.Kind == "" {
		s.Kind = base.Kind
	}
	if s.Path == "" {
		s.Path = base.Path
	}
	if s.DSN == "" {
		s.DSN = base.DSN
	}
	if s.Table == "" {
		s.Table = base.Table
	}
	if s.Columns == nil {
		s.Columns = base.Columns
	}
	return s
}

// Location identifies the source without credentials.
func (s Spec) Location() string {
	if s.Kind == KindMySQL {
		return mysqlLocation(s.DSN, s.Table)
	}
	return s.Path
}

// Validate checks the spec without touching the source.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindParquet:
		if s.Path == "" {
			return fmt.Errorf("parquet source needs a path")
		}
	case KindMySQL:
		if s.DSN == "" || s.Table == "" {
			return fmt.Errorf("mysql source needs a dsn and a table")
		}
		if !identRe.MatchString(s.Table) {
			return fmt.Errorf("invalid table name %q", s.Table)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	return s.columns().Validate()
}

// Open returns a Reader for spec.
func Open(spec Spec) (Reader, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindParquet:
		return OpenParquet(spec.Path, spec.columns())
	default:
		return OpenMySQL(spec.DSN, spec.Table, spec.columns())
	}
}

// sqlReader runs the projection query against any database/sql handle.
type sqlReader struct {
	db    *sql.DB
	from  string
	cols  Columns
	quote func(string) string
}

func (r *sqlReader) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+r.from).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

func (r *sqlReader) Read(ctx context.Context, fn func(storage.InteractionRecord) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT `+r.cols.selectList(r.quote)+` FROM `+r.from)
	if err != nil {
		return fmt.Errorf("querying source: %w", err)
	}
	defer rows.Close()

	vals := make([]any, 9)
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning row %d: %w", n, err)
		}
		rec, err := toRecord(vals)
		if err != nil {
			return fmt.Errorf("row %d: %w", n, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
		n++
	}
	return rows.Err()
}

func (r *sqlReader) Close() error {
	return r.db.Close()
}

// toRecord converts one projected row, in Columns.ordered order.
func toRecord(vals []any) (storage.InteractionRecord, error) {
	var rec storage.InteractionRecord

	id, err := coerceInt(vals[0])
	if err != nil {
		return rec, fmt.Errorf("loan_id: %w", err)
	}
	if !id.Valid {
		return rec, fmt.Errorf("loan_id: missing")
	}
	rec.LoanID = id.Int64

	if rec.SessionDate, err = coerceTime(vals[1]); err != nil {
		return rec, fmt.Errorf("session_date: %w", err)
	}
	rec.Offer = coerceString(vals[2])
	rec.Service = coerceString(vals[3])
	rec.Converted = CoerceBool(vals[4])

	if rec.FICO, err = coerceInt(vals[5]); err != nil {
		return rec, fmt.Errorf("fico: %w", err)
	}
	if rec.Income, err = coerceFloat(vals[6]); err != nil {
		return rec, fmt.Errorf("income: %w", err)
	}
	if rec.ExistingLoanSize, err = coerceFloat(vals[7]); err != nil {
		return rec, fmt.Errorf("existing_loan_size: %w", err)
	}
	if rec.CurrentLoanMOB, err = coerceInt(vals[8]); err != nil {
		return rec, fmt.Errorf("current_loan_mob: %w", err)
	}
	return rec, nil
}
