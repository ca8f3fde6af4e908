package storage

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// InteractionRecord is one row of the imported interaction table. Profile
// columns are nullable because sources only guarantee them on a customer's
// first row.
type InteractionRecord struct {
	LoanID      int64
	SessionDate time.Time
	Offer       sql.NullString
	Service     sql.NullString
	Converted   bool

	FICO             sql.NullInt64
	Income           sql.NullFloat64
	ExistingLoanSize sql.NullFloat64
	CurrentLoanMOB   sql.NullInt64
}

// Import statuses.
const (
	ImportPending   = "pending"
	ImportRunning   = "running"
	ImportCompleted = "completed"
	ImportFailed    = "failed"
)

// Import records one load of the interaction table.
type Import struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Location   string     `json:"location"`
	Status     string     `json:"status"`
	Rows       int64      `json:"rows"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Import job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ImportJob is a queued run of one Import. It names the source by kind and
// location only; there is no column for credentials or column mappings,
// which the worker resolves from configuration.
type ImportJob struct {
	ID          string
	ImportID    string
	Kind        string
	ParquetPath string
	MySQLTable  string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
