// Package ingest runs queued table imports in the background.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/offerjourney/internal/source"
	"github.com/kalambet/offerjourney/internal/storage"
)

// JobStore abstracts the import job queue.
type JobStore interface {
	ClaimImportJob(ctx context.Context) (*storage.ImportJob, error)
	CompleteImportJob(ctx context.Context, id string) error
	FailImportJob(ctx context.Context, id, errMsg string) (bool, error)
}

// Queue is what Enqueue needs to register an import.
type Queue interface {
	QueueImport(ctx context.Context, imp storage.Import, job storage.ImportJob) error
}

// Opener builds a reader for a source spec. source.Open satisfies it.
type Opener func(spec source.Spec) (source.Reader, error)

// ImportRunner copies a source into the store. Implemented by source.Importer.
type ImportRunner interface {
	Run(ctx context.Context, id string, r source.Reader) (storage.Import, error)
}

// Invalidator drops cached data after a successful import.
// Implemented by dataset.Cache.
type Invalidator interface {
	Invalidate()
}

// Request names the source a queued import reads. It has no room for a
// DSN or column mapping: those always come from the configured source of
// the same kind.
type Request struct {
	Kind        string
	ParquetPath string
	MySQLTable  string
}

// Spec resolves r against the configured sources.
func (r Request) Spec(defaults map[string]source.Spec) source.Spec {
	return source.Spec{Kind: r.Kind, Path: r.ParquetPath, Table: r.MySQLTable}.Merge(defaults[r.Kind])
}

func requestOf(job *storage.ImportJob) Request {
	return Request{Kind: job.Kind, ParquetPath: job.ParquetPath, MySQLTable: job.MySQLTable}
}

// Enqueue records a pending import and queues the job that will run it.
func Enqueue(ctx context.Context, q Queue, req Request, defaults map[string]source.Spec) (storage.Import, error) {
	spec := req.Spec(defaults)
	if err := spec.Validate(); err != nil {
		return storage.Import{}, err
	}

	imp := storage.Import{
		ID:        uuid.NewString(),
		Kind:      spec.Kind,
		Location:  spec.Location(),
		Status:    storage.ImportPending,
		StartedAt: time.Now().UTC(),
	}
	job := storage.ImportJob{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		ParquetPath: req.ParquetPath,
		MySQLTable:  req.MySQLTable,
		MaxAttempts: 3,
	}
	if err := q.QueueImport(ctx, imp, job); err != nil {
		return storage.Import{}, fmt.Errorf("queueing import: %w", err)
	}
	return imp, nil
}

// Worker runs queued imports one at a time.
type Worker struct {
	store    JobStore
	open     Opener
	importer ImportRunner
	cache    Invalidator
	defaults map[string]source.Spec
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies. cache may be nil.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, open Opener, importer ImportRunner, cache Invalidator, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if open == nil {
		open = source.Open
	}
	return &Worker{
		store:    store,
		open:     open,
		importer: importer,
		cache:    cache,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// WithDefaults sets the configured source per kind that queued requests
// are resolved against.
func (w *Worker) WithDefaults(defaults map[string]source.Spec) *Worker {
	w.defaults = defaults
	return w
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single import job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimImportJob(ctx)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.process(ctx, job); err != nil {
		retry, failErr := w.store.FailImportJob(ctx, job.ID, err.Error())
		if failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
			return true, nil
		}
		w.logger.Warn("import failed", "import_id", job.ImportID, "attempt", job.Attempts+1, "retry", retry, "error", err)
		return true, nil
	}

	if err := w.store.CompleteImportJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.ImportJob) error {
	spec := requestOf(job).Spec(w.defaults)
	r, err := w.open(spec)
	if err != nil {
		return fmt.Errorf("opening %s source: %w", spec.Kind, err)
	}
	defer r.Close()

	imp, err := w.importer.Run(ctx, job.ImportID, r)
	if err != nil {
		return fmt.Errorf("importing %s: %w", r.Location(), err)
	}

	if w.cache != nil {
		w.cache.Invalidate()
	}
	w.logger.Info("interaction table replaced", "import_id", imp.ID, "rows", imp.Rows)
	return nil
}
