package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/kalambet/offerjourney/internal/metrics"
	"github.com/kalambet/offerjourney/internal/storage"
)

// ErrEmptySource is returned when a source has no rows. The current table
// is left untouched.
var ErrEmptySource = errors.New("source table is empty")

// ImportStore defines the storage operations the Importer needs.
// Implemented by storage.Store.
type ImportStore interface {
	CreateImport(ctx context.Context, imp storage.Import) error
	ReplaceInteractions(ctx context.Context, importID string, records []storage.InteractionRecord, onRow func()) error
	FinishImport(ctx context.Context, id string, rows int64, importErr error) error
}

// Importer copies a source table into the local store.
type Importer struct {
	store    ImportStore
	progress io.Writer
	logger   *slog.Logger
}

// NewImporter creates an Importer that renders no progress.
func NewImporter(store ImportStore) *Importer {
	return &Importer{store: store, progress: io.Discard, logger: slog.Default()}
}

// WithProgress renders a progress bar to w while rows are written.
func (im *Importer) WithProgress(w io.Writer) *Importer {
	cp := *im
	cp.progress = w
	return &cp
}

// Run imports everything r yields, replacing the interaction table. An
// empty id gets a fresh UUID. The returned Import reflects the final
// bookkeeping state even when err is non-nil.
func (im *Importer) Run(ctx context.Context, id string, r Reader) (storage.Import, error) {
	if id == "" {
		id = uuid.NewString()
	}
	start := time.Now()
	imp := storage.Import{
		ID:        id,
		Kind:      r.Kind(),
		Location:  r.Location(),
		Status:    storage.ImportRunning,
		StartedAt: start,
	}
	if err := im.store.CreateImport(ctx, imp); err != nil {
		return imp, fmt.Errorf("recording import: %w", err)
	}
	im.logger.Info("import started", "id", id, "kind", imp.Kind, "location", imp.Location)

	rows, runErr := im.copy(ctx, id, r)

	// The bookkeeping must land even if ctx was cancelled mid-import.
	if err := im.store.FinishImport(context.WithoutCancel(ctx), id, rows, runErr); err != nil {
		im.logger.Error("recording import result", "id", id, "error", err)
	}
	metrics.RecordImport(imp.Kind, rows, time.Since(start), runErr)

	finished := time.Now()
	imp.FinishedAt = &finished
	imp.Rows = rows
	if runErr != nil {
		imp.Status = storage.ImportFailed
		imp.LastError = runErr.Error()
		im.logger.Warn("import failed", "id", id, "error", runErr)
		return imp, runErr
	}
	imp.Status = storage.ImportCompleted
	im.logger.Info("import completed", "id", id, "rows", rows, "duration", time.Since(start))
	return imp, nil
}

func (im *Importer) copy(ctx context.Context, id string, r Reader) (int64, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, ErrEmptySource
	}

	records := make([]storage.InteractionRecord, 0, total)
	if err := r.Read(ctx, func(rec storage.InteractionRecord) error {
		records = append(records, rec)
		return nil
	}); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, ErrEmptySource
	}

	bar := progressbar.NewOptions64(int64(len(records)),
		progressbar.OptionSetWriter(im.progress),
		progressbar.OptionSetDescription("importing "+r.Kind()),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(im.progress) }),
	)
	if err := im.store.ReplaceInteractions(ctx, id, records, func() { _ = bar.Add(1) }); err != nil {
		return 0, fmt.Errorf("writing interactions: %w", err)
	}
	_ = bar.Finish()
	return int64(len(records)), nil
}
