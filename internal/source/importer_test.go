package source

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/offerjourney/internal/storage"
)

// --- Fake reader ---

type fakeReader struct {
	records []storage.InteractionRecord
	readErr error
	closed  bool
}

func (f *fakeReader) Kind() string     { return "fake" }
func (f *fakeReader) Location() string { return "memory" }

func (f *fakeReader) Count(ctx context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

func (f *fakeReader) Read(ctx context.Context, fn func(storage.InteractionRecord) error) error {
	if f.readErr != nil {
		return f.readErr
	}
	for _, r := range f.records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fakeRecords(n int) []storage.InteractionRecord {
	out := make([]storage.InteractionRecord, n)
	for i := range out {
		out[i] = storage.InteractionRecord{
			LoanID:      int64(100 + i%3),
			SessionDate: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Offer:       sql.NullString{String: "Savings", Valid: true},
			Converted:   i%2 == 0,
		}
	}
	return out
}

func TestImporter_Run(t *testing.T) {
	store := openTestStore(t)
	var progress bytes.Buffer
	im := NewImporter(store).WithProgress(&progress)
	ctx := context.Background()

	imp, err := im.Run(ctx, "", &fakeReader{records: fakeRecords(6)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if imp.ID == "" || imp.Status != storage.ImportCompleted || imp.Rows != 6 {
		t.Errorf("import = %+v", imp)
	}

	stored, err := store.GetImport(ctx, imp.ID)
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if stored.Status != storage.ImportCompleted || stored.Rows != 6 || stored.Kind != "fake" {
		t.Errorf("stored import = %+v", stored)
	}

	n, err := store.CountInteractions(ctx)
	if err != nil {
		t.Fatalf("CountInteractions: %v", err)
	}
	if n != 6 {
		t.Errorf("interactions = %d, want 6", n)
	}
	if progress.Len() == 0 {
		t.Error("expected progress output")
	}
}

func TestImporter_RunWithQueuedID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateImport(ctx, storage.Import{ID: "queued", Kind: "fake", Location: "memory", Status: storage.ImportPending}); err != nil {
		t.Fatalf("CreateImport: %v", err)
	}
	if _, err := NewImporter(store).Run(ctx, "queued", &fakeReader{records: fakeRecords(2)}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := store.GetImport(ctx, "queued")
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if got.Status != storage.ImportCompleted || got.Rows != 2 {
		t.Errorf("import = %+v", got)
	}
}

func TestImporter_EmptySourceKeepsTable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	im := NewImporter(store)

	if _, err := im.Run(ctx, "first", &fakeReader{records: fakeRecords(3)}); err != nil {
		t.Fatalf("seed Run: %v", err)
	}

	imp, err := im.Run(ctx, "empty", &fakeReader{})
	if !errors.Is(err, ErrEmptySource) {
		t.Fatalf("err = %v, want ErrEmptySource", err)
	}
	if imp.Status != storage.ImportFailed {
		t.Errorf("status = %q, want failed", imp.Status)
	}

	n, err := store.CountInteractions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("interactions = %d, want previous 3", n)
	}
}

func TestImporter_ReadErrorRecordsFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := NewImporter(store).Run(ctx, "bad", &fakeReader{records: fakeRecords(2), readErr: errors.New("socket closed")})
	if err == nil {
		t.Fatal("expected error")
	}

	got, err := store.GetImport(ctx, "bad")
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if got.Status != storage.ImportFailed || got.LastError != "socket closed" {
		t.Errorf("import = %+v", got)
	}
}

func TestImporter_FromParquet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	r, err := Open(Spec{Kind: KindParquet, Path: writeDemoParquet(t)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	imp, err := NewImporter(store).Run(ctx, "", r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if imp.Rows != 3 || imp.Kind != KindParquet {
		t.Errorf("import = %+v", imp)
	}
	keys, err := store.CustomerKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != 1000001 || keys[1] != 3655615 {
		t.Errorf("keys = %v", keys)
	}
}
