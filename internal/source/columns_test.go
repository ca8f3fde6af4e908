package source

import (
	"errors"
	"strings"
	"testing"
)

func TestColumns_Validate(t *testing.T) {
	if err := DefaultColumns().Validate(); err != nil {
		t.Fatalf("default columns invalid: %v", err)
	}

	missing := DefaultColumns()
	missing.SessionDate = ""
	if err := missing.Validate(); err == nil {
		t.Error("expected error without session_date")
	}

	injected := DefaultColumns()
	injected.Offer = `offer"; DROP TABLE x; --`
	if err := injected.Validate(); err == nil {
		t.Error("expected error for non-identifier column")
	}

	optional := Columns{LoanID: "id", SessionDate: "ts"}
	if err := optional.Validate(); err != nil {
		t.Errorf("optional columns should be allowed empty: %v", err)
	}
}

func TestColumns_SelectList(t *testing.T) {
	got := Columns{LoanID: "id", SessionDate: "ts", Converted: "conv"}.selectList(quoteDouble)
	want := `"id", "ts", NULL, NULL, "conv", NULL, NULL, NULL, NULL`
	if got != want {
		t.Errorf("selectList = %s, want %s", got, want)
	}

	got = DefaultColumns().selectList(quoteBacktick)
	if !strings.HasPrefix(got, "`loan_id`, `session_date`, `offer___carousel`") {
		t.Errorf("selectList = %s", got)
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"parquet ok", Spec{Kind: KindParquet, Path: "/data/demo.parquet"}, false},
		{"parquet without path", Spec{Kind: KindParquet}, true},
		{"mysql ok", Spec{Kind: KindMySQL, DSN: "mysql://u:p@h/db", Table: "events"}, false},
		{"mysql without table", Spec{Kind: KindMySQL, DSN: "mysql://u:p@h/db"}, true},
		{"mysql bad table", Spec{Kind: KindMySQL, DSN: "mysql://u:p@h/db", Table: "a-b"}, true},
		{"bad columns", Spec{Kind: KindParquet, Path: "x", Columns: &Columns{LoanID: "id"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := (Spec{Kind: "csv"}).Validate(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
	if _, err := Open(Spec{Kind: "csv"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Open err = %v, want ErrUnknownKind", err)
	}
}

func TestSpec_MergeAndLocation(t *testing.T) {
	base := Spec{Kind: KindMySQL, DSN: "mysql://u:pw@db:3306/fsi", Table: "events"}
	got := Spec{Kind: KindMySQL, Table: "events_v2"}.Merge(base)
	if got.DSN != base.DSN || got.Table != "events_v2" {
		t.Errorf("Merge = %+v", got)
	}
	if loc := got.Location(); loc != "db:3306/fsi.events_v2" {
		t.Errorf("Location = %q", loc)
	}

	pq := Spec{Kind: KindParquet}.Merge(Spec{Kind: KindParquet, Path: "/data/demo.parquet"})
	if pq.Location() != "/data/demo.parquet" {
		t.Errorf("parquet Location = %q", pq.Location())
	}
}
