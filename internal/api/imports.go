package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/offerjourney/internal/ingest"
	"github.com/kalambet/offerjourney/internal/storage"
)

const maxImportBodySize = 64 << 10

// ImportStore is the storage the /imports endpoints use.
type ImportStore interface {
	ingest.Queue
	GetImport(ctx context.Context, id string) (storage.Import, error)
	ListImports(ctx context.Context, limit int) ([]storage.Import, error)
}

// createImportRequest is the POST /imports body. The DSN and column
// mapping are not accepted here; they come from configuration only.
type createImportRequest struct {
	Kind        string `json:"kind"`
	ParquetPath string `json:"parquet_path"`
	MySQLTable  string `json:"mysql_table"`
}

func handleCreateImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		var body createImportRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		req := ingest.Request{
			Kind:        body.Kind,
			ParquetPath: body.ParquetPath,
			MySQLTable:  body.MySQLTable,
		}
		if req.Kind == "" {
			req.Kind = deps.DefaultKind
		}
		if err := req.Spec(deps.SourceDefaults).Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		imp, err := ingest.Enqueue(r.Context(), deps.Imports, req, deps.SourceDefaults)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, imp)
	}
}

func handleListImports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", v)
				return
			}
			if n > 100 {
				n = 100
			}
			limit = n
		}

		imports, err := deps.Imports.ListImports(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing imports: %v", err)
			return
		}
		if imports == nil {
			imports = []storage.Import{}
		}
		writeJSON(w, http.StatusOK, imports)
	}
}

func handleGetImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imp, err := deps.Imports.GetImport(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "import not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, imp)
	}
}
