// Package api serves the dashboard, the JSON API and the MCP endpoint.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/offerjourney/internal/comparison"
	"github.com/kalambet/offerjourney/internal/metrics"
	"github.com/kalambet/offerjourney/internal/source"
)

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Service *comparison.Service
	// Imports enables the /imports endpoints when set.
	Imports ImportStore
	Token   string
	// DefaultCustomer is the key the dashboard opens with when present.
	DefaultCustomer int64
	// DefaultKind is the source kind used when an import request omits it.
	DefaultKind    string
	SourceDefaults map[string]source.Spec
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// NewRouter builds the HTTP handler for all routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", handleDashboard(deps))

	r.Route("/customers", func(r chi.Router) {
		r.Get("/", handleListCustomers(deps))
		r.Get("/{key}", handleGetCustomer(deps))
		r.Get("/{key}/journeys", handleJourneys(deps))
		r.Get("/{key}/steps/{step}", handleStep(deps))
		r.Get("/{key}/timeline", handleTimeline(deps))
	})

	if deps.Imports != nil {
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))
			r.Post("/imports", handleCreateImport(deps))
			r.Get("/imports", handleListImports(deps))
			r.Get("/imports/{id}", handleGetImport(deps))
		})
	}

	if deps.MCP != nil {
		r.Handle("/mcp", deps.MCP)
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseKey(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "key")
	key, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid customer key %q", raw)
	}
	return key, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
