package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/offerjourney/internal/dataset"
	"github.com/kalambet/offerjourney/internal/journey"
)

type customerListResponse struct {
	Customers []int64 `json:"customers"`
	Default   int64   `json:"default"`
}

// customerResponse adds the derived checking balance to a profile.
type customerResponse struct {
	dataset.Customer
	CheckingBalance float64            `json:"checking_balance"`
	Comparison      journey.Comparison `json:"comparison"`
	MaxStep         int                `json:"max_step"`
}

func handleListCustomers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := deps.Service.CustomerKeys(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing customers: %v", err)
			return
		}
		def, err := deps.Service.DefaultCustomer(r.Context(), deps.DefaultCustomer)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolving default customer: %v", err)
			return
		}
		if keys == nil {
			keys = []int64{}
		}
		writeJSON(w, http.StatusOK, customerListResponse{Customers: keys, Default: def})
	}
}

func handleGetCustomer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := parseKey(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		sess, err := deps.Service.Session(r.Context(), key)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, customerResponse{
			Customer:        sess.Customer,
			CheckingBalance: sess.Customer.CheckingBalance(),
			Comparison:      sess.Comparison,
			MaxStep:         sess.MaxStep,
		})
	}
}

// handleJourneys returns both journeys and their comparison, or a single
// journey when ?strategy= is given.
func handleJourneys(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := parseKey(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if name := r.URL.Query().Get("strategy"); name != "" {
			strategy, err := journey.ParseStrategy(name)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			j, err := deps.Service.Journey(r.Context(), key, strategy)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
			writeJSON(w, http.StatusOK, j)
			return
		}

		sess, err := deps.Service.Session(r.Context(), key)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleStep(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := parseKey(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		step, err := strconv.Atoi(chi.URLParam(r, "step"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid step %q", chi.URLParam(r, "step"))
			return
		}

		sess, err := deps.Service.Session(r.Context(), key)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		frame, err := sess.Frame(step)
		if errors.Is(err, journey.ErrStepOutOfRange) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, frame)
	}
}

func handleTimeline(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := parseKey(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		sess, err := deps.Service.Session(r.Context(), key)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Timeline())
	}
}
