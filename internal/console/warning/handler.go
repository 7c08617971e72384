package warning

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP endpoints for the warning service
type Handler struct {
	service Service
}

// NewHandler creates a new warning HTTP handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers warning routes on the given router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/warnings", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/{id}/acknowledge", h.Acknowledge)
		r.Delete("/", h.ClearAll)
		r.Delete("/old", h.ClearOld)
	})
}

type clearedResponse struct {
	Cleared int `json:"cleared"`
}

// List returns warnings, optionally filtered by ?severity=, ?category= and
// ?unacknowledged=true
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Severity: q.Get("severity"),
		Category: q.Get("category"),
	}
	if v := q.Get("unacknowledged"); v != "" {
		unacked, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "unacknowledged must be a boolean", http.StatusBadRequest)
			return
		}
		filter.Unacknowledged = unacked
	}
	writeJSON(w, http.StatusOK, h.service.List(filter))
}

// Acknowledge acknowledges a warning
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.service.Acknowledge(id) {
		w.WriteHeader(http.StatusNoContent)
	} else {
		http.Error(w, "Warning not found", http.StatusNotFound)
	}
}

// ClearAll clears all warnings
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, clearedResponse{Cleared: h.service.Clear()})
}

// ClearOld clears warnings older than ?hours= (default 24)
func (h *Handler) ClearOld(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		n, err := strconv.Atoi(hoursStr)
		if err != nil || n <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = n
	}
	removed := h.service.ClearOlderThan(time.Duration(hours) * time.Hour)
	writeJSON(w, http.StatusOK, clearedResponse{Cleared: removed})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
