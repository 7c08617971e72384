package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go.brokerconsole.dev/internal/feed"
)

// FeedService is the throughput feed as seen by the HTTP layer.
// *feed.Runner satisfies it.
type FeedService interface {
	View(ctx context.Context) (feed.View, error)
	SetFocus(ctx context.Context, entity string, dir feed.Direction) (bool, error)
	Subscribe() (<-chan feed.View, func())
}

// ThroughputHandler serves the throughput series
type ThroughputHandler struct {
	feed      FeedService
	heartbeat time.Duration
}

// NewThroughputHandler creates a throughput handler
func NewThroughputHandler(f FeedService) *ThroughputHandler {
	return &ThroughputHandler{feed: f, heartbeat: 15 * time.Second}
}

// RegisterRoutes registers throughput routes
func (h *ThroughputHandler) RegisterRoutes(r chi.Router) {
	r.Route("/throughput", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/entities", h.Entities)
		r.Put("/focus", h.Focus)
		r.Get("/stream", h.Stream)
	})
}

// focusRequest selects the visible series
type focusRequest struct {
	Entity    string `json:"entity"`
	Direction string `json:"direction"`
}

// entitiesResponse lists the selectable entities
type entitiesResponse struct {
	Entities []string       `json:"entities"`
	Focus    feed.SeriesKey `json:"focus"`
}

// Get returns every series, or only the visible one with ?visible=true
func (h *ThroughputHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}

	if visible, _ := strconv.ParseBool(r.URL.Query().Get("visible")); visible {
		view.Series = view.Visible()
	}
	WriteJSON(w, http.StatusOK, view)
}

// Entities returns the entity list in display order and the current focus
func (h *ThroughputHandler) Entities(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, entitiesResponse{Entities: view.Entities, Focus: view.Focus})
}

// Focus makes exactly one series visible
func (h *ThroughputHandler) Focus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if req.Entity == "" {
		WriteBadRequest(w, "entity is required")
		return
	}
	dir, ok := feed.ParseDirection(req.Direction)
	if !ok {
		WriteBadRequest(w, fmt.Sprintf("direction must be %q or %q", feed.Write, feed.Read))
		return
	}

	changed, err := h.feed.SetFocus(r.Context(), req.Entity, dir)
	if err != nil {
		h.writeFeedError(w, err)
		return
	}
	if !changed {
		WriteNotFound(w, fmt.Sprintf("Unknown entity %q", req.Entity))
		return
	}

	view, ok := h.view(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, entitiesResponse{Entities: view.Entities, Focus: view.Focus})
}

// Stream pushes one server-sent event per feed update
func (h *ThroughputHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "internal_error", "Streaming not supported")
		return
	}

	views, unsubscribe := h.feed.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Send the current state so the client does not wait a full interval
	if view, err := h.feed.View(r.Context()); err == nil {
		if err := writeEvent(w, "throughput", view); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case view, ok := <-views:
			if !ok {
				writeEvent(w, "closed", map[string]string{"reason": "feed stopped"})
				flusher.Flush()
				return
			}
			if err := writeEvent(w, "throughput", view); err != nil {
				slog.Debug("Throughput stream client went away", "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", id, event, payload)
	return err
}

func (h *ThroughputHandler) view(w http.ResponseWriter, r *http.Request) (feed.View, bool) {
	view, err := h.feed.View(r.Context())
	if err != nil {
		h.writeFeedError(w, err)
		return feed.View{}, false
	}
	return view, true
}

func (h *ThroughputHandler) writeFeedError(w http.ResponseWriter, err error) {
	if errors.Is(err, feed.ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		WriteServiceUnavailable(w, "Throughput feed is not running")
		return
	}
	slog.Error("Throughput feed request failed", "error", err)
	WriteError(w, http.StatusInternalServerError, "internal_error", "Throughput feed request failed")
}
