package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.brokerconsole.dev/internal/broker"
)

// OverviewClient is the part of the broker client used for the overview
type OverviewClient interface {
	MainOverview(ctx context.Context) (*broker.Overview, error)
}

// OverviewHandler serves the broker's system components
type OverviewHandler struct {
	client OverviewClient
}

// NewOverviewHandler creates an overview handler
func NewOverviewHandler(client OverviewClient) *OverviewHandler {
	return &OverviewHandler{client: client}
}

// RegisterRoutes registers overview routes
func (h *OverviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/overview", func(r chi.Router) {
		r.Get("/", h.Summary)
		r.Get("/components", h.Components)
	})
}

type overviewSummary struct {
	TotalStations int   `json:"total_stations"`
	TotalMessages int64 `json:"total_messages"`
	Components    int   `json:"components"`
	HealthyPods   int   `json:"healthy_pods"`
	DesiredPods   int   `json:"desired_pods"`
	K8sEnv        bool  `json:"k8s_env"`
}

type componentsResponse struct {
	SystemComponents []broker.SystemComponent `json:"system_components"`
	K8sEnv           bool                     `json:"k8s_env"`
}

// Summary returns station and message totals and pod counts
func (h *OverviewHandler) Summary(w http.ResponseWriter, r *http.Request) {
	overview, err := h.client.MainOverview(r.Context())
	if err != nil {
		WriteBrokerError(w, "fetch overview", err)
		return
	}

	summary := overviewSummary{
		TotalStations: overview.TotalStations,
		TotalMessages: overview.TotalMessages,
		Components:    len(overview.SystemComponents),
		K8sEnv:        overview.K8sEnv,
	}
	for _, c := range overview.SystemComponents {
		summary.DesiredPods += c.DesiredPods
		for _, container := range c.Components {
			if container.Healthy {
				summary.HealthyPods++
			}
		}
	}
	WriteJSON(w, http.StatusOK, summary)
}

// Components returns the system component tree: component to containers
func (h *OverviewHandler) Components(w http.ResponseWriter, r *http.Request) {
	overview, err := h.client.MainOverview(r.Context())
	if err != nil {
		WriteBrokerError(w, "fetch system components", err)
		return
	}

	components := overview.SystemComponents
	if components == nil {
		components = []broker.SystemComponent{}
	}
	WriteJSON(w, http.StatusOK, componentsResponse{
		SystemComponents: components,
		K8sEnv:           overview.K8sEnv,
	})
}
