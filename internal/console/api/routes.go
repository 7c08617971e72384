package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.brokerconsole.dev/internal/common/health"
	"go.brokerconsole.dev/internal/console/warning"
)

// BrokerClient is everything the console asks of the broker.
// *broker.Client satisfies it.
type BrokerClient interface {
	OverviewClient
	UserClient
	SchemaClient
	SupportClient
}

// Dependencies wires the console router
type Dependencies struct {
	Feed          FeedService
	Broker        BrokerClient
	Warnings      warning.Service
	Health        *health.Checker
	CORSOrigins   []string
	SupportPerMin int
	SupportBurst  int
}

// NewRouter builds the console HTTP handler
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	if deps.Health != nil {
		r.Get("/q/health", deps.Health.HandleHealth)
		r.Get("/q/health/live", deps.Health.HandleLive)
		r.Get("/q/health/ready", deps.Health.HandleReady)
	}

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	r.Method(http.MethodGet, "/dashboard", DashboardHandler{})
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/dashboard", http.StatusFound)
	})

	r.Route("/api", func(r chi.Router) {
		NewThroughputHandler(deps.Feed).RegisterRoutes(r)
		NewOverviewHandler(deps.Broker).RegisterRoutes(r)
		NewUsersHandler(deps.Broker).RegisterRoutes(r)
		NewSchemasHandler(deps.Broker).RegisterRoutes(r)

		var warner Warner
		if deps.Warnings != nil {
			warner = deps.Warnings
			warning.NewHandler(deps.Warnings).RegisterRoutes(r)
		}
		NewSupportHandler(deps.Broker, deps.SupportPerMin, deps.SupportBurst, warner).RegisterRoutes(r)
	})

	return r
}
