package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Check represents a single health check
type Check struct {
	Name   string                 `json:"name"`
	Status Status                 `json:"status"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health endpoint response
type HealthResponse struct {
	Status Status  `json:"status"`
	Checks []Check `json:"checks,omitempty"`
}

// CheckFunc is a function that performs a health check
type CheckFunc func() Check

// Checker manages health checks for the application
type Checker struct {
	mu              sync.RWMutex
	livenessChecks  []CheckFunc
	readinessChecks []CheckFunc
}

// NewChecker creates a new health checker
func NewChecker() *Checker {
	return &Checker{
		livenessChecks:  make([]CheckFunc, 0),
		readinessChecks: make([]CheckFunc, 0),
	}
}

// AddLivenessCheck adds a liveness check
func (c *Checker) AddLivenessCheck(check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.livenessChecks = append(c.livenessChecks, check)
}

// AddReadinessCheck adds a readiness check
func (c *Checker) AddReadinessCheck(check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readinessChecks = append(c.readinessChecks, check)
}

func runChecks(checks []CheckFunc) HealthResponse {
	response := HealthResponse{
		Status: StatusUp,
		Checks: make([]Check, 0, len(checks)),
	}

	for _, checkFunc := range checks {
		check := checkFunc()
		response.Checks = append(response.Checks, check)
		if check.Status == StatusDown {
			response.Status = StatusDown
		}
	}

	return response
}

func (c *Checker) snapshot(live, ready bool) []CheckFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	checks := make([]CheckFunc, 0, len(c.livenessChecks)+len(c.readinessChecks))
	if live {
		checks = append(checks, c.livenessChecks...)
	}
	if ready {
		checks = append(checks, c.readinessChecks...)
	}
	return checks
}

// GetLiveness returns the liveness status
func (c *Checker) GetLiveness() HealthResponse {
	return runChecks(c.snapshot(true, false))
}

// GetReadiness returns the readiness status
func (c *Checker) GetReadiness() HealthResponse {
	return runChecks(c.snapshot(false, true))
}

// GetHealth returns the combined health status
func (c *Checker) GetHealth() HealthResponse {
	return runChecks(c.snapshot(true, true))
}

// HandleHealth handles the /q/health endpoint
func (c *Checker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, c.GetHealth())
}

// HandleLive handles the /q/health/live endpoint
func (c *Checker) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, c.GetLiveness())
}

// HandleReady handles the /q/health/ready endpoint
func (c *Checker) HandleReady(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, c.GetReadiness())
}

func writeResponse(w http.ResponseWriter, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")

	if response.Status == StatusDown {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// ErrorCheck creates a health check that is DOWN whenever fn returns an error
func ErrorCheck(name string, fn func() error) CheckFunc {
	return func() Check {
		if err := fn(); err != nil {
			return Check{
				Name:   name,
				Status: StatusDown,
				Data: map[string]interface{}{
					"error": err.Error(),
				},
			}
		}
		return Check{
			Name:   name,
			Status: StatusUp,
		}
	}
}

// FeedCheck creates a health check for the throughput feed.
// health reports poll staleness; source names the active snapshot source.
func FeedCheck(health func() error, source string) CheckFunc {
	return func() Check {
		check := ErrorCheck("ThroughputFeed", health)()
		if check.Data == nil {
			check.Data = map[string]interface{}{}
		}
		check.Data["source"] = source
		return check
	}
}

// BrokerAPICheck creates a health check for the broker API client
func BrokerAPICheck(health func() error, baseURL string) CheckFunc {
	return func() Check {
		check := ErrorCheck("BrokerAPI", health)()
		if check.Data == nil {
			check.Data = map[string]interface{}{}
		}
		check.Data["baseUrl"] = baseURL
		return check
	}
}

// RedisCheck creates a health check for redis.
// The ping function is called with a short timeout.
func RedisCheck(ping func(ctx context.Context) error) CheckFunc {
	return ErrorCheck("Redis", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return ping(ctx)
	})
}

// NATSCheck creates a health check for NATS
func NATSCheck(isConnected func() bool) CheckFunc {
	return func() Check {
		if !isConnected() {
			return Check{
				Name:   "NATS",
				Status: StatusDown,
			}
		}
		return Check{
			Name:   "NATS",
			Status: StatusUp,
		}
	}
}
