// Package broker is the HTTP client for the broker's management API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"go.brokerconsole.dev/internal/common/metrics"
)

// StatusUserError is the status the broker uses for errors meant to be
// shown to the user verbatim.
const StatusUserError = 555

// Sentinel errors. APIError matches them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("rejected by broker")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("broker unavailable")
)

// APIError is a non-2xx response from the broker.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("broker returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("broker returned status %d: %s", e.StatusCode, e.Message)
}

// Is maps the status code onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrValidation:
		return e.StatusCode == StatusUserError ||
			e.StatusCode == http.StatusBadRequest ||
			e.StatusCode == http.StatusConflict ||
			e.StatusCode == http.StatusUnprocessableEntity
	case ErrUnavailable:
		return e.StatusCode >= 500 && e.StatusCode != StatusUserError
	}
	return false
}

// TokenSource supplies the bearer token for broker requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(ctx context.Context) (string, error) { return string(t), nil }

// Config configures the broker client
type Config struct {
	// BaseURL of the management API, including any path prefix
	BaseURL string

	// Timeout for a single HTTP request
	Timeout time.Duration

	// MaxRetries is how many times a read that failed transiently is
	// retried. Writes are never retried.
	MaxRetries int

	// BaseBackoff between retries (multiplied by attempt number)
	BaseBackoff time.Duration

	// CircuitBreaker settings
	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32        // Requests allowed while half-open
	CircuitBreakerInterval    time.Duration // Stats window
	CircuitBreakerRatio       float64       // Failure ratio to trip
	CircuitBreakerTimeout     time.Duration // Time in open state before half-open
	CircuitBreakerMinRequests uint32        // Min requests before evaluating ratio
}

// DefaultConfig returns defaults sized for the dashboard poll interval.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:                   "http://localhost:9000/api",
		Timeout:                   5 * time.Second,
		MaxRetries:                2,
		BaseBackoff:               250 * time.Millisecond,
		CircuitBreakerEnabled:     true,
		CircuitBreakerRequests:    1,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerTimeout:     15 * time.Second,
		CircuitBreakerMinRequests: 5,
	}
}

// Client calls the broker management API.
type Client struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	token          TokenSource
	maxRetries     int
	baseBackoff    time.Duration
	warner         Warner
}

// Warner records operator-facing warnings.
type Warner interface {
	AddWarning(category, severity, message, source string)
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource authenticates requests with a bearer token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithWarner raises a warning when the circuit breaker opens or closes.
func WithWarner(w Warner) Option {
	return func(c *Client) { c.warner = w }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a broker client
func NewClient(cfg *Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}

	if cfg.CircuitBreakerEnabled {
		c.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "broker-api",
			MaxRequests: cfg.CircuitBreakerRequests,
			Interval:    cfg.CircuitBreakerInterval,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.CircuitBreakerMinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.CircuitBreakerRatio
			},
			// Only outages count against the breaker; rejected input does not.
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, ErrUnavailable)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())

				var stateValue float64
				switch to {
				case gobreaker.StateClosed:
					stateValue = float64(metrics.CircuitBreakerClosed)
				case gobreaker.StateOpen:
					stateValue = float64(metrics.CircuitBreakerOpen)
					metrics.BrokerCircuitBreakerTrips.Inc()
				case gobreaker.StateHalfOpen:
					stateValue = float64(metrics.CircuitBreakerHalfOpen)
				}
				metrics.BrokerCircuitBreakerState.Set(stateValue)
				c.warnStateChange(from, to)
			},
		})
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) warnStateChange(from, to gobreaker.State) {
	if c.warner == nil {
		return
	}
	switch {
	case to == gobreaker.StateOpen:
		c.warner.AddWarning("BROKER", "ERROR",
			fmt.Sprintf("Broker API at %s is unavailable, circuit breaker opened", c.baseURL), "broker-api")
	case to == gobreaker.StateClosed && from != gobreaker.StateClosed:
		c.warner.AddWarning("BROKER", "INFO", "Broker API recovered, circuit breaker closed", "broker-api")
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Health returns an error while the circuit breaker is open.
func (c *Client) Health() error {
	if c.circuitBreaker != nil && c.circuitBreaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
	}
	return nil
}

// doRequest performs a request through the circuit breaker, retrying
// transient read failures, and decodes a JSON response into result.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	call := func() (interface{}, error) {
		return nil, c.executeWithRetry(ctx, method, path, body, result)
	}

	var err error
	if c.circuitBreaker != nil {
		_, err = c.circuitBreaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("Circuit breaker open", "method", method, "path", path)
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	} else {
		_, err = call()
	}
	return err
}

func (c *Client) executeWithRetry(ctx context.Context, method, path string, body, result interface{}) error {
	attempts := 1
	if method == http.MethodGet {
		attempts = c.maxRetries + 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.executeOnce(ctx, method, path, body, result)
		if lastErr == nil || !errors.Is(lastErr, ErrUnavailable) {
			return lastErr
		}

		if attempt < attempts {
			backoff := time.Duration(attempt) * c.baseBackoff
			slog.Debug("Retrying broker request after backoff",
				"path", path,
				"attempt", attempt,
				"backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

func (c *Client) executeOnce(ctx context.Context, method, path string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve broker token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.BrokerRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BrokerRequests.WithLabelValues(path, "error").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.BrokerRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(respBody, &errBody) == nil {
			apiErr.Message = errBody.Message
			if apiErr.Message == "" {
				apiErr.Message = errBody.Error
			}
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
