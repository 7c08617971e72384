package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "console"

var (
	// Feed metrics

	// FeedPolls tracks snapshot polls by result (success, error)
	FeedPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "polls_total",
			Help:      "Total throughput snapshot polls",
		},
		[]string{"source", "result"},
	)

	// FeedPollDuration tracks how long a snapshot fetch takes
	FeedPollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "poll_duration_seconds",
			Help:      "Time to fetch a throughput snapshot",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	// FeedSamplesAppended tracks samples added to series
	FeedSamplesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "samples_appended_total",
			Help:      "Total samples appended to throughput series",
		},
	)

	// FeedSamplesReplaced tracks samples overwritten at an identical timestamp
	FeedSamplesReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "samples_replaced_total",
			Help:      "Total samples replaced by a later value at the same timestamp",
		},
	)

	// FeedSamplesDropped tracks discarded samples by reason
	FeedSamplesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "samples_dropped_total",
			Help:      "Total samples dropped from snapshots",
		},
		[]string{"reason"}, // missing, negative, not_finite, out_of_order, rejected
	)

	// FeedSamplesPruned tracks samples that left the rolling window
	FeedSamplesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "samples_pruned_total",
			Help:      "Total samples pruned from the rolling window",
		},
	)

	// FeedResets tracks series rebuilds caused by entity membership changes
	FeedResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "resets_total",
			Help:      "Total feed rebuilds after an entity list change",
		},
	)

	// FeedSeries tracks the current number of series
	FeedSeries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "series",
			Help:      "Number of throughput series held by the feed",
		},
	)

	// FeedSubscribers tracks live stream subscribers
	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Number of live throughput stream subscribers",
		},
	)

	// Source metrics

	// SourceMessagesReceived tracks pushed snapshots received over NATS
	SourceMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "messages_received_total",
			Help:      "Total pushed throughput snapshots received",
		},
		[]string{"result"}, // accepted, malformed
	)

	// SourceCacheLookups tracks snapshot cache lookups
	SourceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "cache_lookups_total",
			Help:      "Total snapshot cache lookups",
		},
		[]string{"result"}, // hit, miss, error
	)

	// Broker client metrics

	// BrokerRequests tracks requests made to the broker API
	BrokerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Total requests made to the broker API",
		},
		[]string{"endpoint", "status_code"},
	)

	// BrokerRequestDuration tracks broker API latency
	BrokerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "request_duration_seconds",
			Help:      "Broker API request duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	// BrokerCircuitBreakerState tracks the broker client circuit breaker
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	BrokerCircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// BrokerCircuitBreakerTrips tracks circuit breaker trip events
	BrokerCircuitBreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total circuit breaker trip events",
		},
	)

	// HTTP API metrics

	// HTTPRequestsTotal tracks console API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total console API requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks console API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Console API request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// SupportRateLimited tracks support requests rejected by the limiter
	SupportRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "support_rate_limited_total",
			Help:      "Total support requests rejected by rate limiting",
		},
	)
)

// CircuitBreakerState constants
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)
