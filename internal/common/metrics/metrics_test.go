package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// === Feed Metrics Tests ===

func TestFeedPolls_Labels(t *testing.T) {
	counter := FeedPolls.WithLabelValues("test-source", "success")
	before := testutil.ToFloat64(counter)

	counter.Inc()
	FeedPolls.WithLabelValues("test-source", "error").Inc()

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("Expected success counter to increase by 1, got %v", got)
	}
}

func TestFeedSamples_Counters(t *testing.T) {
	before := testutil.ToFloat64(FeedSamplesAppended)
	FeedSamplesAppended.Add(4)
	if got := testutil.ToFloat64(FeedSamplesAppended) - before; got != 4 {
		t.Errorf("Expected appended to increase by 4, got %v", got)
	}

	dropped := FeedSamplesDropped.WithLabelValues("negative")
	before = testutil.ToFloat64(dropped)
	dropped.Inc()
	if got := testutil.ToFloat64(dropped) - before; got != 1 {
		t.Errorf("Expected dropped to increase by 1, got %v", got)
	}
}

func TestFeedGauges(t *testing.T) {
	FeedSeries.Set(6)
	if got := testutil.ToFloat64(FeedSeries); got != 6 {
		t.Errorf("Expected 6 series, got %v", got)
	}

	FeedSubscribers.Set(0)
	FeedSubscribers.Inc()
	FeedSubscribers.Inc()
	FeedSubscribers.Dec()
	if got := testutil.ToFloat64(FeedSubscribers); got != 1 {
		t.Errorf("Expected 1 subscriber, got %v", got)
	}
}

func TestFeedPollDuration_Observe(t *testing.T) {
	for _, d := range []float64{0.001, 0.02, 0.3, 1.5} {
		FeedPollDuration.WithLabelValues("test-histogram").Observe(d)
	}

	if n := testutil.CollectAndCount(FeedPollDuration); n < 1 {
		t.Errorf("Expected at least 1 histogram series, got %d", n)
	}
}

// === Broker Client Metrics Tests ===

func TestBrokerCircuitBreakerState_Values(t *testing.T) {
	for _, state := range []float64{CircuitBreakerOpen, CircuitBreakerHalfOpen, CircuitBreakerClosed} {
		BrokerCircuitBreakerState.Set(state)
		if got := testutil.ToFloat64(BrokerCircuitBreakerState); got != state {
			t.Errorf("Expected state %v, got %v", state, got)
		}
	}
}

func TestCircuitBreakerConstants(t *testing.T) {
	if CircuitBreakerClosed != 0 {
		t.Errorf("Expected CircuitBreakerClosed=0, got %d", CircuitBreakerClosed)
	}
	if CircuitBreakerOpen != 1 {
		t.Errorf("Expected CircuitBreakerOpen=1, got %d", CircuitBreakerOpen)
	}
	if CircuitBreakerHalfOpen != 2 {
		t.Errorf("Expected CircuitBreakerHalfOpen=2, got %d", CircuitBreakerHalfOpen)
	}
}

// === Metric Name Tests ===

func TestMetricNamingConvention(t *testing.T) {
	collectors := map[string]prometheus.Collector{
		"console_feed_polls_total":                FeedPolls,
		"console_feed_series":                     FeedSeries,
		"console_source_cache_lookups_total":      SourceCacheLookups,
		"console_broker_requests_total":           BrokerRequests,
		"console_http_requests_total":             HTTPRequestsTotal,
		"console_http_support_rate_limited_total": SupportRateLimited,
	}

	for name, c := range collectors {
		ch := make(chan *prometheus.Desc, 1)
		c.Describe(ch)
		desc := <-ch
		if !strings.Contains(desc.String(), `"`+name+`"`) {
			t.Errorf("Expected metric %s, got %s", name, desc.String())
		}
	}
}

func TestMetricsLint(t *testing.T) {
	SupportRateLimited.Inc()
	problems, err := testutil.CollectAndLint(SupportRateLimited)
	if err != nil {
		t.Fatalf("CollectAndLint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("Lint problem on %s: %s", p.Metric, p.Text)
	}
}

func BenchmarkCounterInc(b *testing.B) {
	counter := FeedPolls.WithLabelValues("bench-source", "success")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		counter.Inc()
	}
}

func BenchmarkHistogramObserve(b *testing.B) {
	histogram := FeedPollDuration.WithLabelValues("bench-source")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		histogram.Observe(0.123)
	}
}
