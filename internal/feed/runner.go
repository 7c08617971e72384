package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.brokerconsole.dev/internal/common/metrics"
)

// ErrStopped is returned by commands sent to a runner that has stopped.
var ErrStopped = errors.New("feed runner stopped")

// Source delivers throughput snapshots.
type Source interface {
	// Fetch returns the current snapshot.
	Fetch(ctx context.Context) (Snapshot, error)

	// Name identifies the source in logs and metrics.
	Name() string
}

// Warner records operator-facing warnings.
type Warner interface {
	AddWarning(category, severity, message, source string)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Interval between polls
	Interval time.Duration

	// Window is the retained history
	Window time.Duration

	// FetchTimeout bounds a single Fetch call
	FetchTimeout time.Duration
}

// DefaultRunnerConfig returns the dashboard defaults: a poll every five
// seconds over a ten minute window.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Interval:     5 * time.Second,
		Window:       10 * time.Minute,
		FetchTimeout: 4 * time.Second,
	}
}

type command struct {
	fn   func(*Feed)
	done chan struct{}
}

// Runner owns a Feed on a single goroutine. It polls the source on a fixed
// interval and serialises reads and focus changes through a command channel.
type Runner struct {
	cfg    RunnerConfig
	source Source
	warner Warner
	now    func() time.Time

	feed *Feed
	cmds chan command
	done chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool

	subMu   sync.Mutex
	subs    map[int]chan View
	nextSub int
	closed  bool

	lastSuccess atomic.Int64
	failing     atomic.Bool
	dropping    bool
}

// RunnerOption configures optional Runner behaviour.
type RunnerOption func(*Runner)

// WithWarner records poll failures and feed resets as warnings.
func WithWarner(w Warner) RunnerOption {
	return func(r *Runner) { r.warner = w }
}

// WithClock overrides the wall clock used to stamp samples.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner for the given source.
func NewRunner(source Source, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	def := DefaultRunnerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.FetchTimeout > cfg.Interval {
		cfg.FetchTimeout = cfg.Interval
	}

	r := &Runner{
		cfg:    cfg,
		source: source,
		now:    time.Now,
		feed:   New(),
		cmds:   make(chan command),
		done:   make(chan struct{}),
		subs:   make(map[int]chan View),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements lifecycle.Service.
func (r *Runner) Name() string { return "throughput-feed" }

// Start runs the poll loop until ctx is cancelled or Stop is called.
// A runner can be started once.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if r.cancel != nil {
		r.mu.Unlock()
		return fmt.Errorf("feed runner already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	defer close(r.done)
	defer cancel()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.Info("Throughput feed started",
		"source", r.source.Name(),
		"interval", r.cfg.Interval,
		"window", r.cfg.Window)

	r.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.stopped = true
			r.mu.Unlock()
			r.closeSubscribers()
			slog.Info("Throughput feed stopped")
			return nil
		case <-ticker.C:
			r.poll(ctx)
		case cmd := <-r.cmds:
			cmd.fn(r.feed)
			close(cmd.done)
		}
	}
}

// Stop cancels the poll loop and waits for it to exit.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel == nil {
		r.closeSubscribers()
		return nil
	}
	cancel()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports an error when no poll has succeeded within three intervals.
func (r *Runner) Health() error {
	last := r.lastSuccess.Load()
	if last == 0 {
		return fmt.Errorf("no successful poll yet")
	}
	age := r.now().Sub(time.Unix(0, last))
	if age > 3*r.cfg.Interval {
		return fmt.Errorf("last successful poll %s ago", age.Truncate(time.Second))
	}
	return nil
}

// Config returns the effective runner configuration.
func (r *Runner) Config() RunnerConfig { return r.cfg }

func (r *Runner) poll(ctx context.Context) {
	source := r.source.Name()
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	snap, err := r.source.Fetch(fetchCtx)
	cancel()
	metrics.FeedPollDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	// Nothing may touch the feed once the runner is shutting down.
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		metrics.FeedPolls.WithLabelValues(source, "error").Inc()
		slog.Warn("Throughput poll failed", "source", source, "error", err)
		if !r.failing.Swap(true) {
			r.warn("SOURCE", "ERROR", fmt.Sprintf("Throughput source %s failed: %v", source, err))
		}
		return
	}
	metrics.FeedPolls.WithLabelValues(source, "success").Inc()
	if r.failing.Swap(false) {
		slog.Info("Throughput source recovered", "source", source)
	}

	now := r.now()
	r.reconcile(snap.Entities)

	report := r.feed.Tick(now, r.cfg.Window, snap.Values)
	r.record(report, snap.Rejected)
	r.lastSuccess.Store(now.UnixNano())

	r.publish(r.feed.View(now, r.cfg.Window))
}

// reconcile rebuilds the feed when the entity membership changed.
func (r *Runner) reconcile(entities []string) {
	next := NormalizeEntities(entities)
	if next == nil || slices.Equal(next, r.feed.entities) {
		return
	}
	previous := len(r.feed.entities)
	if !r.feed.Initialize(next) {
		return
	}
	metrics.FeedResets.Inc()
	metrics.FeedSeries.Set(float64(r.feed.Len()))
	slog.Info("Throughput feed initialized", "entities", next)
	if previous > 0 {
		r.warn("FEED", "INFO", fmt.Sprintf("Broker membership changed, throughput history reset (%d entities)", len(next)))
	}
}

func (r *Runner) record(report Report, rejected int) {
	metrics.FeedSamplesAppended.Add(float64(report.Appended))
	metrics.FeedSamplesPruned.Add(float64(report.Pruned))
	metrics.FeedSamplesReplaced.Add(float64(report.Replaced))
	for _, d := range report.Dropped {
		metrics.FeedSamplesDropped.WithLabelValues(d.Reason).Inc()
	}
	if rejected > 0 {
		metrics.FeedSamplesDropped.WithLabelValues("rejected").Add(float64(rejected))
	}

	dropped := len(report.Dropped) + rejected
	if dropped > 0 {
		slog.Debug("Dropped throughput samples", "count", dropped, "drops", report.Dropped)
		if !r.dropping {
			r.warn("SNAPSHOT", "WARNING", fmt.Sprintf("Dropped %d malformed throughput samples", dropped))
		}
	}
	r.dropping = dropped > 0
}

func (r *Runner) warn(category, severity, message string) {
	if r.warner != nil {
		r.warner.AddWarning(category, severity, message, r.Name())
	}
}

// do runs fn on the runner goroutine.
func (r *Runner) do(ctx context.Context, fn func(*Feed)) error {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-cmd.done
	return nil
}

// SetFocus makes one series visible. It returns false when the entity or
// direction is unknown, in which case nothing changes.
func (r *Runner) SetFocus(ctx context.Context, entity string, dir Direction) (bool, error) {
	var applied bool
	err := r.do(ctx, func(f *Feed) {
		applied = f.SetFocus(entity, dir)
		if applied {
			r.publish(f.View(r.now(), r.cfg.Window))
		}
	})
	if err != nil {
		return false, err
	}
	if applied {
		slog.Debug("Throughput focus changed", "entity", entity, "direction", dir)
	}
	return applied, nil
}

// View returns a copy of the current feed.
func (r *Runner) View(ctx context.Context) (View, error) {
	var view View
	err := r.do(ctx, func(f *Feed) {
		view = f.View(r.now(), r.cfg.Window)
	})
	return view, err
}

// Subscribe registers for a View after every poll and focus change. Slow
// subscribers only see the latest view. The channel is closed when the
// runner stops or cancel is called.
func (r *Runner) Subscribe() (<-chan View, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	ch := make(chan View, 1)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	metrics.FeedSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			defer r.subMu.Unlock()
			if c, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(c)
				metrics.FeedSubscribers.Dec()
			}
		})
	}
}

func (r *Runner) publish(view View) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- view:
			continue
		default:
		}
		// Replace the stale view the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}

func (r *Runner) closeSubscribers() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
		metrics.FeedSubscribers.Dec()
	}
}
