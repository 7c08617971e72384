package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"go.brokerconsole.dev/internal/common/metrics"
	"go.brokerconsole.dev/internal/feed"
)

// NATSConfig configures the pushed snapshot subscription.
type NATSConfig struct {
	URL     string
	Subject string

	// MaxAge is how long a pushed snapshot stays usable. Older snapshots
	// are reported as ErrNoSnapshot so the feed does not repeat stale data.
	MaxAge time.Duration
}

// NATSSource keeps the latest snapshot published on a NATS subject.
type NATSSource struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	ownConn bool
	maxAge  time.Duration
	now     func() time.Time

	mu         sync.RWMutex
	latest     feed.Snapshot
	receivedAt time.Time
}

// NewNATSSource connects to NATS and subscribes to the snapshot subject.
func NewNATSSource(cfg NATSConfig) (*NATSSource, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("broker-console"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s, err := NewNATSSourceWithConn(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.ownConn = true
	return s, nil
}

// NewNATSSourceWithConn subscribes on an existing connection.
func NewNATSSourceWithConn(conn *nats.Conn, cfg NATSConfig) (*NATSSource, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("NATS subject is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 15 * time.Second
	}

	s := &NATSSource{
		conn:   conn,
		maxAge: cfg.MaxAge,
		now:    time.Now,
	}

	sub, err := conn.Subscribe(cfg.Subject, s.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Subject, err)
	}
	s.sub = sub

	slog.Info("Subscribed to throughput snapshots", "subject", cfg.Subject)
	return s, nil
}

func (s *NATSSource) handle(msg *nats.Msg) {
	snap, err := DecodeSnapshot(msg.Data)
	if err != nil {
		metrics.SourceMessagesReceived.WithLabelValues("malformed").Inc()
		slog.Warn("Discarding malformed throughput message", "subject", msg.Subject, "error", err)
		return
	}
	metrics.SourceMessagesReceived.WithLabelValues("accepted").Inc()

	s.mu.Lock()
	s.latest = snap
	s.receivedAt = s.now()
	s.mu.Unlock()
}

// Name implements feed.Source.
func (s *NATSSource) Name() string { return "nats" }

// Fetch returns the most recent pushed snapshot.
func (s *NATSSource) Fetch(ctx context.Context) (feed.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.receivedAt.IsZero() {
		return feed.Snapshot{}, ErrNoSnapshot
	}
	if age := s.now().Sub(s.receivedAt); age > s.maxAge {
		return feed.Snapshot{}, fmt.Errorf("%w: last snapshot is %s old", ErrNoSnapshot, age.Truncate(time.Second))
	}
	return s.latest, nil
}

// Health reports whether the NATS connection is up.
func (s *NATSSource) Health() error {
	if !s.conn.IsConnected() {
		return fmt.Errorf("NATS connection %s", s.conn.Status())
	}
	return nil
}

// Close unsubscribes and, if the source opened it, closes the connection.
func (s *NATSSource) Close() error {
	var err error
	if s.sub != nil {
		err = s.sub.Unsubscribe()
	}
	if s.ownConn {
		s.conn.Close()
	}
	return err
}
