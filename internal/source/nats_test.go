package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"go.brokerconsole.dev/internal/feed"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := StartEmbeddedNATS("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("Failed to start NATS: %v", err)
	}
	t.Cleanup(func() { ns.Close() })

	conn, err := nats.Connect(ns.URL())
	if err != nil {
		t.Fatalf("Failed to connect to NATS: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func waitForSnapshot(t *testing.T, src *NATSSource) feed.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := src.Fetch(context.Background())
		if err == nil {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for a pushed snapshot")
	return feed.Snapshot{}
}

func TestNATSSource_ReceivesSnapshots(t *testing.T) {
	conn := startTestNATS(t)

	src, err := NewNATSSource(NATSConfig{URL: conn.ConnectedUrl(), Subject: "console.throughput"})
	if err != nil {
		t.Fatalf("NewNATSSource failed: %v", err)
	}
	defer src.Close()

	if _, err := src.Fetch(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot before any message, got %v", err)
	}

	payload := []byte(`[{"name": "total", "read": 10, "write": 20}, {"name": "brokerA", "read": 1, "write": 2}]`)
	if err := conn.Publish("console.throughput", payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	conn.Flush()

	snap := waitForSnapshot(t, src)
	if len(snap.Entities) != 2 {
		t.Errorf("Expected 2 entities, got %v", snap.Entities)
	}
	if snap.Values["total"][feed.Write] != 20 {
		t.Errorf("Expected write 20, got %v", snap.Values["total"][feed.Write])
	}
	if err := src.Health(); err != nil {
		t.Errorf("Expected healthy source, got %v", err)
	}
}

func TestNATSSource_IgnoresMalformedMessages(t *testing.T) {
	conn := startTestNATS(t)

	src, err := NewNATSSourceWithConn(conn, NATSConfig{Subject: "console.throughput"})
	if err != nil {
		t.Fatalf("NewNATSSourceWithConn failed: %v", err)
	}
	defer src.Close()

	conn.Publish("console.throughput", []byte(`[{"name": "total", "read": 1, "write": 1}]`))
	conn.Flush()
	waitForSnapshot(t, src)

	conn.Publish("console.throughput", []byte(`not json`))
	conn.Flush()
	time.Sleep(50 * time.Millisecond)

	snap, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if snap.Values["total"][feed.Write] != 1 {
		t.Errorf("Expected previous snapshot to be kept, got %v", snap.Values)
	}
}

func TestNATSSource_StaleSnapshot(t *testing.T) {
	conn := startTestNATS(t)

	src, err := NewNATSSourceWithConn(conn, NATSConfig{Subject: "console.throughput", MaxAge: time.Minute})
	if err != nil {
		t.Fatalf("NewNATSSourceWithConn failed: %v", err)
	}
	defer src.Close()

	conn.Publish("console.throughput", []byte(`[{"name": "total", "read": 1, "write": 1}]`))
	conn.Flush()
	waitForSnapshot(t, src)

	src.mu.Lock()
	src.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	src.mu.Unlock()

	if _, err := src.Fetch(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot for a stale snapshot, got %v", err)
	}
}

func TestNewNATSSource_RequiresSubject(t *testing.T) {
	conn := startTestNATS(t)
	if _, err := NewNATSSourceWithConn(conn, NATSConfig{}); err == nil {
		t.Error("Expected error without a subject")
	}
}
