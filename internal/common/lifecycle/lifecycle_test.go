package lifecycle

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.brokerconsole.dev/internal/config"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// stubService runs start until it returns and reports health from healthErr.
type stubService struct {
	name      string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
	healthErr error
}

func (s *stubService) Name() string                    { return s.name }
func (s *stubService) Start(ctx context.Context) error { return s.start(ctx) }
func (s *stubService) Stop(ctx context.Context) error  { return s.stop(ctx) }
func (s *stubService) Health() error                   { return s.healthErr }

func blockingService(name string, rec *recorder) *stubService {
	return &stubService{
		name: name,
		start: func(ctx context.Context) error {
			rec.add("start " + name)
			<-ctx.Done()
			return nil
		},
		stop: func(ctx context.Context) error {
			rec.add("stop " + name)
			return nil
		},
	}
}

func init() {
	StartGrace = 10 * time.Millisecond
}

func TestSupervisor_StartsInOrderStopsInReverse(t *testing.T) {
	rec := &recorder{}
	sup := NewSupervisor(blockingService("feed", rec), blockingService("http", rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor did not stop")
	}

	events := rec.list()
	stops := []string{}
	for _, e := range events {
		if e == "stop feed" || e == "stop http" {
			stops = append(stops, e)
		}
	}
	if len(stops) != 2 || stops[0] != "stop http" || stops[1] != "stop feed" {
		t.Errorf("Expected reverse stop order, got %v", events)
	}
}

func TestSupervisor_StartupFailureStopsStarted(t *testing.T) {
	rec := &recorder{}
	failing := &stubService{
		name:  "broken",
		start: func(ctx context.Context) error { return errors.New("bind: address in use") },
		stop:  func(ctx context.Context) error { return nil },
	}
	sup := NewSupervisor(blockingService("feed", rec), failing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := sup.Run(ctx)
	if err == nil {
		t.Fatal("Expected startup error")
	}

	found := false
	for _, e := range rec.list() {
		if e == "stop feed" {
			found = true
		}
	}
	if !found {
		t.Error("Expected already-started service to be stopped")
	}
}

func TestSupervisor_Health(t *testing.T) {
	rec := &recorder{}
	healthy := blockingService("feed", rec)
	unhealthy := blockingService("http", rec)
	unhealthy.healthErr = errors.New("not serving")

	if err := NewSupervisor(healthy).Health(); err != nil {
		t.Errorf("Expected healthy, got %v", err)
	}
	if err := NewSupervisor(healthy, unhealthy).Health(); err == nil {
		t.Error("Expected unhealthy supervisor")
	}
}

func TestSupervisor_ServiceExitStopsOthers(t *testing.T) {
	rec := &recorder{}
	fail := make(chan error)
	dying := &stubService{
		name:  "http",
		start: func(ctx context.Context) error { return <-fail },
		stop:  func(ctx context.Context) error { return nil },
	}
	sup := NewSupervisor(blockingService("feed", rec), dying)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	fail <- errors.New("accept: too many open files")

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "service http failed") {
			t.Errorf("Expected http failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor did not stop after a service failed")
	}

	found := false
	for _, e := range rec.list() {
		if e == "stop feed" {
			found = true
		}
	}
	if !found {
		t.Error("Expected feed to be stopped after http failed")
	}
}

func TestRun_ParentCancel(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, blockingService("feed", rec)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHTTPService_StartStop(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	svc := NewHTTPService("http-server", server)

	if err := svc.Health(); err == nil {
		t.Error("Expected unhealthy before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if svc.Addr() == nil {
		t.Fatal("Expected a bound address")
	}
	if err := svc.Health(); err != nil {
		t.Errorf("Expected healthy while serving, got %v", err)
	}
	resp, err := http.Get("http://" + svc.Addr().String() + "/")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	if err := svc.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Start returned error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := svc.Health(); err == nil {
		t.Error("Expected unhealthy after stop")
	}
	if svc.Name() != "http-server" {
		t.Errorf("Expected name http-server, got %s", svc.Name())
	}
}

func TestHTTPService_ListenError(t *testing.T) {
	server := &http.Server{Addr: "256.0.0.1:http", Handler: http.NotFoundHandler()}
	svc := NewHTTPService("http-server", server)

	if err := svc.Start(context.Background()); err == nil {
		t.Error("Expected listen error")
	}
}

func TestHTTPService_PortInUseFailsStartup(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	svc := NewHTTPService("http-server", &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()})
	sup := NewSupervisor(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Run(ctx); err == nil || !strings.Contains(err.Error(), "failed to start") {
		t.Errorf("Expected startup failure, got %v", err)
	}
}

func TestApp_CleanupReverseOrder(t *testing.T) {
	app := &App{}
	var order []int
	app.AddCleanup(func() error { order = append(order, 1); return nil })
	app.AddCleanup(func() error { order = append(order, 2); return errors.New("ignored") })
	app.AddCleanup(func() error { order = append(order, 3); return nil })

	app.Cleanup()
	app.Cleanup()

	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("Expected [3 2 1] once, got %v", order)
	}
}

func TestInitialize_WithoutRedis(t *testing.T) {
	cfg, _ := config.Load()
	cfg.Redis.Enabled = false

	app, cleanup, err := Initialize(context.Background(), AppOptions{Config: cfg})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer cleanup()

	if app.Redis != nil {
		t.Error("Expected no redis client")
	}
	if app.Secrets == nil || app.Secrets.Name() != "env" {
		t.Errorf("Expected env secrets provider, got %v", app.Secrets)
	}
}

func TestInitialize_InvalidConfig(t *testing.T) {
	cfg, _ := config.Load()
	cfg.Feed.Source = "carrier-pigeon"

	if _, _, err := Initialize(context.Background(), AppOptions{Config: cfg}); err == nil {
		t.Error("Expected invalid config error")
	}
}

func TestInitialize_RedisUnreachable(t *testing.T) {
	cfg, _ := config.Load()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	_, _, err := Initialize(context.Background(), AppOptions{
		Config:          cfg,
		RedisAttempts:   2,
		RedisRetryDelay: 10 * time.Millisecond,
	})
	if err == nil {
		t.Error("Expected redis connection error")
	}
}
