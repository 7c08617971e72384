package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// ShutdownTimeout bounds how long Run waits for services to stop.
var ShutdownTimeout = 35 * time.Second

// Run supervises services until SIGINT or SIGTERM arrives, ctx is
// cancelled, or a service fails. main passes the feed runner followed by
// the HTTP server:
//
//	lifecycle.Run(ctx, runner, lifecycle.NewHTTPService("http-server", srv))
func Run(ctx context.Context, services ...Service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	supervisor := NewSupervisor(services...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- supervisor.Run(ctx)
	}()

	defer signal.Stop(quit)

	// Wait for shutdown signal, parent cancellation or supervisor error
	select {
	case sig := <-quit:
		slog.Info("Shutdown signal received", "signal", sig)
		cancel()
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("Supervisor error", "error", err)
		}
		return err
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(ShutdownTimeout):
		slog.Error("Shutdown timed out", "timeout", ShutdownTimeout)
		return fmt.Errorf("shutdown did not finish within %s", ShutdownTimeout)
	}
}

// HTTPService serves the console router as a Service. The listener is
// opened inside Start, so a port already in use fails startup instead of
// surfacing after the supervisor has moved on.
type HTTPService struct {
	server  *http.Server
	name    string
	addr    atomic.Value // net.Addr once listening
	serving atomic.Bool
}

// NewHTTPService creates a Service from an http.Server.
func NewHTTPService(name string, server *http.Server) *HTTPService {
	return &HTTPService{
		server: server,
		name:   name,
	}
}

func (s *HTTPService) Name() string { return s.name }

// Addr is the bound listener address, or nil before Start has listened.
func (s *HTTPService) Addr() net.Addr {
	addr, _ := s.addr.Load().(net.Addr)
	return addr
}

func (s *HTTPService) Start(ctx context.Context) error {
	addr := s.server.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.addr.Store(ln.Addr())
	slog.Info("HTTP server listening", "addr", ln.Addr().String())

	s.serving.Store(true)
	errCh := make(chan error, 1)
	go func() {
		defer s.serving.Store(false)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (s *HTTPService) Stop(ctx context.Context) error {
	slog.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// Health reports whether the server is accepting connections.
func (s *HTTPService) Health() error {
	if !s.serving.Load() {
		return fmt.Errorf("http server not serving")
	}
	return nil
}
