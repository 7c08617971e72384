// Package lifecycle starts and stops the console's long-running parts.
//
// The throughput feed runner and the HTTP server are Services. main hands
// them to Run, which starts the runner first so the dashboard's first
// request finds a populated feed, and stops the HTTP server first so no
// request reads a feed that is shutting down. Connections that are not
// Services (NATS, redis, the embedded NATS server) are released through
// App cleanups after Run returns.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service is a component the Supervisor owns.
type Service interface {
	// Name identifies the service in logs and errors.
	Name() string

	// Start blocks while the service runs. It returns nil once ctx is
	// cancelled or Stop has been called, and an error when the service
	// cannot start or dies on its own.
	Start(ctx context.Context) error

	// Stop asks a running service to finish and waits for it, bounded by ctx.
	Stop(ctx context.Context) error

	// Health is nil while the service is doing its job.
	Health() error
}

// StartGrace is how long the supervisor waits for an immediate startup
// failure before treating a service as started.
var StartGrace = 100 * time.Millisecond

// StopTimeout bounds each service's Stop call.
var StopTimeout = 30 * time.Second

// Supervisor starts services in order and stops them in reverse order.
// If any service exits with an error while running, the rest are stopped
// and Run returns that error.
type Supervisor struct {
	services []Service
	mu       sync.RWMutex
	running  bool
}

// NewSupervisor creates a supervisor for the given services.
func NewSupervisor(services ...Service) *Supervisor {
	return &Supervisor{
		services: services,
	}
}

type serviceExit struct {
	name string
	err  error
}

// Run starts all services and blocks until ctx is cancelled or a started
// service fails.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan serviceExit, len(s.services))

	var started []Service
	for _, svc := range s.services {
		slog.Info("Starting service", "service", svc.Name())

		errCh := make(chan error, 1)
		go func(service Service) {
			errCh <- service.Start(ctx)
		}(svc)

		select {
		case err := <-errCh:
			if err != nil {
				s.stopServices(started)
				return fmt.Errorf("service %s failed to start: %w", svc.Name(), err)
			}
			// Finished within the grace period without error, nothing to watch
		case <-time.After(StartGrace):
			go func(name string) {
				if err := <-errCh; err != nil {
					exits <- serviceExit{name: name, err: err}
				}
			}(svc.Name())
		}

		started = append(started, svc)
		slog.Info("Service started", "service", svc.Name())
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping services")
	case exit := <-exits:
		slog.Error("Service exited, stopping the others", "service", exit.name, "error", exit.err)
		runErr = fmt.Errorf("service %s failed: %w", exit.name, exit.err)
	}

	s.stopServices(started)
	cancel()
	return runErr
}

// stopServices stops services in reverse order
func (s *Supervisor) stopServices(services []Service) {
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		slog.Info("Stopping service", "service", svc.Name())

		stopCtx, cancel := context.WithTimeout(context.Background(), StopTimeout)
		if err := svc.Stop(stopCtx); err != nil {
			slog.Error("Service stop error", "service", svc.Name(), "error", err)
		} else {
			slog.Info("Service stopped", "service", svc.Name())
		}
		cancel()
	}
}

// Health is nil only if every service is healthy.
func (s *Supervisor) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, svc := range s.services {
		if err := svc.Health(); err != nil {
			return fmt.Errorf("service %s unhealthy: %w", svc.Name(), err)
		}
	}
	return nil
}
