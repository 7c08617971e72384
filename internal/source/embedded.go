package source

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedNATS is an in-process NATS server brokers can publish snapshots
// to during local development.
type EmbeddedNATS struct {
	server *server.Server
}

// StartEmbeddedNATS starts a NATS server on host:port. A port of -1
// picks a random free port.
func StartEmbeddedNATS(host string, port int) (*EmbeddedNATS, error) {
	opts := &server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server failed to start within timeout")
	}

	slog.Info("Embedded NATS server started", "url", ns.ClientURL())
	return &EmbeddedNATS{server: ns}, nil
}

// URL returns the client URL of the server.
func (e *EmbeddedNATS) URL() string {
	return e.server.ClientURL()
}

// Close shuts the server down.
func (e *EmbeddedNATS) Close() error {
	e.server.Shutdown()
	e.server.WaitForShutdown()
	return nil
}
