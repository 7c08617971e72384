// Broker Console
//
// Admin dashboard backend for the message broker. Polls (or receives)
// throughput snapshots, keeps the rolling per-broker series and serves
// them to the dashboard together with pass-through broker operations.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"go.brokerconsole.dev/internal/broker"
	"go.brokerconsole.dev/internal/common/health"
	"go.brokerconsole.dev/internal/common/lifecycle"
	"go.brokerconsole.dev/internal/common/secrets"
	"go.brokerconsole.dev/internal/config"
	"go.brokerconsole.dev/internal/console/api"
	"go.brokerconsole.dev/internal/console/warning"
	"go.brokerconsole.dev/internal/feed"
	"go.brokerconsole.dev/internal/source"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Configure logging from the environment until the config is loaded
	setupLogging(os.Getenv("LOG_FORMAT"), os.Getenv("CONSOLE_DEV") == "true")

	slog.Info("Starting Broker Console",
		"version", version,
		"build_time", buildTime)

	ctx := context.Background()

	// ========================================
	// 1. INFRASTRUCTURE INITIALIZATION
	// ========================================
	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	setupLogging(cfg.LogFormat, cfg.DevMode)

	// ========================================
	// 2. COMPONENT WIRING
	// ========================================
	healthChecker := health.NewChecker()

	// Warning service
	warningService := warning.NewInMemoryService(warning.DefaultLimit)

	// Broker API client
	brokerClient := setupBrokerClient(app, warningService)
	healthChecker.AddReadinessCheck(health.BrokerAPICheck(brokerClient.Health, brokerClient.BaseURL()))

	// Snapshot source
	src, err := setupSource(app, brokerClient, healthChecker)
	if err != nil {
		slog.Error("Failed to setup snapshot source", "error", err)
		cleanup()
		os.Exit(1)
	}

	// Throughput feed
	runner := feed.NewRunner(src, feed.RunnerConfig{
		Interval:     cfg.Feed.PollInterval,
		Window:       cfg.Feed.Window,
		FetchTimeout: cfg.Feed.FetchTimeout,
	}, feed.WithWarner(warningService))
	healthChecker.AddReadinessCheck(health.FeedCheck(runner.Health, src.Name()))

	if app.Redis != nil {
		healthChecker.AddReadinessCheck(health.RedisCheck(func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}))
	}

	// HTTP Router
	httpRouter := api.NewRouter(api.Dependencies{
		Feed:          runner,
		Broker:        brokerClient,
		Warnings:      warningService,
		Health:        healthChecker,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		SupportPerMin: cfg.Support.PerMinute,
		SupportBurst:  cfg.Support.Burst,
	})

	// HTTP Server. No write timeout: the throughput stream is long lived.
	// Request contexts derive from baseCtx, which is cancelled when shutdown
	// begins so open streams end instead of holding Shutdown open.
	baseCtx, cancelRequests := context.WithCancel(ctx)
	defer cancelRequests()
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancelRequests)

	// ========================================
	// 3. SERVICE STARTUP
	// ========================================
	// The feed starts before the HTTP server so the first view is ready
	services := []lifecycle.Service{
		runner,
		lifecycle.NewHTTPService("http-server", httpServer),
	}

	slog.Info("Broker Console ready",
		"port", cfg.HTTP.Port,
		"source", src.Name(),
		"brokerApi", brokerClient.BaseURL(),
		"pollInterval", cfg.Feed.PollInterval,
		"window", cfg.Feed.Window,
		"redis", app.Redis != nil)

	// ========================================
	// 4. RUN UNTIL SHUTDOWN
	// ========================================
	if err := lifecycle.Run(ctx, services...); err != nil {
		slog.Error("Service error", "error", err)
		cleanup()
		os.Exit(1)
	}

	slog.Info("Broker Console stopped")
}

// setupLogging configures the slog default logger.
func setupLogging(format string, dev bool) {
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// setupBrokerClient creates the management API client. The bearer token
// is read through the secrets provider when a secret name is configured.
func setupBrokerClient(app *lifecycle.App, warner broker.Warner) *broker.Client {
	cfg := app.Config

	brokerCfg := broker.DefaultConfig()
	brokerCfg.BaseURL = cfg.Broker.BaseURL
	brokerCfg.Timeout = cfg.Broker.Timeout
	brokerCfg.MaxRetries = cfg.Broker.MaxRetries
	brokerCfg.BaseBackoff = cfg.Broker.RetryBackoff

	opts := []broker.Option{broker.WithWarner(warner)}
	if cfg.Broker.TokenSecret != "" {
		slog.Info("Broker API token resolved through secrets provider",
			"provider", app.Secrets.Name(),
			"secret", cfg.Broker.TokenSecret)
		opts = append(opts, broker.WithTokenSource(
			secrets.NewCachedSecret(app.Secrets, cfg.Broker.TokenSecret, 5*time.Minute)))
	}

	return broker.NewClient(brokerCfg, opts...)
}

// setupSource builds the snapshot source selected by FEED_SOURCE, wrapped
// in the redis cache when redis is enabled.
func setupSource(app *lifecycle.App, brokerClient *broker.Client, healthChecker *health.Checker) (feed.Source, error) {
	cfg := app.Config

	var src feed.Source
	switch cfg.Feed.Source {
	case config.SourceAPI:
		src = source.NewOverviewSource(brokerClient)

	case config.SourceNATS, config.SourceEmbeddedNATS:
		url := cfg.NATS.URL
		if cfg.Feed.Source == config.SourceEmbeddedNATS {
			embedded, err := source.StartEmbeddedNATS(cfg.NATS.Host, cfg.NATS.Port)
			if err != nil {
				return nil, err
			}
			app.AddCleanup(func() error {
				slog.Info("Stopping embedded NATS server")
				return embedded.Close()
			})
			url = embedded.URL()
		}

		slog.Info("Subscribing to throughput snapshots", "url", url, "subject", cfg.NATS.Subject)
		natsSource, err := source.NewNATSSource(source.NATSConfig{
			URL:     url,
			Subject: cfg.NATS.Subject,
			MaxAge:  cfg.NATS.MaxAge,
		})
		if err != nil {
			return nil, err
		}
		app.AddCleanup(func() error {
			slog.Info("Disconnecting from NATS")
			return natsSource.Close()
		})
		healthChecker.AddReadinessCheck(health.NATSCheck(func() bool {
			return natsSource.Health() == nil
		}))
		src = natsSource

	default:
		return nil, fmt.Errorf("unknown feed source: %s (use %q, %q or %q)",
			cfg.Feed.Source, config.SourceAPI, config.SourceNATS, config.SourceEmbeddedNATS)
	}

	if app.Redis != nil {
		src = source.NewCachedSource(src, app.Redis, source.CacheConfig{
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.TTL,
		})
	}
	return src, nil
}
