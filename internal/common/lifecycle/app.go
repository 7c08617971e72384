package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"go.brokerconsole.dev/internal/common/secrets"
	"go.brokerconsole.dev/internal/config"
)

// App holds initialized infrastructure that is guaranteed to be connected.
// If you have an *App with a Redis client, redis answered a ping.
//
// Application logic should NOT go here. The feed runner, broker client
// and HTTP handlers are wired by the binary.
type App struct {
	Config *config.Config

	// Redis is nil unless redis is enabled in the config
	Redis *redis.Client

	// Secrets resolves the broker token
	Secrets secrets.Provider

	// Internal cleanup - call AddCleanup to register cleanup functions
	cleanupFuncs []func() error
}

// AppOptions configures which infrastructure to initialize.
type AppOptions struct {
	// Config skips loading when set
	Config *config.Config

	// RedisAttempts is how many pings to try before giving up (default 3)
	RedisAttempts int

	// RedisRetryDelay is the pause between pings (default 1s)
	RedisRetryDelay time.Duration
}

// Initialize creates an App with connected infrastructure.
// Returns an error if any required connection fails.
//
// Usage:
//
//	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func Initialize(ctx context.Context, opts AppOptions) (*App, func(), error) {
	app := &App{Config: opts.Config}

	if app.Config == nil {
		cfg, err := config.LoadWithFile()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		app.Config = cfg
	}
	if err := app.Config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := app.initSecrets(); err != nil {
		app.Cleanup()
		return nil, nil, err
	}

	if app.Config.Redis.Enabled {
		if err := app.initRedis(ctx, opts); err != nil {
			app.Cleanup()
			return nil, nil, err
		}
	}

	cleanup := func() {
		app.Cleanup()
	}

	return app, cleanup, nil
}

// AddCleanup registers a cleanup function to be called on shutdown.
// Functions are called in reverse order of registration.
func (app *App) AddCleanup(fn func() error) {
	app.cleanupFuncs = append(app.cleanupFuncs, fn)
}

func (app *App) initSecrets() error {
	provider, err := secrets.NewProvider(&app.Config.Secrets)
	if err != nil {
		return fmt.Errorf("failed to create secrets provider: %w", err)
	}
	app.Secrets = provider

	if closer, ok := provider.(interface{ Close() error }); ok {
		app.AddCleanup(closer.Close)
	}

	slog.Info("Secrets provider ready", "provider", provider.Name())
	return nil
}

// initRedis connects to redis, pinging until it answers.
func (app *App) initRedis(ctx context.Context, opts AppOptions) error {
	cfg := app.Config.Redis

	attempts := opts.RedisAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := opts.RedisRetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	slog.Info("Connecting to Redis", "addr", cfg.Addr, "db", cfg.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			break
		}

		slog.Warn("Redis ping failed", "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			client.Close()
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	app.Redis = client
	app.AddCleanup(func() error {
		slog.Info("Disconnecting from Redis")
		return client.Close()
	})

	slog.Info("Connected to Redis", "addr", cfg.Addr)
	return nil
}

// Cleanup runs all cleanup functions in reverse order.
func (app *App) Cleanup() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		if err := app.cleanupFuncs[i](); err != nil {
			slog.Error("Cleanup error", "error", err)
		}
	}
	app.cleanupFuncs = nil
}
