package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.brokerconsole.dev/internal/common/secrets"
)

// Snapshot source types
const (
	SourceAPI          = "api"           // poll the broker's monitoring overview
	SourceNATS         = "nats"          // latest snapshot pushed on a NATS subject
	SourceEmbeddedNATS = "embedded-nats" // as nats, with an in-process server
)

// Config holds all configuration for the broker console
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// Broker REST API configuration
	Broker BrokerConfig

	// Throughput feed configuration
	Feed FeedConfig

	// NATS configuration for pushed snapshots
	NATS NATSConfig

	// Redis snapshot cache configuration
	Redis RedisConfig

	// Secrets provider configuration
	Secrets secrets.Config

	// Support request throttling
	Support SupportConfig

	// LogFormat is "text" or "json"
	LogFormat string

	// Development mode
	DevMode bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// BrokerConfig holds broker API client configuration
type BrokerConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// TokenSecret names the secret holding the broker API token.
	// Empty means requests are sent without a token.
	TokenSecret string
}

// FeedConfig holds throughput feed configuration
type FeedConfig struct {
	Source       string
	PollInterval time.Duration
	Window       time.Duration
	FetchTimeout time.Duration
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL     string
	Subject string
	MaxAge  time.Duration

	// Embedded server listen address, used by the embedded-nats source
	Host string
	Port int
}

// RedisConfig holds redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// SupportConfig holds support request rate limits
type SupportConfig struct {
	PerMinute int
	Burst     int
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        getEnvInt("HTTP_PORT", 8080),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},

		Broker: BrokerConfig{
			BaseURL:      getEnv("BROKER_API_URL", "http://localhost:9000/api"),
			Timeout:      getEnvDuration("BROKER_API_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("BROKER_API_MAX_RETRIES", 2),
			RetryBackoff: getEnvDuration("BROKER_API_RETRY_BACKOFF", 250*time.Millisecond),
			TokenSecret:  getEnv("BROKER_API_TOKEN_SECRET", ""),
		},

		Feed: FeedConfig{
			Source:       strings.ToLower(getEnv("FEED_SOURCE", SourceAPI)),
			PollInterval: getEnvDuration("FEED_POLL_INTERVAL", 5*time.Second),
			Window:       getEnvDuration("FEED_WINDOW", 10*time.Minute),
			FetchTimeout: getEnvDuration("FEED_FETCH_TIMEOUT", 4*time.Second),
		},

		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Subject: getEnv("NATS_SUBJECT", "broker.throughput"),
			MaxAge:  getEnvDuration("NATS_MAX_AGE", 15*time.Second),
			Host:    getEnv("NATS_EMBEDDED_HOST", "127.0.0.1"),
			Port:    getEnvInt("NATS_EMBEDDED_PORT", 4222),
		},

		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "console:"),
			TTL:      getEnvDuration("REDIS_TTL", 4*time.Second),
		},

		Secrets: *secrets.LoadConfigFromEnv(),

		Support: SupportConfig{
			PerMinute: getEnvInt("SUPPORT_RATE_PER_MINUTE", 6),
			Burst:     getEnvInt("SUPPORT_RATE_BURST", 3),
		},

		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DevMode:   getEnvBool("CONSOLE_DEV", false),
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTP.Port))
	}
	if c.Broker.BaseURL == "" {
		errs = append(errs, errors.New("broker base URL is required"))
	}
	if c.Broker.Timeout <= 0 {
		errs = append(errs, errors.New("broker timeout must be positive"))
	}
	if c.Broker.MaxRetries < 0 {
		errs = append(errs, errors.New("broker max retries must not be negative"))
	}

	switch c.Feed.Source {
	case SourceAPI:
	case SourceNATS, SourceEmbeddedNATS:
		if c.NATS.Subject == "" {
			errs = append(errs, errors.New("nats subject is required for the nats source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feed source %q (want %s, %s or %s)",
			c.Feed.Source, SourceAPI, SourceNATS, SourceEmbeddedNATS))
	}
	if c.Feed.PollInterval <= 0 {
		errs = append(errs, errors.New("feed poll interval must be positive"))
	}
	if c.Feed.Window <= 0 {
		errs = append(errs, errors.New("feed window must be positive"))
	} else if c.Feed.PollInterval > 0 && c.Feed.Window < c.Feed.PollInterval {
		errs = append(errs, fmt.Errorf("feed window %s is shorter than the poll interval %s",
			c.Feed.Window, c.Feed.PollInterval))
	}
	if c.Feed.FetchTimeout < 0 {
		errs = append(errs, errors.New("feed fetch timeout must not be negative"))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis address is required when redis is enabled"))
	}
	if c.Support.PerMinute <= 0 || c.Support.Burst <= 0 {
		errs = append(errs, errors.New("support rate and burst must be positive"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
