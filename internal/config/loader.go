package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"go.brokerconsole.dev/internal/common/secrets"
)

// TOMLConfig represents the TOML configuration file structure
type TOMLConfig struct {
	HTTP      TOMLHTTPConfig    `toml:"http"`
	Broker    TOMLBrokerConfig  `toml:"broker"`
	Feed      TOMLFeedConfig    `toml:"feed"`
	NATS      TOMLNATSConfig    `toml:"nats"`
	Redis     TOMLRedisConfig   `toml:"redis"`
	Secrets   TOMLSecretsConfig `toml:"secrets"`
	Support   TOMLSupportConfig `toml:"support"`
	LogFormat string            `toml:"log_format"`
	DevMode   bool              `toml:"dev_mode"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML
type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLBrokerConfig represents broker API configuration in TOML
type TOMLBrokerConfig struct {
	BaseURL      string `toml:"base_url"`
	Timeout      string `toml:"timeout"`
	MaxRetries   int    `toml:"max_retries"`
	RetryBackoff string `toml:"retry_backoff"`
	TokenSecret  string `toml:"token_secret"`
}

// TOMLFeedConfig represents throughput feed configuration in TOML
type TOMLFeedConfig struct {
	Source       string `toml:"source"`
	PollInterval string `toml:"poll_interval"`
	Window       string `toml:"window"`
	FetchTimeout string `toml:"fetch_timeout"`
}

// TOMLNATSConfig represents NATS configuration in TOML
type TOMLNATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
	MaxAge  string `toml:"max_age"`
	Host    string `toml:"embedded_host"`
	Port    int    `toml:"embedded_port"`
}

// TOMLRedisConfig represents redis configuration in TOML
type TOMLRedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
	TTL      string `toml:"ttl"`
}

// TOMLSecretsConfig represents secrets provider configuration in TOML
type TOMLSecretsConfig struct {
	Provider string `toml:"provider"`

	// AWS
	AWSRegion   string `toml:"aws_region"`
	AWSPrefix   string `toml:"aws_prefix"`
	AWSEndpoint string `toml:"aws_endpoint"`

	// Vault
	VaultAddr      string `toml:"vault_addr"`
	VaultPath      string `toml:"vault_path"`
	VaultNamespace string `toml:"vault_namespace"`

	// GCP
	GCPProject string `toml:"gcp_project"`
	GCPPrefix  string `toml:"gcp_prefix"`
}

// TOMLSupportConfig represents support throttling in TOML
type TOMLSupportConfig struct {
	PerMinute int `toml:"per_minute"`
	Burst     int `toml:"burst"`
}

// ConfigPaths lists the paths to search for config files
var ConfigPaths = []string{
	"config.toml",
	"console.toml",
	"./config/config.toml",
	"./config/console.toml",
	"/etc/broker-console/config.toml",
}

// LoadFromFile loads defaults and environment variables, then applies
// every key the file defines unless its environment variable is set.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	var tc TOMLConfig
	md, err := toml.DecodeFile(path, &tc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	if err := overlay(cfg, &tc, md); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFile loads configuration from file first, then overrides with env vars
func LoadWithFile() (*Config, error) {
	// Check for explicit config file path
	configPath := os.Getenv("CONSOLE_CONFIG")
	if configPath == "" {
		// Search for config file in standard locations
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	// If no config file found, just use env vars
	if configPath == "" {
		return Load()
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// overlay copies file values onto cfg. A value applies when the file
// defines its key and the matching environment variable is unset.
func overlay(cfg *Config, tc *TOMLConfig, md toml.MetaData) error {
	apply := func(env string, keys ...string) bool {
		if !md.IsDefined(keys...) {
			return false
		}
		_, set := os.LookupEnv(env)
		return !set
	}

	var errs []string
	duration := func(dst *time.Duration, value, env string, keys ...string) {
		if !apply(env, keys...) {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", strings.Join(keys, "."), err))
			return
		}
		*dst = d
	}

	// HTTP
	if apply("HTTP_PORT", "http", "port") {
		cfg.HTTP.Port = tc.HTTP.Port
	}
	if apply("CORS_ORIGINS", "http", "cors_origins") {
		cfg.HTTP.CORSOrigins = tc.HTTP.CORSOrigins
	}

	// Broker
	if apply("BROKER_API_URL", "broker", "base_url") {
		cfg.Broker.BaseURL = tc.Broker.BaseURL
	}
	duration(&cfg.Broker.Timeout, tc.Broker.Timeout, "BROKER_API_TIMEOUT", "broker", "timeout")
	if apply("BROKER_API_MAX_RETRIES", "broker", "max_retries") {
		cfg.Broker.MaxRetries = tc.Broker.MaxRetries
	}
	duration(&cfg.Broker.RetryBackoff, tc.Broker.RetryBackoff, "BROKER_API_RETRY_BACKOFF", "broker", "retry_backoff")
	if apply("BROKER_API_TOKEN_SECRET", "broker", "token_secret") {
		cfg.Broker.TokenSecret = tc.Broker.TokenSecret
	}

	// Feed
	if apply("FEED_SOURCE", "feed", "source") {
		cfg.Feed.Source = strings.ToLower(tc.Feed.Source)
	}
	duration(&cfg.Feed.PollInterval, tc.Feed.PollInterval, "FEED_POLL_INTERVAL", "feed", "poll_interval")
	duration(&cfg.Feed.Window, tc.Feed.Window, "FEED_WINDOW", "feed", "window")
	duration(&cfg.Feed.FetchTimeout, tc.Feed.FetchTimeout, "FEED_FETCH_TIMEOUT", "feed", "fetch_timeout")

	// NATS
	if apply("NATS_URL", "nats", "url") {
		cfg.NATS.URL = tc.NATS.URL
	}
	if apply("NATS_SUBJECT", "nats", "subject") {
		cfg.NATS.Subject = tc.NATS.Subject
	}
	duration(&cfg.NATS.MaxAge, tc.NATS.MaxAge, "NATS_MAX_AGE", "nats", "max_age")
	if apply("NATS_EMBEDDED_HOST", "nats", "embedded_host") {
		cfg.NATS.Host = tc.NATS.Host
	}
	if apply("NATS_EMBEDDED_PORT", "nats", "embedded_port") {
		cfg.NATS.Port = tc.NATS.Port
	}

	// Redis
	if apply("REDIS_ENABLED", "redis", "enabled") {
		cfg.Redis.Enabled = tc.Redis.Enabled
	}
	if apply("REDIS_ADDR", "redis", "addr") {
		cfg.Redis.Addr = tc.Redis.Addr
	}
	if apply("REDIS_PASSWORD", "redis", "password") {
		cfg.Redis.Password = tc.Redis.Password
	}
	if apply("REDIS_DB", "redis", "db") {
		cfg.Redis.DB = tc.Redis.DB
	}
	if apply("REDIS_PREFIX", "redis", "prefix") {
		cfg.Redis.Prefix = tc.Redis.Prefix
	}
	duration(&cfg.Redis.TTL, tc.Redis.TTL, "REDIS_TTL", "redis", "ttl")

	// Secrets
	if apply("CONSOLE_SECRETS_PROVIDER", "secrets", "provider") {
		cfg.Secrets.Provider = secrets.ProviderType(strings.ToLower(tc.Secrets.Provider))
	}
	if apply("CONSOLE_SECRETS_AWS_REGION", "secrets", "aws_region") {
		cfg.Secrets.AWSRegion = tc.Secrets.AWSRegion
	}
	if apply("CONSOLE_SECRETS_AWS_PREFIX", "secrets", "aws_prefix") {
		cfg.Secrets.AWSPrefix = tc.Secrets.AWSPrefix
	}
	if apply("CONSOLE_SECRETS_AWS_ENDPOINT", "secrets", "aws_endpoint") {
		cfg.Secrets.AWSEndpoint = tc.Secrets.AWSEndpoint
	}
	if apply("CONSOLE_SECRETS_VAULT_ADDR", "secrets", "vault_addr") {
		cfg.Secrets.VaultAddr = tc.Secrets.VaultAddr
	}
	if apply("CONSOLE_SECRETS_VAULT_PATH", "secrets", "vault_path") {
		cfg.Secrets.VaultPath = tc.Secrets.VaultPath
	}
	if apply("CONSOLE_SECRETS_VAULT_NAMESPACE", "secrets", "vault_namespace") {
		cfg.Secrets.VaultNamespace = tc.Secrets.VaultNamespace
	}
	if apply("CONSOLE_SECRETS_GCP_PROJECT", "secrets", "gcp_project") {
		cfg.Secrets.GCPProject = tc.Secrets.GCPProject
	}
	if apply("CONSOLE_SECRETS_GCP_PREFIX", "secrets", "gcp_prefix") {
		cfg.Secrets.GCPPrefix = tc.Secrets.GCPPrefix
	}

	// Support
	if apply("SUPPORT_RATE_PER_MINUTE", "support", "per_minute") {
		cfg.Support.PerMinute = tc.Support.PerMinute
	}
	if apply("SUPPORT_RATE_BURST", "support", "burst") {
		cfg.Support.Burst = tc.Support.Burst
	}

	// General
	if apply("LOG_FORMAT", "log_format") {
		cfg.LogFormat = strings.ToLower(tc.LogFormat)
	}
	if apply("CONSOLE_DEV", "dev_mode") {
		cfg.DevMode = tc.DevMode
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid durations in config file: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WriteExampleConfig writes an example configuration file
func WriteExampleConfig(path string) error {
	example := `# Broker console configuration
# Environment variables override these settings

log_format = "text"  # text or json
dev_mode = false

[http]
port = 8080
cors_origins = ["http://localhost:3000"]

[broker]
base_url = "http://localhost:9000/api"
timeout = "5s"
max_retries = 2
retry_backoff = "250ms"
token_secret = ""  # secret name holding the broker API token

[feed]
source = "api"  # api, nats or embedded-nats
poll_interval = "5s"
window = "10m"
fetch_timeout = "4s"

[nats]
url = "nats://localhost:4222"
subject = "broker.throughput"
max_age = "15s"
embedded_host = "127.0.0.1"
embedded_port = 4222

[redis]
enabled = false
addr = "localhost:6379"
password = ""
db = 0
prefix = "console:"
ttl = "4s"

[secrets]
provider = "env"  # env, aws-sm, vault, gcp-sm

# AWS Secrets Manager
aws_region = ""
aws_prefix = "/broker-console/"
aws_endpoint = ""

# HashiCorp Vault
vault_addr = ""
vault_path = "secret/data/broker-console"
vault_namespace = ""

# GCP Secret Manager
gcp_project = ""
gcp_prefix = "broker-console-"

[support]
per_minute = 6
burst = 3
`

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}
