package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brojonat/ledgerwire/service/wire"
)

// DefaultTaskQueue is the Temporal task queue of the ingest worker.
const DefaultTaskQueue = "ledgerwire-ingest"

// Bounds for DECODE_MAX_DEPTH.
const (
	MinDecodeDepth = 1
	MaxDecodeDepth = 256
)

// Config holds all application configuration loaded from environment variables.
// All fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration
	NATSURL     string
	NATSEnabled bool

	// Progress tracking configuration. An empty RedisURL keeps tracker state in memory.
	RedisURL    string
	ProgressTTL time.Duration

	// Codec configuration
	DecodeStrict   bool
	DecodeMaxDepth int

	// Event archive configuration. An empty DatabaseURL disables archiving.
	DatabaseURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Worker configuration
	MetricsAddr string
}

// Load reads configuration from environment variables and validates every field.
// Returns an error listing everything that is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")
	natsEnabled, err := parseBool("NATS_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NATSEnabled = natsEnabled
	}

	// Progress tracking configuration
	cfg.RedisURL = os.Getenv("REDIS_URL")
	ttl, err := parseDuration("PROGRESS_TTL", "24h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ProgressTTL = ttl
	}

	// Codec configuration
	strict, err := parseBool("DECODE_STRICT", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DecodeStrict = strict
	}

	depth, err := parseInt("DECODE_MAX_DEPTH", wire.DefaultMaxDepth)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DecodeMaxDepth = depth
	}

	// Event archive configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", DefaultTaskQueue)

	// Worker configuration
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel %q must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.NATSEnabled && c.NATSURL == "" {
		errs = append(errs, fmt.Errorf("NATSURL is required when NATS is enabled"))
	}

	if c.ProgressTTL <= 0 {
		errs = append(errs, fmt.Errorf("ProgressTTL must be positive"))
	}

	if c.DecodeMaxDepth < MinDecodeDepth || c.DecodeMaxDepth > MaxDecodeDepth {
		errs = append(errs, fmt.Errorf("DecodeMaxDepth must be between %d and %d, got %d",
			MinDecodeDepth, MaxDecodeDepth, c.DecodeMaxDepth))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// CodecOptions returns the codec settings. The observer is left for the caller to set.
func (c *Config) CodecOptions() wire.Options {
	return wire.Options{
		Strict:   c.DecodeStrict,
		MaxDepth: c.DecodeMaxDepth,
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
