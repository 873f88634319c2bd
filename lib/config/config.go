// Package config loads and saves the satfetch configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-i2p/logger"
	"github.com/pelletier/go-toml/v2"

	apperrors "github.com/satfetch/satfetch/lib/errors"
	"github.com/satfetch/satfetch/lib/pool"
	"github.com/satfetch/satfetch/lib/ratelimit"
	"github.com/satfetch/satfetch/lib/resilience"
	"github.com/satfetch/satfetch/lib/storage"
	"github.com/satfetch/satfetch/lib/validation"
)

var log = logger.GetGoI2PLogger()

// Default configuration values
const (
	DefaultBucket       = "sentinel-cogs"
	DefaultOutputDir    = "."
	DefaultWorkers      = 4
	DefaultBurst        = 8
	MaxWorkers          = 64
	DefaultFileName     = "config.toml"
	DefaultAppDirectory = "satfetch"
)

// Config holds all configuration for satfetch.
type Config struct {
	Pool           PoolConfig    `toml:"pool"`
	Storage        StorageConfig `toml:"storage"`
	CircuitBreaker BreakerConfig `toml:"circuit_breaker"`
	Fetch          FetchConfig   `toml:"fetch"`
	Metrics        MetricsConfig `toml:"metrics"`
}

// PoolConfig contains connection pool settings.
type PoolConfig struct {
	// MaxConnections is the number of clients kept open at once
	MaxConnections int `toml:"max_connections"`
	// MaxAge is how long a client may be reused, measured from creation
	MaxAge Duration `toml:"max_age"`
	// AcquireTimeout bounds how long a caller waits for a client under "block"
	AcquireTimeout Duration `toml:"acquire_timeout"`
	// HealthCheckTimeout bounds the check run when a client is returned
	HealthCheckTimeout Duration `toml:"health_check_timeout"`
	// Overflow is "block", "grow" or "reject"
	Overflow pool.OverflowPolicy `toml:"overflow"`
}

// StorageConfig contains object store settings.
type StorageConfig struct {
	// Region is the bucket's region
	Region string `toml:"region"`
	// Bucket is the public bucket to read from
	Bucket string `toml:"bucket"`
	// Endpoint is an optional S3-compatible endpoint URL
	Endpoint string `toml:"endpoint,omitempty"`
	// UsePathStyle puts the bucket in the URL path
	UsePathStyle bool `toml:"use_path_style"`
	// ConnectTimeout bounds dialing the store
	ConnectTimeout Duration `toml:"connect_timeout"`
	// ReadTimeout bounds waiting for a response
	ReadTimeout Duration `toml:"read_timeout"`
	// MaxAttempts is the per-request attempt count
	MaxAttempts int `toml:"max_attempts"`
	// VerifyConnect pings the bucket before a new client is used
	VerifyConnect bool `toml:"verify_connect"`
	// Session holds extra session parameters (endpoint_url, use_path_style, app_id)
	Session map[string]string `toml:"session,omitempty"`
}

// BreakerConfig contains circuit breaker settings for client creation.
type BreakerConfig struct {
	FailureThreshold    int      `toml:"failure_threshold"`
	SuccessThreshold    int      `toml:"success_threshold"`
	Timeout             Duration `toml:"timeout"`
	MaxHalfOpenRequests int      `toml:"max_half_open_requests"`
}

// FetchConfig contains download settings.
type FetchConfig struct {
	// OutputDir is where downloaded objects are written
	OutputDir string `toml:"output_dir"`
	// Workers is the number of concurrent downloads
	Workers int `toml:"workers"`
	// RequestsPerSecond paces listings and downloads; 0 disables pacing
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// Burst is how many requests may start back to back before pacing applies
	Burst int `toml:"burst"`
}

// MetricsConfig contains metrics endpoint settings.
type MetricsConfig struct {
	// Listen is an optional address serving /metrics (e.g., "127.0.0.1:9102")
	Listen string `toml:"listen,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	p := pool.DefaultConfig()
	s := storage.DefaultConfig()
	b := resilience.DefaultCircuitBreakerConfig()

	return &Config{
		Pool: PoolConfig{
			MaxConnections:     p.MaxConnections,
			MaxAge:             Duration(p.MaxAge),
			AcquireTimeout:     Duration(p.AcquireTimeout),
			HealthCheckTimeout: Duration(p.HealthCheckTimeout),
			Overflow:           p.Overflow,
		},
		Storage: StorageConfig{
			Region:         s.Region,
			Bucket:         DefaultBucket,
			ConnectTimeout: Duration(s.ConnectTimeout),
			ReadTimeout:    Duration(s.ReadTimeout),
			MaxAttempts:    s.MaxAttempts,
			VerifyConnect:  s.VerifyConnect,
		},
		CircuitBreaker: BreakerConfig{
			FailureThreshold:    b.FailureThreshold,
			SuccessThreshold:    b.SuccessThreshold,
			Timeout:             Duration(b.Timeout),
			MaxHalfOpenRequests: b.MaxHalfOpenRequests,
		},
		Fetch: FetchConfig{
			OutputDir: DefaultOutputDir,
			Workers:   DefaultWorkers,
			Burst:     DefaultBurst,
		},
	}
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, DefaultAppDirectory, DefaultFileName)
}

// LoadConfig reads configuration from a TOML file and applies SATFETCH_*
// environment overrides.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		log.WithField("path", path).Debug("config file not found, using defaults")
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a TOML file.
// It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors. Every failure matches
// errors.ErrConfigInvalid.
func (c *Config) Validate() error {
	err := validation.All(
		func() error { return validation.Positive("pool.max_connections", c.Pool.MaxConnections) },
		func() error { return validation.PositiveDuration("pool.max_age", c.Pool.MaxAge.Std()) },
		func() error { return validation.PositiveDuration("pool.acquire_timeout", c.Pool.AcquireTimeout.Std()) },
		func() error {
			return validation.PositiveDuration("pool.health_check_timeout", c.Pool.HealthCheckTimeout.Std())
		},
		func() error { return validation.Positive("storage.max_attempts", c.Storage.MaxAttempts) },
		func() error { return validation.IntRange("fetch.workers", c.Fetch.Workers, 1, MaxWorkers) },
		func() error { return validation.Required("fetch.output_dir", c.Fetch.OutputDir) },
		func() error { return c.validatePacing() },
		func() error {
			if c.Metrics.Listen == "" {
				return nil
			}
			return validation.HostPort("metrics.listen", c.Metrics.Listen)
		},
		func() error { return c.StorageOptions().Validate() },
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, err)
	}
	return nil
}

func (c *Config) validatePacing() error {
	if c.Fetch.RequestsPerSecond < 0 {
		return validation.NewResult("fetch.requests_per_second", "must not be negative", validation.ErrOutOfRange)
	}
	if c.Fetch.RequestsPerSecond > 0 {
		return validation.Positive("fetch.burst", c.Fetch.Burst)
	}
	return nil
}

// Limiter returns the request limiter described by the [fetch] section, or
// nil when pacing is disabled.
func (c *Config) Limiter() *ratelimit.Limiter {
	return ratelimit.New(c.Fetch.RequestsPerSecond, c.Fetch.Burst)
}

// PoolOptions converts the [pool] section to a pool.Config.
func (c *Config) PoolOptions() pool.Config {
	cfg := pool.DefaultConfig()
	cfg.MaxConnections = c.Pool.MaxConnections
	cfg.MaxAge = c.Pool.MaxAge.Std()
	cfg.AcquireTimeout = c.Pool.AcquireTimeout.Std()
	cfg.HealthCheckTimeout = c.Pool.HealthCheckTimeout.Std()
	cfg.Overflow = c.Pool.Overflow
	return cfg
}

// StorageOptions converts the [storage] and [circuit_breaker] sections to a
// storage.Config.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Region:         c.Storage.Region,
		Bucket:         c.Storage.Bucket,
		Endpoint:       c.Storage.Endpoint,
		UsePathStyle:   c.Storage.UsePathStyle,
		ConnectTimeout: c.Storage.ConnectTimeout.Std(),
		ReadTimeout:    c.Storage.ReadTimeout.Std(),
		MaxAttempts:    c.Storage.MaxAttempts,
		VerifyConnect:  c.Storage.VerifyConnect,
		Session:        c.Storage.Session,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold:    c.CircuitBreaker.FailureThreshold,
			SuccessThreshold:    c.CircuitBreaker.SuccessThreshold,
			Timeout:             c.CircuitBreaker.Timeout.Std(),
			MaxHalfOpenRequests: c.CircuitBreaker.MaxHalfOpenRequests,
		},
	}
}

// applyEnvOverrides applies SATFETCH_* environment variables. Values that do
// not parse are logged and ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SATFETCH_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("SATFETCH_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("SATFETCH_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("SATFETCH_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxConnections = n
		} else {
			ignoredEnv("SATFETCH_MAX_CONNECTIONS", v, err)
		}
	}
	if v := os.Getenv("SATFETCH_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pool.MaxAge = Duration(d)
		} else {
			ignoredEnv("SATFETCH_MAX_AGE", v, err)
		}
	}
	if v := os.Getenv("SATFETCH_OVERFLOW"); v != "" {
		if o, err := pool.ParseOverflowPolicy(v); err == nil {
			cfg.Pool.Overflow = o
		} else {
			ignoredEnv("SATFETCH_OVERFLOW", v, err)
		}
	}
	if v := os.Getenv("SATFETCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetch.Workers = n
		} else {
			ignoredEnv("SATFETCH_WORKERS", v, err)
		}
	}
	if v := os.Getenv("SATFETCH_REQUESTS_PER_SECOND"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Fetch.RequestsPerSecond = r
		} else {
			ignoredEnv("SATFETCH_REQUESTS_PER_SECOND", v, err)
		}
	}
	if v := os.Getenv("SATFETCH_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
}

func ignoredEnv(key, value string, err error) {
	log.WithField("key", key).WithField("value", value).WithError(err).Warn("ignoring invalid environment override")
}
