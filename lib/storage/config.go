package storage

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/satfetch/satfetch/lib/errors"
	"github.com/satfetch/satfetch/lib/resilience"
	"github.com/satfetch/satfetch/lib/validation"
)

// Default configuration values
const (
	DefaultRegion         = "us-west-2"
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultMaxAttempts    = 3

	maxAttemptsLimit = 10
	maxAppIDLength   = 50
)

// Session parameter keys accepted in Config.Session.
const (
	SessionEndpointURL  = "endpoint_url"
	SessionUsePathStyle = "use_path_style"
	SessionAppID        = "app_id"
)

// Config describes how clients reach the object store.
type Config struct {
	// Region is the bucket's region.
	Region string
	// Bucket is the public bucket clients read from.
	Bucket string
	// Endpoint overrides the regional S3 endpoint, for mirrors and
	// S3-compatible stores.
	Endpoint string
	// UsePathStyle addresses the bucket in the URL path instead of the host.
	UsePathStyle bool
	// ConnectTimeout bounds dialing and the TLS handshake.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers.
	ReadTimeout time.Duration
	// MaxAttempts is the per-request attempt count, first try included.
	MaxAttempts int
	// VerifyConnect pings the bucket before a new client is handed out.
	VerifyConnect bool
	// Session holds extra session parameters. Supported keys are
	// endpoint_url, use_path_style and app_id; they override the fields above.
	// Validate rejects any other key instead of forwarding it to the SDK, so
	// credentials cannot be smuggled into an anonymous client.
	Session map[string]string
	// Breaker configures the circuit breaker around client creation.
	Breaker resilience.CircuitBreakerConfig
}

// DefaultConfig returns a Config with sensible defaults. Bucket is left empty.
func DefaultConfig() Config {
	return Config{
		Region:         DefaultRegion,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		VerifyConnect:  true,
		Breaker:        resilience.DefaultCircuitBreakerConfig(),
	}
}

// Validate checks the configuration for errors. A missing bucket reports
// errors.ErrStorageBucketRequired; everything else matches errors.ErrInvalidInput.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return apperrors.ErrStorageBucketRequired
	}

	err := validation.All(
		func() error { return validation.BucketName("storage.bucket", c.Bucket) },
		func() error { return c.validateRegion() },
		func() error { return validation.NonNegativeDuration("storage.connect_timeout", c.ConnectTimeout) },
		func() error { return validation.NonNegativeDuration("storage.read_timeout", c.ReadTimeout) },
		func() error { return validation.IntRange("storage.max_attempts", c.MaxAttempts, 0, maxAttemptsLimit) },
	)
	if err != nil {
		return err
	}
	if c.Endpoint != "" {
		if err := validation.EndpointURL("storage.endpoint", c.Endpoint); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(c.Session))
	for k := range c.Session {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := c.Session[k]
		field := "storage.session." + k
		switch k {
		case SessionEndpointURL:
			if err := validation.EndpointURL(field, v); err != nil {
				return err
			}
		case SessionUsePathStyle:
			if _, err := strconv.ParseBool(v); err != nil {
				return validation.NewResult(field, fmt.Sprintf("%q is not a boolean", v), validation.ErrInvalidFormat)
			}
		case SessionAppID:
			if err := validation.MaxLength(field, v, maxAppIDLength); err != nil {
				return err
			}
		default:
			return validation.NewResult(field, "unknown session parameter", validation.ErrInvalidFormat)
		}
	}
	return nil
}

// validateRegion requires a region name. S3-compatible stores behind a
// custom endpoint may use arbitrary region strings such as "auto".
func (c Config) validateRegion() error {
	if c.Endpoint != "" || c.Session[SessionEndpointURL] != "" {
		return validation.Required("storage.region", c.Region)
	}
	return validation.Region("storage.region", c.Region)
}

// resolved applies defaults to zero fields and folds session parameters in.
// It assumes Validate has passed.
func (c Config) resolved() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if v, ok := c.Session[SessionEndpointURL]; ok {
		c.Endpoint = v
	}
	if v, ok := c.Session[SessionUsePathStyle]; ok {
		c.UsePathStyle, _ = strconv.ParseBool(v)
	}
	return c
}

func (c Config) appID() string {
	return c.Session[SessionAppID]
}
