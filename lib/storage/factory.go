package storage

import (
	"context"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/satfetch/satfetch/lib/metrics"
	"github.com/satfetch/satfetch/lib/pool"
	"github.com/satfetch/satfetch/lib/resilience"
	"github.com/satfetch/satfetch/version"
)

// Factory creates anonymous object-store clients. It implements pool.Factory.
type Factory struct {
	cfg     Config
	breaker *resilience.CircuitBreaker
}

// NewFactory validates cfg and returns a Factory for it.
func NewFactory(cfg Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.resolved()

	log.WithField("bucket", cfg.Bucket).
		WithField("region", cfg.Region).
		WithField("endpoint", cfg.Endpoint).
		Debug("storage factory configured")

	return &Factory{
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("storage-connect", cfg.Breaker),
	}, nil
}

// Config returns the resolved configuration.
func (f *Factory) Config() Config {
	return f.cfg
}

// Breaker returns the circuit breaker guarding Connect.
func (f *Factory) Breaker() *resilience.CircuitBreaker {
	return f.breaker
}

// Connect builds a new client and, when VerifyConnect is set, pings the
// bucket before returning it. Repeated failures open the circuit breaker and
// later calls fail fast with errors.ErrCircuitOpen.
func (f *Factory) Connect(ctx context.Context) (pool.Client, error) {
	timer := metrics.NewTimer(StorageConnectLatency)
	defer timer.ObserveDuration()

	var client *Client
	err := f.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		c := f.newClient()
		if f.cfg.VerifyConnect {
			if err := c.Ping(ctx); err != nil {
				_ = c.Close()
				return err
			}
		}
		client = c
		return nil
	})
	if err != nil {
		StorageConnectFailures.Inc()
		log.WithField("bucket", f.cfg.Bucket).WithError(err).Warn("failed to create storage client")
		return nil, err
	}

	StorageConnectsTotal.Inc()
	return client, nil
}

func (f *Factory) newClient() *Client {
	cfg := f.cfg

	httpClient := awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = cfg.ConnectTimeout
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.TLSHandshakeTimeout = cfg.ConnectTimeout
			tr.ResponseHeaderTimeout = cfg.ReadTimeout
		})

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
		HTTPClient:  httpClient,
		Retryer: func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), cfg.MaxAttempts)
		},
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.AppID = version.AppID()
		if id := cfg.appID(); id != "" {
			o.AppID = id
		}
	})

	return &Client{
		api:    api,
		bucket: cfg.Bucket,
		http:   httpClient,
	}
}
