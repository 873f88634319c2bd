package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/satfetch/satfetch/lib/errors"
	"github.com/satfetch/satfetch/lib/validation"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.True(t, cfg.VerifyConnect)
	assert.Empty(t, cfg.Bucket)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:    "missing bucket",
			modify:  func(c *Config) { c.Bucket = "" },
			wantErr: apperrors.ErrStorageBucketRequired,
		},
		{
			name:    "missing region",
			modify:  func(c *Config) { c.Region = "" },
			wantErr: apperrors.ErrInvalidInput,
		},
		{
			name:    "uppercase bucket",
			modify:  func(c *Config) { c.Bucket = "Sentinel-COGs" },
			wantErr: validation.ErrInvalidFormat,
		},
		{
			name:    "malformed region",
			modify:  func(c *Config) { c.Region = "auto" },
			wantErr: apperrors.ErrInvalidInput,
		},
		{
			name: "free-form region behind custom endpoint",
			modify: func(c *Config) {
				c.Region = "auto"
				c.Endpoint = "https://mirror.example"
			},
		},
		{
			name:    "too many attempts",
			modify:  func(c *Config) { c.MaxAttempts = 50 },
			wantErr: validation.ErrOutOfRange,
		},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.ReadTimeout = -1 },
			wantErr: apperrors.ErrInvalidInput,
		},
		{
			name:    "relative endpoint",
			modify:  func(c *Config) { c.Endpoint = "minio.local:9000" },
			wantErr: apperrors.ErrInvalidInput,
		},
		{
			name: "supported session keys",
			modify: func(c *Config) {
				c.Session = map[string]string{
					SessionEndpointURL:  "http://127.0.0.1:9000",
					SessionUsePathStyle: "true",
					SessionAppID:        "satfetch-test",
				}
			},
		},
		{
			name:    "unknown session key",
			modify:  func(c *Config) { c.Session = map[string]string{"aws_secret_access_key": "x"} },
			wantErr: apperrors.ErrInvalidInput,
		},
		{
			name:    "bad path style value",
			modify:  func(c *Config) { c.Session = map[string]string{SessionUsePathStyle: "sometimes"} },
			wantErr: apperrors.ErrInvalidInput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Bucket = "sentinel-cogs"
			tc.modify(&cfg)

			err := cfg.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestConfigResolvedAppliesSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bucket = "landsat-pds"
	cfg.ConnectTimeout = 0
	cfg.MaxAttempts = 0
	cfg.Session = map[string]string{
		SessionEndpointURL:  "http://mirror.example:8080",
		SessionUsePathStyle: "1",
		SessionAppID:        "imagery-sync",
	}
	require.NoError(t, cfg.Validate())

	r := cfg.resolved()
	assert.Equal(t, "http://mirror.example:8080", r.Endpoint)
	assert.True(t, r.UsePathStyle)
	assert.Equal(t, "imagery-sync", r.appID())
	assert.Equal(t, DefaultConnectTimeout, r.ConnectTimeout)
	assert.Equal(t, DefaultMaxAttempts, r.MaxAttempts)
}
