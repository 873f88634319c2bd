package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	apperrors "github.com/satfetch/satfetch/lib/errors"
)

// maxPageSize is the largest page S3 returns for one listing request.
const maxPageSize = 1000

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Client is an anonymous handle to one bucket. It is safe for concurrent
// use, but the pool lends each Client to a single holder at a time.
type Client struct {
	api    *s3.Client
	bucket string
	http   aws.HTTPClient
	closed atomic.Bool
}

// Ping lists at most one key from the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return fmt.Errorf("storage: ping: %w", apperrors.ErrClosed)
	}
	_, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		StoragePingFailures.Inc()
		return classify("ping", c.bucket, err)
	}
	return nil
}

// Close drops the client's idle connections. Further calls are no-ops.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if idle, ok := c.http.(interface{ CloseIdleConnections() }); ok {
		idle.CloseIdleConnections()
	}
	return nil
}

// List returns up to limit objects whose keys start with prefix, in key
// order. A limit of zero or less lists everything.
func (c *Client) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("storage: list: %w", apperrors.ErrClosed)
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if limit > 0 && limit < maxPageSize {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	var objects []Object
	pages := s3.NewListObjectsV2Paginator(c.api, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("list", prefix, err)
		}
		for _, o := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
				ETag:         aws.ToString(o.ETag),
			})
			if limit > 0 && len(objects) >= limit {
				return objects, nil
			}
		}
	}
	return objects, nil
}

// Stat returns an object's metadata without fetching its body.
func (c *Client) Stat(ctx context.Context, key string) (Object, error) {
	if c.closed.Load() {
		return Object{}, fmt.Errorf("storage: stat: %w", apperrors.ErrClosed)
	}
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, classify("stat", key, err)
	}
	return Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
	}, nil
}

// Open starts reading an object. The caller must close the returned body.
func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	if c.closed.Load() {
		return nil, Object{}, fmt.Errorf("storage: open: %w", apperrors.ErrClosed)
	}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, Object{}, classify("open", key, err)
	}
	return out.Body, Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
	}, nil
}

// classify maps SDK errors onto the package's sentinel errors.
func classify(op, target string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("storage: %s %s: %w: %w", op, target, apperrors.ErrNotFound, err)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout":
			return fmt.Errorf("storage: %s %s: %w: %w", op, target, apperrors.ErrUnavailable, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("storage: %s %s: %w: %w", op, target, apperrors.ErrTimeout, err)
	}
	return fmt.Errorf("storage: %s %s: %w", op, target, err)
}
