// Package s3blob stores fill receipts and audit archives in an
// S3-compatible object store. It works against AWS S3 proper as well as
// MinIO and R2 style providers that need a custom endpoint and path-style
// addressing.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes one bucket on one S3-compatible provider.
type ClientConfig struct {
	Endpoint  string // empty for AWS S3 proper
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint is given without one.
	UseSSL bool

	// ForcePathStyle puts the bucket in the URL path instead of the host.
	// MinIO and most self-hosted providers require it.
	ForcePathStyle bool
}

// Client is the shared connection used by Reader and Writer. All operations
// in this package target its single configured bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds the SDK client for the configured provider.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	opts := make([]func(*s3.Options), 0, 2)
	if cfg.Endpoint != "" {
		ep := cfg.Endpoint
		if !strings.Contains(ep, "://") {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			ep = scheme + "://" + ep
		}
		opts = append(opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(ep) })
	}
	if cfg.ForcePathStyle {
		opts = append(opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Ping verifies the bucket is reachable and the credentials may access it.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close exists so the wiring layer can treat all backends uniformly; the
// SDK client has no connection state to release.
func (c *Client) Close() error { return nil }

// S3 exposes the raw SDK client to Reader and Writer.
func (c *Client) S3() *s3.Client { return c.s3 }

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }
