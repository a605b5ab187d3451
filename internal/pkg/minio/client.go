package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Client wraps the MinIO client around a single bucket.
type Client struct {
	client *minio.Client
	config *Config
	logger *logger.Logger
	closed atomic.Bool
}

// NewClient creates a MinIO client. It does not contact the server.
func NewClient(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, ErrInvalidArgument
	}
	if log == nil {
		log = logger.L()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	switch cfg.BucketLookup {
	case BucketLookupDNS:
		opts.BucketLookup = minio.BucketLookupDNS
	case BucketLookupPath:
		opts.BucketLookup = minio.BucketLookupPath
	default:
		opts.BucketLookup = minio.BucketLookupAuto
	}

	mc, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, WrapError("NewClient", err, "", "")
	}

	log.Info("minio client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.Bool("use_ssl", cfg.UseSSL),
	)
	return &Client{client: mc, config: cfg, logger: log.Named("minio")}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// EnsureBucket creates the configured bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	bucket := c.config.Bucket
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return WrapError("BucketExists", err, bucket, "")
	}
	if exists {
		return nil
	}
	err = c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region})
	if err != nil && !IsBucketAlreadyExists(err) {
		return WrapError("MakeBucket", err, bucket, "")
	}
	c.logger.WithContext(ctx).Info("bucket created", zap.String("bucket", bucket))
	return nil
}

// PutObject uploads data under key.
func (c *Client) PutObject(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	key = SanitizeObjectName(key)
	if err := ValidateObjectName(key); err != nil {
		return WrapError("PutObject", fmt.Errorf("%w: %v", ErrInvalidArgument, err), c.config.Bucket, key)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	info, err := c.client.PutObject(ctx, c.config.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return WrapError("PutObject", err, c.config.Bucket, key)
	}
	c.logger.WithContext(ctx).Debug("object uploaded",
		zap.String("key", key),
		zap.Int64("size", info.Size),
	)
	return nil
}

// GetObject downloads the object stored under key.
func (c *Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	key = SanitizeObjectName(key)

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	obj, err := c.client.GetObject(ctx, c.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, WrapError("GetObject", err, c.config.Bucket, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, WrapError("GetObject", err, c.config.Bucket, key)
	}
	return data, nil
}

// Ping lists buckets to check connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if _, err := c.client.ListBuckets(ctx); err != nil {
		return WrapError("Ping", err, "", "")
	}
	return nil
}

// Close marks the client closed.
func (c *Client) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.logger.Info("minio client closed")
	}
	return nil
}
