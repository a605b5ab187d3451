package minio

import (
	"errors"
	"fmt"
	"time"
)

// BucketLookupType represents the type of bucket lookup
type BucketLookupType string

const (
	BucketLookupAuto BucketLookupType = "auto"
	BucketLookupDNS  BucketLookupType = "dns"
	BucketLookupPath BucketLookupType = "path"
)

// Config is the object storage used to archive documents and results.
type Config struct {
	Endpoint        string           `mapstructure:"endpoint"`
	AccessKeyID     string           `mapstructure:"access_key_id"`
	SecretAccessKey string           `mapstructure:"secret_access_key"`
	Region          string           `mapstructure:"region"`
	UseSSL          bool             `mapstructure:"use_ssl"`
	BucketLookup    BucketLookupType `mapstructure:"bucket_lookup"`

	// Bucket holds every archived object.
	Bucket string `mapstructure:"bucket"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultConfig returns a configuration for a local MinIO.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:       "localhost:9000",
		BucketLookup:   BucketLookupAuto,
		Bucket:         "extractions",
		RequestTimeout: 30 * time.Second,
	}
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.BucketLookup == "" {
		c.BucketLookup = BucketLookupAuto
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: endpoint is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("minio: access key ID is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("minio: secret access key is required")
	}
	switch c.BucketLookup {
	case "", BucketLookupAuto, BucketLookupDNS, BucketLookupPath:
	default:
		return errors.New("minio: invalid bucket lookup type")
	}
	if err := ValidateBucketName(c.Bucket); err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	return nil
}
