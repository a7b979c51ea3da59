package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the configuration for the S3-compatible object store.
type S3Config struct {
	Logger    *slog.Logger
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store persists documents to an S3-compatible object store.
type S3Store struct {
	logger *slog.Logger
	client *minio.Client
	bucket string
}

// NewS3Store creates an S3Store and ensures the bucket exists.
func NewS3Store(ctx context.Context, cfg *S3Config) (*S3Store, error) {
	if cfg == nil {
		return nil, errors.New("store config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		cfg.Logger.Info("created bucket", "bucket", cfg.Bucket)
	}

	return &S3Store{
		logger: cfg.Logger,
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Put writes a document under key with the given metadata.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, meta Metadata) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"location":   meta.Location,
				"event-time": meta.EventTime,
				"status":     meta.Status,
				"processor":  meta.Processor,
			},
		})
	if err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}

	s.logger.Debug("stored document", "bucket", s.bucket, "key", key)
	return nil
}

var _ Store = (*S3Store)(nil)
