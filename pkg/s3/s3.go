package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

const (
	defaultRegion = "us-east-1"

	// PresignExpiry is how long returned download links stay valid.
	PresignExpiry = 7 * 24 * time.Hour
)

type Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
}

// Object describes a stored object.
type Object struct {
	Bucket string
	Name   string
	Size   int64
	URL    string // presigned download link
}

// ObjectStorageClient stores documents in one bucket.
type ObjectStorageClient interface {
	Upload(ctx context.Context, objectName string, content io.Reader, size int64, contentType string) (Object, error)
	PresignedURL(ctx context.Context, objectName string) (string, error)
}

type ObjectStorage struct {
	conn   *minio.Client
	bucket string
	region string
	logger zerolog.Logger
}

var _ ObjectStorageClient = (*ObjectStorage)(nil)

// Connect creates the client and makes sure the bucket exists.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*ObjectStorage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("object storage endpoint and bucket are required")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	conn, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	o := &ObjectStorage{
		conn:   conn,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger.With().Str("component", "object_storage").Str("bucket", cfg.Bucket).Logger(),
	}
	if err := o.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *ObjectStorage) ensureBucket(ctx context.Context) error {
	exists, err := o.conn.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("failed to reach object storage: %w", err)
	}
	if exists {
		return nil
	}
	if err := o.conn.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{Region: o.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", o.bucket, err)
	}
	o.logger.Info().Msg("Bucket created")
	return nil
}

// Upload writes content under objectName, replacing any previous version,
// and returns a presigned link to it.
func (o *ObjectStorage) Upload(ctx context.Context, objectName string, content io.Reader, size int64, contentType string) (Object, error) {
	info, err := o.conn.PutObject(ctx, o.bucket, objectName, content, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	url, err := o.PresignedURL(ctx, objectName)
	if err != nil {
		return Object{}, err
	}
	o.logger.Debug().Str("object", objectName).Int64("size", info.Size).Msg("Object uploaded")
	return Object{Bucket: o.bucket, Name: objectName, Size: info.Size, URL: url}, nil
}

func (o *ObjectStorage) PresignedURL(ctx context.Context, objectName string) (string, error) {
	u, err := o.conn.PresignedGetObject(ctx, o.bucket, objectName, PresignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectName, err)
	}
	return u.String(), nil
}
