package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/config"
)

// publicReadPolicy lets anonymous clients fetch objects under uploads/.
const publicReadPolicy = `{
	"Version": "2012-10-17",
	"Statement": [{
		"Effect": "Allow",
		"Principal": {"AWS": ["*"]},
		"Action": ["s3:GetObject"],
		"Resource": ["arn:aws:s3:::%s/uploads/*"]
	}]
}`

type MinIOAdapter struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	logger        *zap.Logger
}

func NewMinIOAdapter(cfg config.MinIOConfig, logger *zap.Logger) (*MinIOAdapter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	return &MinIOAdapter{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		logger:        logger,
	}, nil
}

func (m *MinIOAdapter) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		m.logger.Error("minio upload failed",
			zap.String("object_name", objectName),
			zap.String("bucket", m.bucket),
			zap.Error(err))
		return err
	}
	m.logger.Debug("minio upload done",
		zap.String("object_name", objectName),
		zap.Int64("size", size),
		zap.String("content_type", contentType))
	return nil
}

func (m *MinIOAdapter) PublicURL(objectName string) string {
	return m.publicBaseURL + "/" + m.bucket + "/" + strings.TrimLeft(objectName, "/")
}

// EnsureBucket creates the bucket if needed and opens uploads/ for reading.
func (m *MinIOAdapter) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}

	if err := m.client.SetBucketPolicy(ctx, m.bucket, fmt.Sprintf(publicReadPolicy, m.bucket)); err != nil {
		return fmt.Errorf("set bucket policy: %w", err)
	}
	return nil
}
