package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	minioOperationTimeout = 30 * time.Second
	minioNoSuchKey        = "NoSuchKey"
	audioContentType      = "audio/wav"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStore implements core.ObjectStore on a MinIO/S3 bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the endpoint and creates the bucket when it is missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w: minio endpoint and bucket are required", core.ErrValidation)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, minioOperationTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket '%s': %w", cfg.Bucket, err)
	}

	if !exists {
		makeErr := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region})
		if makeErr != nil {
			return nil, fmt.Errorf("failed to create bucket '%s': %w", cfg.Bucket, makeErr)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Download fetches the object stored under key.
func (m *MinioStore) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, minioOperationTimeout)
	defer cancel()

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.classify(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.classify(key, err)
	}

	return data, nil
}

// Upload stores data under key.
func (m *MinioStore) Upload(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, minioOperationTimeout)
	defer cancel()

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: audioContentType})
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, m.bucket, err)
	}

	return nil
}

// Delete removes the object stored under key. S3 treats a missing key as success.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, minioOperationTimeout)
	defer cancel()

	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object '%s' from bucket '%s': %w", key, m.bucket, err)
	}

	return nil
}

func (m *MinioStore) classify(key string, err error) error {
	response := minio.ToErrorResponse(err)
	if response.Code == minioNoSuchKey || response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: object '%s' in bucket '%s'", core.ErrNotFound, key, m.bucket)
	}

	return fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, m.bucket, err)
}
