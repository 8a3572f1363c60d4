package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/use-agent/harvest/config"
)

// ObjectMirror copies artifacts to an S3-compatible bucket.
type ObjectMirror struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewObjectMirror builds a mirror from cfg. It does not contact the server.
func NewObjectMirror(cfg config.ObjectStoreConfig) (*ObjectMirror, error) {
	if err := validateObjectStore(cfg); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return &ObjectMirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}, nil
}

func validateObjectStore(cfg config.ObjectStoreConfig) error {
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return errors.New("object store endpoint is required")
	case strings.Contains(cfg.Endpoint, "://"):
		return fmt.Errorf("object store endpoint must not include scheme: %q", cfg.Endpoint)
	case strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "":
		return errors.New("object store credentials are required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return errors.New("object store bucket is required")
	}
	return nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *ObjectMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", m.bucket, err)
	}
	return nil
}

// Key returns the object key used for name.
func (m *ObjectMirror) Key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Put uploads data under the prefixed key.
func (m *ObjectMirror) Put(ctx context.Context, name string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := m.client.PutObject(ctx, m.bucket, m.Key(name), bytes.NewReader(data), int64(len(data)), opts)
	return err
}
