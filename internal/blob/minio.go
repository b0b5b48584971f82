package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIO reads buckets of a S3 compatible storage.
// Common prefixes are reported as folder markers.
type MinIO struct {
	client *minio.Client
}

// MinIOConfig holds S3 connection settings.
type MinIOConfig struct {
	Endpoint  string // e.g., "localhost:9000"
	AccessKey string
	SecretKey string
	UseSSL    bool

	// Region skips the bucket location lookup if set
	Region string
}

// NewMinIO creates a new S3 storage client.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinIO{client: client}, nil
}

// List one level of bucket below folder
func (m *MinIO) List(ctx context.Context, bucket, folder string) ([]Entry, error) {
	prefix := ""
	if folder != "" {
		prefix = strings.TrimSuffix(folder, "/") + "/"
	}

	var entries []Entry
	for info := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}

		name := strings.TrimPrefix(info.Key, prefix)
		if strings.HasSuffix(name, "/") {
			entries = append(entries, Entry{Name: strings.TrimSuffix(name, "/")})
			continue
		}
		if name == "" {
			// directory placeholder object of the folder itself
			continue
		}

		id := info.ETag
		if id == "" {
			id = info.Key
		}
		entries = append(entries, Entry{Name: name, ID: id})
	}
	return entries, nil
}

// Download an object of bucket
func (m *MinIO) Download(ctx context.Context, bucket, objectPath string) (Object, error) {
	obj, err := m.client.GetObject(ctx, bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, fmt.Errorf("failed to download %s/%s: %w", bucket, objectPath, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return Object{}, fmt.Errorf("failed to stat %s/%s: %w", bucket, objectPath, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return Object{}, fmt.Errorf("failed to download %s/%s: %w", bucket, objectPath, err)
	}
	return Object{Data: data, ContentType: stat.ContentType}, nil
}
