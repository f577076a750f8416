package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBackend stores objects in Google Cloud Storage (gs:// URIs)
type GCSBackend struct {
	client *storage.Client
}

// NewGCSBackend creates a GCS backend. When credentialsFile exists it is used as a
// service account key, otherwise Application Default Credentials apply.
func NewGCSBackend(ctx context.Context, credentialsFile string) (*GCSBackend, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err == nil {
			opts = append(opts, option.WithCredentialsFile(credentialsFile))
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSBackend{client: client}, nil
}

// Upload writes src to gs://bucket/key
func (b *GCSBackend) Upload(ctx context.Context, bucket, key string, src *os.File) error {
	w := b.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Download copies gs://bucket/key into dst
func (b *GCSBackend) Download(ctx context.Context, bucket, key string, dst *os.File) error {
	r, err := b.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(dst, r)
	return err
}

// Exists reports whether gs://bucket/key exists
func (b *GCSBackend) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := b.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the underlying storage client
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
