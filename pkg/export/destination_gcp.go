//go:build gcp

package export

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
)

// GCSDestination writes bundles to a Google Cloud Storage bucket.
type GCSDestination struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds configuration for GCSDestination.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSDestination creates a GCS-backed bundle destination. The
// client uses Application Default Credentials.
func NewGCSDestination(ctx context.Context, cfg GCSConfig) (*GCSDestination, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: create GCS client: %w", err)
	}
	return &GCSDestination{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (d *GCSDestination) Write(ctx context.Context, name string, data []byte) (string, error) {
	objectPath := d.prefix + name
	w := d.client.Bucket(d.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("export: gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("export: gcs close failed: %w", err)
	}
	return "gs://" + d.bucket + "/" + objectPath, nil
}

// Close closes the GCS client.
func (d *GCSDestination) Close() error {
	return d.client.Close()
}

func newGCSDestinationFromEnv(ctx context.Context) (Destination, error) {
	bucket := os.Getenv("DUALGUARD_EXPORT_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("export: DUALGUARD_EXPORT_GCS_BUCKET is required for the gcs destination")
	}
	return NewGCSDestination(ctx, GCSConfig{
		Bucket: bucket,
		Prefix: os.Getenv("DUALGUARD_EXPORT_GCS_PREFIX"),
	})
}
