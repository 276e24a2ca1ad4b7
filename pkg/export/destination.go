package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Destination is where sealed bundles are written. Write returns a
// location string suitable for logs and operator output.
type Destination interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// FSDestination writes bundles to a local directory.
type FSDestination struct {
	dir string
}

// NewFSDestination creates the directory if needed.
func NewFSDestination(dir string) (*FSDestination, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: ensure bundle dir: %w", err)
	}
	return &FSDestination{dir: dir}, nil
}

// Write commits the bundle atomically via a temp file and rename.
func (d *FSDestination) Write(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(d.dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("export: write bundle: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("export: commit bundle: %w", err)
	}
	return path, nil
}

// S3Destination writes bundles to an S3 bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds configuration for S3Destination.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

// NewS3Destination creates an S3-backed bundle destination.
func NewS3Destination(ctx context.Context, cfg S3Config) (*S3Destination, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("export: load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	}

	return &S3Destination{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (d *S3Destination) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := d.prefix + name
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("export: s3 put failed: %w", err)
	}
	return "s3://" + d.bucket + "/" + key, nil
}

// DestinationType selects the bundle storage backend.
type DestinationType string

const (
	DestinationFS  DestinationType = "fs"
	DestinationS3  DestinationType = "s3"
	DestinationGCS DestinationType = "gcs"
)

// NewDestinationFromEnv creates a destination based on environment
// variables.
//
//   - DUALGUARD_EXPORT_DEST: "fs" (default), "s3", or "gcs"
//   - DUALGUARD_EXPORT_DIR: directory for the fs destination
//
// For S3:
//   - DUALGUARD_EXPORT_S3_BUCKET (required)
//   - DUALGUARD_EXPORT_S3_REGION or AWS_REGION
//   - DUALGUARD_EXPORT_S3_ENDPOINT (optional)
//   - DUALGUARD_EXPORT_S3_PREFIX (optional)
//
// For GCS (requires the gcp build tag):
//   - DUALGUARD_EXPORT_GCS_BUCKET (required)
//   - DUALGUARD_EXPORT_GCS_PREFIX (optional)
func NewDestinationFromEnv(ctx context.Context) (Destination, error) {
	destType := DestinationType(os.Getenv("DUALGUARD_EXPORT_DEST"))
	if destType == "" {
		destType = DestinationFS
	}

	switch destType {
	case DestinationFS:
		dir := os.Getenv("DUALGUARD_EXPORT_DIR")
		if dir == "" {
			dir = "exports"
		}
		return NewFSDestination(dir)
	case DestinationS3:
		return newS3DestinationFromEnv(ctx)
	case DestinationGCS:
		return newGCSDestinationFromEnv(ctx)
	default:
		return nil, fmt.Errorf("export: unsupported destination type: %s", destType)
	}
}

func newS3DestinationFromEnv(ctx context.Context) (Destination, error) {
	bucket := os.Getenv("DUALGUARD_EXPORT_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("export: DUALGUARD_EXPORT_S3_BUCKET is required for the s3 destination")
	}

	region := os.Getenv("DUALGUARD_EXPORT_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Destination(ctx, S3Config{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("DUALGUARD_EXPORT_S3_ENDPOINT"),
		Prefix:   os.Getenv("DUALGUARD_EXPORT_S3_PREFIX"),
	})
}
