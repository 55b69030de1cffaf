// Package objectstore uploads artifacts and processed images to S3. Keys are
// content-addressed for images, so re-uploading the same bytes is idempotent.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader is the object-store sink the pipeline writes through.
type Uploader interface {
	// Upload writes body to bucket/key with the given content type.
	Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// S3Uploader uploads through the AWS SDK.
type S3Uploader struct {
	client *s3.Client
}

// NewS3Uploader builds an uploader from the ambient AWS configuration
// (environment, shared config, instance role).
func NewS3Uploader(ctx context.Context) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg)}, nil
}

// Upload puts the object. The object store is append-only; overwriting an
// existing content-addressed key writes identical bytes.
func (u *S3Uploader) Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("Upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// NoopUploader satisfies Uploader without touching the network. Used when
// no_upload is set and in tests.
type NoopUploader struct{}

// Upload logs the would-be upload and returns nil.
func (NoopUploader) Upload(_ context.Context, bucket, key string, body []byte, _ string) error {
	slog.Debug("upload skipped",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("bytes", len(body)))
	return nil
}
