package objectstore

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Backend stores objects in Amazon S3 (s3:// URIs)
type S3Backend struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Backend creates an S3 backend from a loaded AWS config
func NewS3Backend(cfg aws.Config) *S3Backend {
	client := s3.NewFromConfig(cfg)
	return &S3Backend{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}
}

// Upload writes src to s3://bucket/key using multipart upload for large files
func (b *S3Backend) Upload(ctx context.Context, bucket, key string, src *os.File) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   src,
	})
	return err
}

// Download copies s3://bucket/key into dst with ranged parallel reads
func (b *S3Backend) Download(ctx context.Context, bucket, key string, dst *os.File) error {
	_, err := b.downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

// Exists reports whether s3://bucket/key exists
func (b *S3Backend) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	// HeadObject has no body, so some 404s only carry the code
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
