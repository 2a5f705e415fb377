package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/masthead/pkg/storage")

// S3Client removes content assets from object storage
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates a new S3 client. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &S3Client{client: client, bucket: cfg.S3Bucket}, nil
}

// Bucket returns the configured bucket name
func (c *S3Client) Bucket() string {
	return c.bucket
}

// DeleteObject removes one object. Deleting a missing key is not an error in S3.
func (c *S3Client) DeleteObject(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "S3.DeleteObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return fmt.Errorf("failed to delete s3 object %s: %w", key, err)
	}

	return nil
}
