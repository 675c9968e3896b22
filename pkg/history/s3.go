package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/observability"
)

// ArchiveConfig configures the S3 archiver.
type ArchiveConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	KeyPrefix    string
}

// S3Archiver exports terminal operation records as JSON objects, keyed by
// start date and operation id. Archival is best-effort: callers log and
// continue on error.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *observability.Logger
}

// NewS3Archiver builds an S3 client from the config. Static credentials
// are used when provided (MinIO, explicit keys); otherwise the default
// credential chain applies.
func NewS3Archiver(ctx context.Context, cfg ArchiveConfig, logger *observability.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "operations"
	}

	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: logger.WithField("archive_bucket", cfg.Bucket),
	}, nil
}

// Key returns the object key for an operation record.
func (a *S3Archiver) Key(op *grant.AssignmentOperation) string {
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, op.StartedAt.UTC().Format("2006/01/02"), op.ID)
}

// Archive uploads one terminal operation record.
func (a *S3Archiver) Archive(ctx context.Context, op *grant.AssignmentOperation) error {
	if !terminal(op.Status) {
		return fmt.Errorf("operation %s is not terminal (%s)", op.ID, op.Status)
	}

	key := a.Key(op)
	ctx, span := observability.Tracer().Start(ctx, "S3.ArchiveOperation",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.String("grantor.operation_id", op.ID),
		),
	)
	defer span.End()

	data, err := json.Marshal(op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("failed to marshal operation: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put failed")
		return fmt.Errorf("failed to archive operation %s: %w", op.ID, err)
	}

	a.logger.WithField("key", key).Debug("archived operation record")
	return nil
}
