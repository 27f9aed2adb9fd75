// Package imagestore assigns each analyzed image a stable reference and,
// when configured, archives the bytes to an S3-compatible bucket.
package imagestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dermascan/dermascan/internal/config"
	"github.com/dermascan/dermascan/internal/imaging"
)

// DigestPrefix marks content-addressed references.
const DigestPrefix = "sha256:"

// ObjectPutter is the subset of the S3 client used for archiving.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store produces image references.
type Store struct {
	client ObjectPutter
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Store. With a nil client or empty bucket only digests are produced.
func New(client ObjectPutter, bucket string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		client = nil
	}
	return &Store{
		client: client,
		bucket: bucket,
		logger: logger,
		now:    time.Now,
	}
}

// NewS3Client builds an S3 client from static credentials. A custom endpoint
// (MinIO and similar) switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Archiving reports whether uploads are sent to a bucket.
func (s *Store) Archiving() bool {
	return s.client != nil
}

// Digest returns the content reference for data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// Key returns the object key an image is archived under.
func Key(img imaging.Image, at time.Time) string {
	sum := sha256.Sum256(img.Data)
	return fmt.Sprintf("analyses/%s/%s%s",
		at.UTC().Format("2006/01/02"), hex.EncodeToString(sum[:]), img.Ext())
}

// Reference returns the image's reference. When archiving, the image is
// uploaded and an s3:// URI is returned; upload failures are logged and the
// digest is returned instead.
func (s *Store) Reference(ctx context.Context, img imaging.Image) string {
	digest := Digest(img.Data)
	if s.client == nil {
		return digest
	}

	key := Key(img, s.now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.MIMEType),
		ContentLength: aws.Int64(int64(len(img.Data))),
	})
	if err != nil {
		s.logger.Warn("image archive failed, using digest",
			"bucket", s.bucket,
			"key", key,
			"error", err,
		)
		return digest
	}

	return "s3://" + s.bucket + "/" + key
}
