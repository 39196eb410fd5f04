package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gcalvault/internal/gcalvault"
)

// CalendarContentType is the content type of uploaded calendar files.
const CalendarContentType = "text/calendar; charset=utf-8"

// S3API is the subset of the S3 client used by S3Mirror.
type S3API interface {
	manager.UploadAPIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures an S3Mirror.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint     string
	UsePathStyle bool

	// Static credentials. When empty, the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Mirror uploads calendar files to an S3 bucket under an optional key prefix.
type S3Mirror struct {
	name     string
	bucket   string
	prefix   string
	client   S3API
	uploader *manager.Uploader
}

// NewS3Mirror creates an S3 mirror using the default AWS configuration
// overridden by opts.
func NewS3Mirror(ctx context.Context, name string, opts S3Options) (*S3Mirror, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return NewS3MirrorWithClient(name, opts.Bucket, opts.Prefix, client), nil
}

// NewS3MirrorWithClient creates an S3 mirror on top of an existing client.
func NewS3MirrorWithClient(name, bucket, prefix string, client S3API) *S3Mirror {
	return &S3Mirror{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// Key returns the object key for a calendar file.
func (m *S3Mirror) Key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Put uploads the file under name, replacing any previous object.
func (m *S3Mirror) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(m.Key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(CalendarContentType),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", m.bucket, m.Key(name), err)
	}
	return nil
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (m *S3Mirror) ValidateSetup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(m.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", m.bucket, err)
	}
	return nil
}

// Compile-time check that S3Mirror implements gcalvault.Mirror interface
var _ gcalvault.Mirror = (*S3Mirror)(nil)
