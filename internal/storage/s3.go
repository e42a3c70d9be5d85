package storage

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/klg/videobooth-api/internal/artifact"
)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string // Optional: key prefix, normalized like an FTP remote path
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// DisplayURL returns the virtual-hosted style base URL of the bucket.
func (c S3Config) DisplayURL() string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", c.Bucket, c.Region)
}

// Compile-time check that S3Remote implements Remote.
var _ Remote = (*S3Remote)(nil)

// S3Remote uploads artifacts to an S3 bucket.
type S3Remote struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Remote creates a new S3Remote.
func NewS3Remote(ctx context.Context, cfg S3Config) (*S3Remote, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Remote{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: NormalizeRemotePath(cfg.Prefix),
	}, nil
}

// Backend returns artifact.BackendS3.
func (s *S3Remote) Backend() artifact.Backend {
	return artifact.BackendS3
}

// Store uploads the local file to <prefix>/<filename>.
func (s *S3Remote) Store(ctx context.Context, localPath, filename string) (string, error) {
	file, err := os.Open(localPath) // #nosec G304 - path comes from the staging directory
	if err != nil {
		return "", fmt.Errorf("open local file: %w", err)
	}
	defer func() { _ = file.Close() }()

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectReader(file); err == nil {
		contentType = mt.String()
	}
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("rewind local file: %w", err)
	}

	key := path.Join(s.prefix, filename)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	return s.prefix, nil
}
