package artifact

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/moolen/tripwire/internal/logging"
)

// Uploader ships a local artifact to remote storage and returns its location.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// NopUploader is used when no bucket is configured.
type NopUploader struct{}

// Upload logs that the upload is skipped and returns an empty destination.
func (NopUploader) Upload(_ context.Context, localPath string) (string, error) {
	logging.GetLogger("artifact").Debug("No bucket configured, skipping upload of %s", localPath)
	return "", nil
}

// S3Config configures an S3Uploader.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint targets S3-compatible stores such as MinIO.
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader puts artifacts under <prefix>/<basename> in a bucket.
type S3Uploader struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *logging.Logger
}

// NewS3Uploader builds an uploader from the default AWS credential chain,
// overridden by static credentials when both keys are set.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Uploader(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Uploader(client putObjectAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.GetLogger("artifact"),
	}
}

// Key returns the object key of localPath.
func (u *S3Uploader) Key(localPath string) string {
	return path.Join(u.prefix, filepath.Base(localPath))
}

// Upload puts localPath into the bucket and returns its s3:// URL.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	key := u.Key(localPath)
	contentType := FormatJSON.ContentType()
	if ext := filepath.Ext(localPath); ext == ".yaml" || ext == ".yml" {
		contentType = FormatYAML.ContentType()
	}

	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("S3 put object failed: %w", err)
	}

	dest := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info("Uploaded %s to %s", localPath, dest)
	return dest, nil
}
