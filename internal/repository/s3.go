package repository

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"snaprestore.io/snaprestore-cli/internal/config"
)

// latestIndexBlob is written by the cluster at the root of every snapshot
// repository and names the current repository generation.
const latestIndexBlob = "index.latest"

// CredentialLookup resolves a credential by environment variable name.
type CredentialLookup func(name string) (string, bool)

// S3Check confirms that the bucket behind a snapshot repository is
// reachable and holds repository data.
type S3Check struct {
	client   *s3.Client
	bucket   string
	prefix   string
	endpoint string
}

// NewS3Check creates a check from repository configuration.
func NewS3Check(cfg *config.S3, lookup CredentialLookup) (*S3Check, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 repository configuration has no bucket")
	}

	accessKey, ok := lookup(cfg.AccessKeyEnv)
	if !ok {
		return nil, fmt.Errorf("S3 access key %s is not set", cfg.AccessKeyEnv)
	}
	secretKey, ok := lookup(cfg.SecretKeyEnv)
	if !ok {
		return nil, fmt.Errorf("S3 secret key %s is not set", cfg.SecretKeyEnv)
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		},
	}

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Check{
		client:   s3.New(s3.Options{}, opts...),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		endpoint: cfg.Endpoint,
	}, nil
}

// Check fails if the bucket cannot be reached or has no repository data
// under the configured prefix.
func (c *S3Check) Check(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	}); err != nil {
		return fmt.Errorf("bucket %s is not reachable: %w", c.Identifier(), err)
	}

	key := path.Join(c.prefix, latestIndexBlob)
	if _, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("no snapshot repository found at s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// Identifier returns the S3 URI of the repository.
func (c *S3Check) Identifier() string {
	if c.endpoint != "" {
		return fmt.Sprintf("s3://%s/%s (endpoint: %s)", c.bucket, c.prefix, c.endpoint)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, c.prefix)
}
