package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Config holds connection settings for an S3 compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Store implements BlobStore on top of the AWS SDK. It works with any
// S3 compatible service (MinIO, R2, Supabase storage S3 gateway).
type S3Store struct {
	client s3iface.S3API

	// S3 has no per-bucket size cap or MIME allow-list, so the configs passed
	// to CreateBucket are kept here and enforced on Put.
	mu      sync.RWMutex
	configs map[string]BucketConfig
}

// NewS3Store creates a store from the given configuration.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	return NewS3StoreWithClient(s3.New(sess)), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client s3iface.S3API) *S3Store {
	return &S3Store{
		client:  client,
		configs: make(map[string]BucketConfig),
	}
}

// BucketExists probes the bucket with HEAD.
func (s *S3Store) BucketExists(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrBucketNotFound
		}
		return fmt.Errorf("failed to probe bucket %s: %w", bucket, err)
	}
	return nil
}

// CreateBucket creates the bucket. An already-owned bucket is not an error.
func (s *S3Store) CreateBucket(ctx context.Context, bucket string, cfg BucketConfig) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if cfg.Public {
		input.ACL = aws.String(s3.BucketCannedACLPublicRead)
	}

	_, err := s.client.CreateBucketWithContext(ctx, input)
	if err != nil {
		var aerr awserr.Error
		if !errors.As(err, &aerr) || aerr.Code() != s3.ErrCodeBucketAlreadyOwnedByYou {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	s.mu.Lock()
	s.configs[bucket] = cfg
	s.mu.Unlock()
	return nil
}

// Put uploads data under key.
func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string, meta map[string]string) error {
	s.mu.RLock()
	cfg, ok := s.configs[bucket]
	s.mu.RUnlock()
	if ok && !cfg.Allows(int64(len(data)), contentType) {
		return fmt.Errorf("%w: %s (%d bytes)", ErrObjectRejected, contentType, len(data))
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if len(meta) > 0 {
		input.Metadata = aws.StringMap(meta)
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Exists checks for the object with HEAD.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// maxPresignTTL is the longest validity SigV4 accepts for a presigned URL.
const maxPresignTTL = 7 * 24 * time.Hour

// SignedURL presigns a GET for the object. Lifetimes beyond seven days are
// clamped to the SigV4 maximum.
func (s *S3Store) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if ttl > maxPresignTTL {
		ttl = maxPresignTTL
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)

	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// Ensure S3Store implements BlobStore.
var _ BlobStore = (*S3Store)(nil)
