package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBucketNotFound is returned when a bucket probe finds nothing.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectRejected is returned when an object violates the bucket config.
	ErrObjectRejected = errors.New("object rejected by bucket policy")
)

// BucketConfig describes the limits applied to objects in a bucket.
type BucketConfig struct {
	Public           bool
	FileSizeLimit    int64
	AllowedMIMETypes []string
}

// Allows reports whether an object of the given size and type fits the config.
func (c BucketConfig) Allows(size int64, contentType string) bool {
	if c.FileSizeLimit > 0 && size > c.FileSizeLimit {
		return false
	}
	if len(c.AllowedMIMETypes) == 0 {
		return true
	}
	for _, t := range c.AllowedMIMETypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// BlobStore is the object storage collaborator used for attachments.
type BlobStore interface {
	// BucketExists probes the bucket. A missing bucket yields ErrBucketNotFound.
	BucketExists(ctx context.Context, bucket string) error

	// CreateBucket creates the bucket with the given config.
	CreateBucket(ctx context.Context, bucket string, cfg BucketConfig) error

	// Put stores data under key. Existing objects are overwritten.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string, meta map[string]string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// SignedURL issues a time-limited URL for reading the object.
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
