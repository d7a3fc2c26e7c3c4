package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const fingerprintPrefix = "attachments:fp:"

// FingerprintIndex records which blob key holds the content with a given
// fingerprint. Entries never expire; blobs are not deleted.
type FingerprintIndex struct {
	client redis.Cmdable
}

// NewFingerprintIndex creates a new FingerprintIndex.
func NewFingerprintIndex(client redis.Cmdable) *FingerprintIndex {
	return &FingerprintIndex{client: client}
}

// Claim associates key with fingerprint unless another key already holds it.
// It returns the key in the index and whether this call created the entry.
func (s *FingerprintIndex) Claim(ctx context.Context, fingerprint, key string) (string, bool, error) {
	k := fingerprintPrefix + fingerprint

	ok, err := s.client.SetNX(ctx, k, key, 0).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return key, true, nil
	}

	existing, err := s.client.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Released between SETNX and GET; try once more.
			ok, err = s.client.SetNX(ctx, k, key, 0).Result()
			if err != nil {
				return "", false, err
			}
			if ok {
				return key, true, nil
			}
			existing, err = s.client.Get(ctx, k).Result()
		}
		if err != nil {
			return "", false, err
		}
	}
	return existing, false, nil
}

// Release drops a fingerprint entry, used when the first upload failed.
func (s *FingerprintIndex) Release(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, fingerprintPrefix+fingerprint).Err()
}
