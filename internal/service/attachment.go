package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"fleetops/internal/domain"
	"fleetops/internal/imaging"
	"fleetops/internal/redis"
	"fleetops/internal/storage"
)

// AttachmentBucketConfig is declared when the attachment bucket is created.
var AttachmentBucketConfig = storage.BucketConfig{
	FileSizeLimit:    imaging.MaxEncodedSize,
	AllowedMIMETypes: []string{"image/jpeg", "image/png"},
}

// DefaultSignedURLTTL is how long an attachment reference stays valid.
const DefaultSignedURLTTL = 365 * 24 * time.Hour

// AttachmentProvisioner stores images in blob storage and hands back durable
// references. Identical content is stored once.
type AttachmentProvisioner struct {
	store      storage.BlobStore
	index      redis.FingerprintIndexInterface
	compressor *imaging.Compressor
	bucket     string
	urlTTL     time.Duration
	log        logrus.FieldLogger
}

// NewAttachmentProvisioner creates a new AttachmentProvisioner. A nil index
// disables de-duplication.
func NewAttachmentProvisioner(
	store storage.BlobStore,
	index redis.FingerprintIndexInterface,
	compressor *imaging.Compressor,
	bucket string,
	urlTTL time.Duration,
	log logrus.FieldLogger,
) *AttachmentProvisioner {
	if urlTTL <= 0 {
		urlTTL = DefaultSignedURLTTL
	}
	return &AttachmentProvisioner{
		store:      store,
		index:      index,
		compressor: compressor,
		bucket:     bucket,
		urlTTL:     urlTTL,
		log:        log,
	}
}

// ProvisionReader decodes an uploaded image and provisions it.
func (p *AttachmentProvisioner) ProvisionReader(ctx context.Context, r io.Reader) (*domain.Attachment, error) {
	img, format, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable image: %v", ErrInvalidMessage, err)
	}
	p.log.WithField("format", format).Debug("attachment decoded")
	return p.Provision(ctx, img)
}

// Provision compresses img, uploads it unless identical content is already
// stored, and returns its key with a signed URL.
func (p *AttachmentProvisioner) Provision(ctx context.Context, img image.Image) (*domain.Attachment, error) {
	p.ensureBucket(ctx)

	encoded, err := p.compressor.Compress(img)
	if err != nil {
		return nil, err
	}

	sum := blake3.Sum256(encoded.Data)
	fingerprint := hex.EncodeToString(sum[:])
	meta := map[string]string{"fingerprint": fingerprint}

	key := "chat/" + uuid.New().String() + ".jpg"
	fresh := true
	if p.index != nil {
		if key, fresh, err = p.index.Claim(ctx, fingerprint, key); err != nil {
			return nil, fmt.Errorf("claim attachment fingerprint: %w", err)
		}
	}

	if fresh {
		if err := p.store.Put(ctx, p.bucket, key, encoded.Data, encoded.MIMEType, meta); err != nil {
			if p.index != nil {
				if rerr := p.index.Release(ctx, fingerprint); rerr != nil {
					p.log.WithError(rerr).WithField("fingerprint", fingerprint).Warn("release fingerprint failed")
				}
			}
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
	} else {
		exists, err := p.store.Exists(ctx, p.bucket, key)
		if err != nil {
			return nil, fmt.Errorf("check attachment: %w", err)
		}
		if !exists {
			if err := p.store.Put(ctx, p.bucket, key, encoded.Data, encoded.MIMEType, meta); err != nil {
				return nil, fmt.Errorf("upload attachment: %w", err)
			}
		}
	}

	a := &domain.Attachment{
		Key:         key,
		MIMEType:    encoded.MIMEType,
		Fingerprint: fingerprint,
		Size:        int64(len(encoded.Data)),
	}
	if err := p.Sign(ctx, a); err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"key":     key,
		"bytes":   len(encoded.Data),
		"quality": encoded.Quality,
		"reused":  !fresh,
	}).Info("attachment provisioned")

	return a, nil
}

// Sign mints a fresh signed URL for a stored attachment.
func (p *AttachmentProvisioner) Sign(ctx context.Context, a *domain.Attachment) error {
	url, err := p.store.SignedURL(ctx, p.bucket, a.Key, p.urlTTL)
	if err != nil {
		return fmt.Errorf("sign attachment url: %w", err)
	}
	a.URL = url
	return nil
}

// ensureBucket creates the bucket when the probe reports it missing. A failed
// create is logged and ignored: another writer may have created it, and the
// upload that follows surfaces a bucket that really is unusable.
func (p *AttachmentProvisioner) ensureBucket(ctx context.Context) {
	err := p.store.BucketExists(ctx, p.bucket)
	if err == nil {
		return
	}
	if cerr := p.store.CreateBucket(ctx, p.bucket, AttachmentBucketConfig); cerr != nil {
		p.log.WithError(cerr).WithFields(logrus.Fields{
			"bucket":      p.bucket,
			"probe_error": err.Error(),
		}).Warn("attachment bucket create failed")
	}
}
