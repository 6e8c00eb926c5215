package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"EchoFM/config"
	"EchoFM/core/stream"
	"EchoFM/logger"
)

const (
	uploadAttempts = 3
	uploadBackoff  = 2 * time.Second
)

// MinioStore implements MediaStore on a MinIO/S3 bucket.
//
// Key layout:
//
//	audio/<contentId>/source.mp3         original upload
//	audio/<contentId>/<bitrate>.mp3      per-tier renditions
//	hls/<contentId>/<bitrate>/playlist.m3u8   store-hosted manifests
//	covers/<imageId>                     cover images
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string // scheme://host[:port], baked into delivery URLs
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	scheme := "http"
	if cfg.MinioUseSSL {
		scheme = "https"
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.MinioBucket,
		publicURL: fmt.Sprintf("%s://%s", scheme, cfg.MinioPublicEndpoint),
	}, nil
}

func audioKey(contentID, bitrate string) string {
	return fmt.Sprintf("audio/%s/%s.mp3", contentID, bitrate)
}

func sourceKey(contentID string) string {
	return fmt.Sprintf("audio/%s/source.mp3", contentID)
}

func manifestKey(contentID, bitrate string) string {
	return fmt.Sprintf("hls/%s/%s/playlist.m3u8", contentID, bitrate)
}

// objectURL builds the public delivery URL for a key. Pure string
// construction.
func (s *MinioStore) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
}

// StreamURL implements MediaStore and stream.URLBuilder.
func (s *MinioStore) StreamURL(contentID, bitrate string) string {
	return s.objectURL(audioKey(contentID, bitrate))
}

// ManifestURL implements MediaStore and stream.URLBuilder.
func (s *MinioStore) ManifestURL(contentID, bitrate string) string {
	return s.objectURL(manifestKey(contentID, bitrate))
}

// putWithRetry uploads one object, retrying up to uploadAttempts times
// with a fixed backoff between attempts.
func (s *MinioStore) putWithRetry(ctx context.Context, key string, data []byte, contentType string) error {
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err == nil {
			if attempt > 1 {
				logger.Info("upload succeeded after retry",
					logger.String("key", key),
					logger.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err
		logger.Warn("upload attempt failed",
			logger.String("key", key),
			logger.Int("attempt", attempt),
			logger.Int("maxAttempts", uploadAttempts),
			logger.ErrorField(err))

		if attempt < uploadAttempts {
			select {
			case <-time.After(uploadBackoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUploadFailed, ctx.Err())
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUploadFailed, key, uploadAttempts, lastErr)
}

// UploadAudio ingests raw audio, assigns a content ID and seeds the
// per-tier rendition keys. Rendition keys start as copies of the source;
// the store's out-of-band transcoder replaces them at the target bitrates.
func (s *MinioStore) UploadAudio(ctx context.Context, r io.Reader, size int64, contentType string) (*UploadResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload body: %v", ErrUploadFailed, err)
	}

	contentID := uuid.NewString()
	src := sourceKey(contentID)
	if err := s.putWithRetry(ctx, src, data, contentType); err != nil {
		return nil, err
	}

	for _, q := range stream.Tiers() {
		dst := audioKey(contentID, q.Bitrate())
		_, err := s.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
			minio.CopySrcOptions{Bucket: s.bucket, Object: src})
		if err != nil {
			logger.Warn("failed to seed rendition key",
				logger.String("key", dst),
				logger.ErrorField(err))
		}
	}

	logger.Info("audio ingested",
		logger.String("contentId", contentID),
		logger.Int64("bytes", int64(len(data))))

	return &UploadResult{ContentID: contentID, URL: s.objectURL(src)}, nil
}

// UploadImage ingests a cover image under covers/.
func (s *MinioStore) UploadImage(ctx context.Context, r io.Reader, size int64, contentType string) (*UploadResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload body: %v", ErrUploadFailed, err)
	}

	imageID := "covers/" + uuid.NewString()
	if err := s.putWithRetry(ctx, imageID, data, contentType); err != nil {
		return nil, err
	}
	return &UploadResult{ContentID: imageID, URL: s.objectURL(imageID)}, nil
}

// deletePrefix removes every object under a prefix.
func (s *MinioStore) deletePrefix(ctx context.Context, prefix string) error {
	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", object.Key, err)
		}
	}
	return nil
}

// DeleteAudio removes the source, all renditions and any store-hosted
// manifests of a content ID.
func (s *MinioStore) DeleteAudio(ctx context.Context, contentID string) error {
	if err := s.deletePrefix(ctx, "audio/"+contentID+"/"); err != nil {
		return err
	}
	return s.deletePrefix(ctx, "hls/"+contentID+"/")
}

// DeleteImage removes a stored cover image.
func (s *MinioStore) DeleteImage(ctx context.Context, imageID string) error {
	return s.client.RemoveObject(ctx, s.bucket, imageID, minio.RemoveObjectOptions{})
}

// PresignUpload returns a signed PUT URL for direct client upload.
func (s *MinioStore) PresignUpload(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", objectKey, err)
	}
	return u.String(), nil
}
