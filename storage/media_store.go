// Package storage wraps the remote media store: object ingest, deletion
// and templated delivery-URL construction. The store's own transcoding
// pipeline is opaque to this repository; we only speak its key layout.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUploadFailed is the terminal error of the bounded-retry ingest
// wrapper, returned only after all attempts are exhausted.
var ErrUploadFailed = errors.New("storage: upload failed")

// UploadResult is what ingest hands back: the stable content identifier
// and the base delivery URL of the stored asset.
type UploadResult struct {
	ContentID string `json:"contentId"`
	URL       string `json:"url"`
}

// MediaStore is the remote media store boundary. StreamURL and
// ManifestURL are templated string construction and never touch the
// network; the upload and delete calls do.
type MediaStore interface {
	// UploadAudio ingests raw audio bytes and assigns a content ID.
	// Ingest is observed to fail transiently under load and is retried
	// internally; a returned error is terminal.
	UploadAudio(ctx context.Context, r io.Reader, size int64, contentType string) (*UploadResult, error)

	// UploadImage ingests a cover image.
	UploadImage(ctx context.Context, r io.Reader, size int64, contentType string) (*UploadResult, error)

	// DeleteAudio removes every stored representation of a content ID.
	DeleteAudio(ctx context.Context, contentID string) error

	// DeleteImage removes a stored cover image.
	DeleteImage(ctx context.Context, imageID string) error

	// StreamURL returns the progressive single-file URL for a rendition
	// at the given bitrate, suitable for HTTP range requests.
	StreamURL(contentID, bitrate string) string

	// ManifestURL returns the store-hosted HLS manifest URL for a
	// rendition at the given bitrate.
	ManifestURL(contentID, bitrate string) string

	// PresignUpload returns a signed URL a client can PUT an object to
	// directly, bypassing this server for large transfers.
	PresignUpload(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}
