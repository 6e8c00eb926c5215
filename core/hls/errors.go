package hls

import "errors"

// Sentinel errors for the generation pipeline. Callers match with
// errors.Is and map them to HTTP statuses at the boundary.
var (
	// ErrInvalidContentID means the content ID is empty or would escape
	// the cache root.
	ErrInvalidContentID = errors.New("hls: invalid content id")

	// ErrSourceFetch means downloading the source audio failed.
	ErrSourceFetch = errors.New("hls: source fetch failed")

	// ErrTranscode means the transcoding process failed or produced no
	// playlist.
	ErrTranscode = errors.New("hls: transcode failed")

	// ErrSegmentNotFound means the requested segment file does not exist.
	ErrSegmentNotFound = errors.New("hls: segment not found")
)
