// Package hls owns the local on-demand segment cache: a generate-once,
// serve-many materialization of HLS playlists on disk, reclaimed over time
// by an age-based reaper.
package hls

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"EchoFM/core/audio"
	"EchoFM/logger"
)

const (
	// PlaylistName is the manifest filename inside each cache entry.
	PlaylistName = "playlist.m3u8"
	// tempAudioName holds the downloaded source during generation.
	tempAudioName = "temp_audio.mp3"
	// segmentPattern names the media segments ffmpeg writes.
	segmentPattern = "segment%03d.ts"
)

// DefaultGenerateTimeout bounds one fetch+transcode pipeline. Large files
// legitimately take minutes.
const DefaultGenerateTimeout = 10 * time.Minute

// Entry is one materialized cache entry.
type Entry struct {
	ContentID    string
	Dir          string
	PlaylistPath string
}

// Warmer is an optional hook started while a generation runs, used to push
// freshly written segments into a hot cache. The returned function stops
// the warmer.
type Warmer interface {
	Warm(ctx context.Context, contentID, dir string) (stop func())
}

// SegmentCache materializes segmented representations under a single root
// directory, one subdirectory per content ID. The cache does not vary by
// quality tier: every entry is produced at one fixed transcode profile, so
// the directory name is derived from the content ID alone.
type SegmentCache struct {
	root        string
	processor   audio.Processor
	fetcher     SourceFetcher
	bitrate     string
	segmentTime string
	genTimeout  time.Duration
	warmer      Warmer
	removeEntry func(path string) error

	group singleflight.Group
}

// NewSegmentCache creates a cache rooted at root. The root directory is
// created if missing.
func NewSegmentCache(root string, processor audio.Processor, fetcher SourceFetcher, bitrate, segmentTime string) (*SegmentCache, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root %s: %w", root, err)
	}
	return &SegmentCache{
		root:        root,
		processor:   processor,
		fetcher:     fetcher,
		bitrate:     bitrate,
		segmentTime: segmentTime,
		genTimeout:  DefaultGenerateTimeout,
		removeEntry: os.RemoveAll,
	}, nil
}

// SetGenerateTimeout overrides the per-generation timeout.
func (c *SegmentCache) SetGenerateTimeout(d time.Duration) {
	c.genTimeout = d
}

// SetWarmer installs the optional segment warmer.
func (c *SegmentCache) SetWarmer(w Warmer) {
	c.warmer = w
}

// Root returns the cache root directory.
func (c *SegmentCache) Root() string {
	return c.root
}

// validContentID rejects IDs that are empty or would resolve outside the
// per-entry directory.
func validContentID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}

func (c *SegmentCache) entryDir(contentID string) string {
	return filepath.Join(c.root, contentID)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureSegmented returns the playlist for contentID, generating it first
// if it is not on disk. Concurrent calls for the same contentID share one
// generation; calls for different IDs proceed independently. A started
// generation runs to completion even if the caller that triggered it goes
// away, since later callers inherit its result.
func (c *SegmentCache) EnsureSegmented(ctx context.Context, contentID, sourceURL string) (*Entry, error) {
	if !validContentID(contentID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentID, contentID)
	}

	dir := c.entryDir(contentID)
	playlist := filepath.Join(dir, PlaylistName)

	// Fast path: an existing playlist is served as-is, no fetch and no
	// transcode. Existence only; content is not verified, so a corrupt
	// playlist is indistinguishable from a valid one until eviction.
	if fileExists(playlist) {
		return &Entry{ContentID: contentID, Dir: dir, PlaylistPath: playlist}, nil
	}

	// Single flight per content ID: later callers attach to the running
	// generation instead of starting a second transcode.
	v, err, _ := c.group.Do(contentID, func() (interface{}, error) {
		// A previous flight may have finished between our check and the
		// group admitting us.
		if fileExists(playlist) {
			return &Entry{ContentID: contentID, Dir: dir, PlaylistPath: playlist}, nil
		}
		// The result is shared by every attached waiter, so the pipeline
		// must not die with the leader's request context. genTimeout still
		// bounds it.
		return c.generate(context.Background(), contentID, sourceURL, dir, playlist)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// generate runs the fetch → transcode → cleanup pipeline. A failed attempt
// may leave the directory and temp file behind; the reaper collects them,
// and a retry regenerates in place.
func (c *SegmentCache) generate(ctx context.Context, contentID, sourceURL, dir, playlist string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("generating segmented stream",
		logger.String("contentId", contentID),
		logger.String("sourceUrl", sourceURL))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create entry directory %s: %w", dir, err)
	}

	tempAudio := filepath.Join(dir, tempAudioName)
	if err := c.fetcher.Fetch(ctx, sourceURL, tempAudio); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}

	var stopWarm func()
	if c.warmer != nil {
		stopWarm = c.warmer.Warm(ctx, contentID, dir)
	}

	_, terr := c.processor.ProcessToHLS(ctx, tempAudio, playlist, filepath.Join(dir, segmentPattern), c.bitrate, c.segmentTime)

	if stopWarm != nil {
		stopWarm()
	}

	// The temp source is dead weight either way. Best-effort removal; a
	// leftover file is reclaimed by the reaper and must not mask terr.
	if err := os.Remove(tempAudio); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove temp source audio",
			logger.String("path", tempAudio),
			logger.ErrorField(err))
	}

	if terr != nil {
		// A half-written manifest must never pass the fast path.
		if err := os.Remove(playlist); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove partial playlist",
				logger.String("path", playlist),
				logger.ErrorField(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrTranscode, terr)
	}

	logger.Info("segmented stream ready",
		logger.String("contentId", contentID),
		logger.Duration("elapsed", time.Since(start)))

	return &Entry{ContentID: contentID, Dir: dir, PlaylistPath: playlist}, nil
}

// SegmentPath resolves a segment name for contentID to its on-disk path.
// Pure path join and existence check; it never triggers generation.
func (c *SegmentCache) SegmentPath(contentID, name string) (string, error) {
	if !validContentID(contentID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentID, contentID)
	}
	// Segment names come straight from request paths; anything that isn't
	// a bare filename is treated as absent.
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %s/%s", ErrSegmentNotFound, contentID, name)
	}

	path := filepath.Join(c.entryDir(contentID), name)
	if !fileExists(path) {
		return "", fmt.Errorf("%w: %s/%s", ErrSegmentNotFound, contentID, name)
	}
	return path, nil
}
