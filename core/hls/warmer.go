package hls

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"EchoFM/logger"
)

// SegmentStore is the hot cache segments are pushed into as they are
// written, typically Redis.
type SegmentStore interface {
	SetSegment(key string, data []byte, ttl time.Duration) error
}

// SegmentKey builds the hot-cache key for one segment of a content ID.
func SegmentKey(contentID, name string) string {
	return "segment:" + contentID + ":" + name
}

// CacheWarmer watches a generation directory and pushes completed .ts
// files into the segment store, so first playback after generation is
// served from memory. Entirely best-effort: watch or store failures only
// log, generation itself is never affected.
type CacheWarmer struct {
	store SegmentStore
	ttl   time.Duration
}

// NewCacheWarmer creates a warmer writing segments with the given TTL.
func NewCacheWarmer(store SegmentStore, ttl time.Duration) *CacheWarmer {
	return &CacheWarmer{store: store, ttl: ttl}
}

// Warm implements the Warmer hook. ffmpeg writes each segment and moves
// on, so a segment is considered complete when the next one appears or
// when the warmer is stopped after transcode finishes.
func (w *CacheWarmer) Warm(ctx context.Context, contentID, dir string) (stop func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("failed to create segment watcher", logger.ErrorField(err))
		return func() {}
	}
	if err := watcher.Add(dir); err != nil {
		logger.Warn("failed to watch generation dir",
			logger.String("dir", dir),
			logger.ErrorField(err))
		watcher.Close()
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		var pending string // last seen, possibly still being written
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					w.push(contentID, pending)
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !strings.HasSuffix(event.Name, ".ts") {
					continue
				}
				if pending != "" && pending != event.Name {
					// A new segment means the previous one is complete.
					w.push(contentID, pending)
				}
				pending = event.Name
			case err, ok := <-watcher.Errors:
				if !ok {
					w.push(contentID, pending)
					return
				}
				logger.Warn("segment watcher error", logger.ErrorField(err))
			case <-ctx.Done():
				return
			case <-done:
				w.push(contentID, pending)
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
		<-finished
	}
}

// push reads a finished segment and stores it in the hot cache.
func (w *CacheWarmer) push(contentID, path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read segment for warmup",
			logger.String("path", path),
			logger.ErrorField(err))
		return
	}
	key := SegmentKey(contentID, filepath.Base(path))
	if err := w.store.SetSegment(key, data, w.ttl); err != nil {
		logger.Warn("failed to warm segment cache",
			logger.String("key", key),
			logger.ErrorField(err))
		return
	}
	logger.Debug("warmed segment",
		logger.String("key", key),
		logger.Int("bytes", len(data)))
}
