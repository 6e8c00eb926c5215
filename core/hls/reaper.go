package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"EchoFM/logger"
)

// ReapOlderThan deletes every top-level cache entry whose modification
// time is at least maxAge in the past. Entries vanishing mid-scan (a
// concurrent reap, manual cleanup) are tolerated: stat and delete errors
// are logged and the scan continues.
func (c *SegmentCache) ReapOlderThan(maxAge time.Duration) error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache root %s: %w", c.root, err)
	}

	now := time.Now()
	reaped := 0
	for _, entry := range entries {
		path := filepath.Join(c.root, entry.Name())

		info, err := entry.Info()
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("failed to stat cache entry",
					logger.String("path", path),
					logger.ErrorField(err))
			}
			continue
		}

		if now.Sub(info.ModTime()) < maxAge {
			continue
		}

		if err := c.removeEntry(path); err != nil {
			logger.Warn("failed to remove cache entry",
				logger.String("path", path),
				logger.ErrorField(err))
			continue
		}
		reaped++
		logger.Info("reaped cache entry",
			logger.String("path", path),
			logger.Duration("age", now.Sub(info.ModTime())))
	}

	if reaped > 0 {
		logger.Info("cache reap finished",
			logger.Int("reaped", reaped),
			logger.Int("scanned", len(entries)))
	}
	return nil
}

// StartReaper runs ReapOlderThan on a fixed interval until the returned
// stop function is called.
func (c *SegmentCache) StartReaper(interval, maxAge time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := c.ReapOlderThan(maxAge); err != nil {
					logger.Error("cache reap failed", logger.ErrorField(err))
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
