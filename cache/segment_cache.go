package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"EchoFM/logger"
)

// DefaultSegmentTTL is how long warmed segments stay in Redis.
const DefaultSegmentTTL = time.Hour

// SetSegmentCache stores one media segment under key.
func SetSegmentCache(key string, data []byte, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := RedisClient.Set(ctx, key, data, expiration).Err()
	if err != nil {
		logger.Error("failed to set segment cache",
			logger.String("key", key),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("segment cached",
		logger.String("key", key),
		logger.Int("dataSize", len(data)),
		logger.Duration("expiration", expiration))
	return nil
}

// GetSegmentCache fetches one media segment. A miss returns (nil, nil) so
// the caller falls through to disk; transient errors are retried once and
// then treated as a miss rather than failing the request.
func GetSegmentCache(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const maxRetries = 2
	retryDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		data, err := RedisClient.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				logger.Debug("segment cache miss", logger.String("key", key))
				return nil, nil
			}

			if attempt < maxRetries-1 {
				logger.Warn("failed to get segment cache, retrying",
					logger.String("key", key),
					logger.Int("attempt", attempt+1),
					logger.ErrorField(err))
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}

			logger.Error("failed to get segment cache, falling back to disk",
				logger.String("key", key),
				logger.ErrorField(err))
			return nil, nil
		}

		logger.Debug("segment cache hit",
			logger.String("key", key),
			logger.Int("dataSize", len(data)))
		return data, nil
	}

	return nil, nil
}

// DeleteSegmentPattern removes every cached segment whose key matches the
// pattern, e.g. "segment:<contentId>:*" when an asset is deleted.
func DeleteSegmentPattern(pattern string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	keys, err := RedisClient.Keys(ctx, pattern).Result()
	if err != nil {
		logger.Error("failed to scan segment cache keys",
			logger.String("pattern", pattern),
			logger.ErrorField(err))
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := RedisClient.Del(ctx, keys...).Err(); err != nil {
		logger.Error("failed to delete segment cache keys",
			logger.String("pattern", pattern),
			logger.Int("keysCount", len(keys)),
			logger.ErrorField(err))
		return err
	}

	logger.Info("segment cache invalidated",
		logger.String("pattern", pattern),
		logger.Int("deletedCount", len(keys)))
	return nil
}

// SegmentStore adapts the package to the hls.SegmentStore interface.
type SegmentStore struct{}

// SetSegment implements hls.SegmentStore.
func (SegmentStore) SetSegment(key string, data []byte, ttl time.Duration) error {
	return SetSegmentCache(key, data, ttl)
}
