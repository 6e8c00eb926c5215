package cache

import (
	"context"
	"fmt"
	"strconv"
)

// RecentlyPlayedLimit caps the per-user history length.
const RecentlyPlayedLimit = 20

// recentKey builds the Redis key of a user's listening history.
func recentKey(userID int64) string {
	return fmt.Sprintf("recent:%d", userID)
}

// PushRecentlyPlayed records a playback: the song moves to the front of
// the user's history, duplicates are collapsed, and the list is trimmed
// to RecentlyPlayedLimit.
func PushRecentlyPlayed(ctx context.Context, userID, songID int64) error {
	if RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}

	key := recentKey(userID)
	member := strconv.FormatInt(songID, 10)

	pipe := RedisClient.TxPipeline()
	pipe.LRem(ctx, key, 0, member)
	pipe.LPush(ctx, key, member)
	pipe.LTrim(ctx, key, 0, RecentlyPlayedLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update recently played: %w", err)
	}
	return nil
}

// GetRecentlyPlayed returns song IDs, most recent first.
func GetRecentlyPlayed(ctx context.Context, userID int64, limit int) ([]int64, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}
	if limit <= 0 || limit > RecentlyPlayedLimit {
		limit = RecentlyPlayedLimit
	}

	members, err := RedisClient.LRange(ctx, recentKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recently played: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
