package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueItem is one entry in a user's play queue.
type QueueItem struct {
	SongID   int64  `json:"songId"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Cover    string `json:"cover,omitempty"`
	Position int    `json:"position"`
	AddedAt  int64  `json:"addedAt,omitempty"`
}

// queueTTL keeps abandoned queues from accumulating.
const queueTTL = 24 * time.Hour

// QueueKey builds the Redis key of a user's play queue.
func QueueKey(userID int64) string {
	return fmt.Sprintf("queue:%d", userID)
}

// AddToQueue appends a song to the end of the user's play queue.
func AddToQueue(ctx context.Context, userID int64, item QueueItem) error {
	if RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}

	key := QueueKey(userID)

	items, err := GetQueue(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get current queue: %w", err)
	}

	item.Position = 0
	for _, existing := range items {
		if existing.Position >= item.Position {
			item.Position = existing.Position + 1
		}
	}
	item.AddedAt = time.Now().Unix()

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	if err := RedisClient.ZAdd(ctx, key, redis.Z{
		Score:  float64(item.Position),
		Member: itemJSON,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add song to queue: %w", err)
	}

	if err := RedisClient.Expire(ctx, key, queueTTL).Err(); err != nil {
		return fmt.Errorf("failed to set queue expiration: %w", err)
	}
	return nil
}

// GetQueue returns the user's play queue in position order.
func GetQueue(ctx context.Context, userID int64) ([]QueueItem, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	members, err := RedisClient.ZRange(ctx, QueueKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	items := make([]QueueItem, 0, len(members))
	for _, member := range members {
		var item QueueItem
		if err := json.Unmarshal([]byte(member), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// RemoveFromQueue deletes one song from the queue and closes the position
// gap it leaves.
func RemoveFromQueue(ctx context.Context, userID int64, songID int64) error {
	if RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}

	key := QueueKey(userID)
	items, err := GetQueue(ctx, userID)
	if err != nil {
		return err
	}

	for i, item := range items {
		if item.SongID != songID {
			continue
		}
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		if err := RedisClient.ZRem(ctx, key, itemJSON).Err(); err != nil {
			return fmt.Errorf("failed to remove song from queue: %w", err)
		}
		if i < len(items)-1 {
			return reorderQueue(ctx, userID)
		}
		return nil
	}
	return fmt.Errorf("song not found in queue")
}

// ClearQueue removes the user's entire play queue.
func ClearQueue(ctx context.Context, userID int64) error {
	if RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if err := RedisClient.Del(ctx, QueueKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// UpdateQueueOrder rewrites the queue in the order given by songIDs.
// Songs missing from songIDs keep their relative order after the listed
// ones.
func UpdateQueueOrder(ctx context.Context, userID int64, songIDs []int64) error {
	if RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}

	items, err := GetQueue(ctx, userID)
	if err != nil {
		return err
	}

	bySong := make(map[int64]QueueItem, len(items))
	for _, item := range items {
		bySong[item.SongID] = item
	}

	reordered := make([]QueueItem, 0, len(items))
	seen := make(map[int64]bool, len(songIDs))
	for _, id := range songIDs {
		if item, ok := bySong[id]; ok && !seen[id] {
			reordered = append(reordered, item)
			seen[id] = true
		}
	}
	for _, item := range items {
		if !seen[item.SongID] {
			reordered = append(reordered, item)
		}
	}

	return writeQueue(ctx, userID, reordered)
}

// ShuffleQueue randomizes the queue order.
func ShuffleQueue(ctx context.Context, userID int64) error {
	items, err := GetQueue(ctx, userID)
	if err != nil {
		return err
	}
	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	return writeQueue(ctx, userID, items)
}

// reorderQueue compacts positions to 0..n-1 after a removal.
func reorderQueue(ctx context.Context, userID int64) error {
	items, err := GetQueue(ctx, userID)
	if err != nil {
		return err
	}
	return writeQueue(ctx, userID, items)
}

// writeQueue atomically replaces the queue contents with items in slice
// order.
func writeQueue(ctx context.Context, userID int64, items []QueueItem) error {
	key := QueueKey(userID)

	pipe := RedisClient.TxPipeline()
	pipe.Del(ctx, key)
	for i, item := range items {
		item.Position = i
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(i), Member: itemJSON})
	}
	if len(items) > 0 {
		pipe.Expire(ctx, key, queueTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rewrite queue: %w", err)
	}
	return nil
}
