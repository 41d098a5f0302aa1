package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each room's log in a Redis list at room:<id>:strokes
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore keeps each room's log in a list that expires ttl after the
// last write. Zero ttl keeps logs forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func strokesKey(roomID string) string {
	return "room:" + roomID + ":strokes"
}

// Strokes reads the whole list in append order
func (s *RedisStore) Strokes(ctx context.Context, roomID string) ([]models.Stroke, error) {
	raw, err := s.client.LRange(ctx, strokesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load strokes for room %s: %w", roomID, err)
	}

	strokes := make([]models.Stroke, 0, len(raw))
	for _, item := range raw {
		var stroke models.Stroke
		if err := json.Unmarshal([]byte(item), &stroke); err != nil {
			return nil, fmt.Errorf("decode stroke in room %s: %w", roomID, err)
		}
		strokes = append(strokes, stroke)
	}
	return strokes, nil
}

// Append pushes stroke onto the tail of the room's list and refreshes its expiry
func (s *RedisStore) Append(ctx context.Context, roomID string, stroke models.Stroke) error {
	data, err := json.Marshal(stroke)
	if err != nil {
		return fmt.Errorf("encode stroke: %w", err)
	}

	// Every write refreshes the TTL so abandoned boards expire on their own
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, strokesKey(roomID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, strokesKey(roomID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append stroke to room %s: %w", roomID, err)
	}
	return nil
}

// Clear deletes the room's list
func (s *RedisStore) Clear(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, strokesKey(roomID)).Err(); err != nil {
		return fmt.Errorf("clear strokes for room %s: %w", roomID, err)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
