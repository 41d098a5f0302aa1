// Package store persists each room's whiteboard stroke log.
//
// The log is append-only apart from Clear, which truncates it. Callers
// serialise writes per room; implementations only need to keep the order in
// which Append calls for one room complete.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mossy-p/webrtc-collab/config"
	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/mossy-p/webrtc-collab/internal/redis"
)

var ErrUnknownBackend = errors.New("store: unknown backend")

// StrokeStore is the durable stroke log owned outside the room core
type StrokeStore interface {
	// Strokes returns the full log in append order; an unknown room yields an empty slice
	Strokes(ctx context.Context, roomID string) ([]models.Stroke, error)
	Append(ctx context.Context, roomID string, stroke models.Stroke) error
	Clear(ctx context.Context, roomID string) error
	Close() error
}

// New opens the backend selected by cfg.StrokeStore
func New(ctx context.Context, cfg *config.Config) (StrokeStore, error) {
	switch cfg.StrokeStore {
	case "redis":
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Printf("Redis stroke store connected at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		return NewRedisStore(client, cfg.Redis.StrokeTTL), nil
	case "dynamodb":
		s, err := NewDynamoStore(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		log.Printf("DynamoDB stroke store using table %s", cfg.DynamoDB.Table)
		return s, nil
	case "memory":
		log.Println("Using in-memory stroke store, whiteboards will not survive a restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StrokeStore)
	}
}
