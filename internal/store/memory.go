package store

import (
	"context"
	"sync"

	"github.com/mossy-p/webrtc-collab/internal/models"
)

// MemoryStore keeps stroke logs in process memory
type MemoryStore struct {
	mu      sync.Mutex
	strokes map[string][]models.Stroke
}

// NewMemoryStore returns an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{strokes: make(map[string][]models.Stroke)}
}

// Strokes returns a copy of the room's log
func (m *MemoryStore) Strokes(ctx context.Context, roomID string) ([]models.Stroke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Stroke, len(m.strokes[roomID]))
	copy(out, m.strokes[roomID])
	return out, nil
}

// Append adds stroke to the end of the room's log
func (m *MemoryStore) Append(ctx context.Context, roomID string, stroke models.Stroke) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strokes[roomID] = append(m.strokes[roomID], stroke)
	return nil
}

// Clear forgets the room's log
func (m *MemoryStore) Clear(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strokes, roomID)
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
