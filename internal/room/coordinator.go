// Package room coordinates collaboration rooms: who is connected to which
// room, relaying WebRTC negotiation between them, and keeping the shared
// whiteboard in sync.
package room

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/mossy-p/webrtc-collab/internal/queue"
	"github.com/mossy-p/webrtc-collab/internal/store"
)

// Coordinator owns the registry and the components built on it and routes
// inbound envelopes to them.
type Coordinator struct {
	Registry   *Registry
	Lifecycle  *Lifecycle
	Relay      *Relay
	Whiteboard *Whiteboard

	store store.StrokeStore
	queue *queue.Manager
}

// NewCoordinator wires the room components together. The coordinator takes
// ownership of st and q and releases them in Shutdown.
func NewCoordinator(st store.StrokeStore, q *queue.Manager, metrics *Metrics, persistTimeout time.Duration) *Coordinator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	registry := NewRegistry()

	return &Coordinator{
		Registry:   registry,
		Lifecycle:  NewLifecycle(registry, metrics),
		Relay:      NewRelay(registry, metrics),
		Whiteboard: NewWhiteboard(registry, st, q, metrics, persistTimeout),
		store:      st,
		queue:      q,
	}
}

// Dispatch routes one envelope received from conn. Envelopes for rooms the
// connection is not in are ignored by the component that receives them.
func (c *Coordinator) Dispatch(ctx context.Context, conn Conn, env models.Envelope) {
	switch env.Type {
	case models.EventJoinRoom:
		var join models.JoinPayload
		if err := env.Decode(&join); err != nil {
			conn.Send(models.ErrorEnvelope(env.RoomID, "invalid join payload"))
			return
		}
		c.Lifecycle.Join(conn, env.RoomID, join)

	case models.EventLeaveRoom:
		c.Lifecycle.Leave(conn, env.RoomID)

	case models.EventOffer, models.EventAnswer, models.EventCandidate:
		c.Relay.Forward(conn, env)

	case models.EventDraw:
		c.Whiteboard.Draw(conn, env.RoomID, env.Payload)

	case models.EventLoadWhiteboard:
		c.Whiteboard.Load(ctx, conn, env.RoomID)

	case models.EventClearWhiteboard:
		c.Whiteboard.Clear(ctx, conn, env.RoomID)

	case models.EventFileUploaded:
		c.Whiteboard.FileUploaded(conn, env.RoomID, env.Payload)

	default:
		log.Printf("Unknown message type: %s", env.Type)
		conn.Send(models.ErrorEnvelope(env.RoomID, fmt.Sprintf("unknown message type %q", env.Type)))
	}
}

// Disconnect runs the membership cleanup for a closed connection
func (c *Coordinator) Disconnect(conn Conn) {
	c.Lifecycle.Disconnect(conn)
}

// RoomInfo describes roomID's live participants and stored strokes. Unknown
// rooms are reported empty, not as an error.
func (c *Coordinator) RoomInfo(ctx context.Context, roomID string) (models.RoomInfo, error) {
	members := c.Registry.List(roomID)
	info := models.RoomInfo{
		ID:               roomID,
		Participants:     make([]models.ParticipantInfo, 0, len(members)),
		ParticipantCount: len(members),
	}
	for _, m := range members {
		info.Participants = append(info.Participants, m.Info())
	}

	strokes, err := c.Whiteboard.Strokes(ctx, roomID)
	if err != nil {
		return info, fmt.Errorf("load strokes for room %s: %w", roomID, err)
	}
	info.StrokeCount = len(strokes)
	return info, nil
}

// Shutdown closes the registry, drains pending stroke writes and closes the store
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	log.Println("Shutting down room coordinator...")
	c.Registry.Close()

	queueErr := c.queue.Shutdown(timeout)
	if queueErr != nil {
		log.Printf("Persistence queue did not drain: %v", queueErr)
	}
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("close stroke store: %w", err)
	}
	return queueErr
}
