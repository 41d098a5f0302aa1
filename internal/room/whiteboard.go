package room

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/mossy-p/webrtc-collab/internal/queue"
	"github.com/mossy-p/webrtc-collab/internal/store"
)

// Whiteboard broadcasts drawing operations to a room and mirrors them into
// the stroke store. The broadcast is what live participants see; the store
// only seeds late joiners, so store failures are logged and never undo or
// repeat a broadcast.
//
// Every store call for a room goes through the same persistence worker, so
// appends land in broadcast order and a load observes the appends queued
// before it.
type Whiteboard struct {
	registry *Registry
	store    store.StrokeStore
	queue    *queue.Manager
	metrics  *Metrics
	timeout  time.Duration

	// mu orders broadcast and enqueue of concurrent draws; held only for non-blocking work
	mu sync.Mutex
}

// NewWhiteboard returns a whiteboard persisting through q into st. Store
// calls are bounded by timeout, 5s when zero.
func NewWhiteboard(registry *Registry, st store.StrokeStore, q *queue.Manager, metrics *Metrics, timeout time.Duration) *Whiteboard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Whiteboard{
		registry: registry,
		store:    st,
		queue:    q,
		metrics:  metrics,
		timeout:  timeout,
	}
}

func (w *Whiteboard) member(conn Conn, roomID string) bool {
	return roomID != "" && w.registry.Find(roomID, conn.ID()) != nil
}

// Draw sends the draw payload exactly as received to every other member of
// roomID and queues its stroke for persistence. A payload whose stroke
// cannot be read is still broadcast but not persisted. Senders outside the
// room are ignored.
func (w *Whiteboard) Draw(sender Conn, roomID string, payload json.RawMessage) {
	if !w.member(sender, roomID) {
		return
	}

	env := models.Envelope{Type: models.EventDraw, RoomID: roomID, From: sender.ID(), Payload: payload}

	var draw models.DrawPayload
	persist := true
	if err := env.Decode(&draw); err != nil {
		log.Printf("Not persisting unreadable stroke from peer %s in room %s: %v", sender.ID(), roomID, err)
		persist = false
	}
	stroke := draw.Stroke

	job := queue.Job{Key: roomID, Fn: func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		if err := w.store.Append(ctx, roomID, stroke); err != nil {
			log.Printf("Failed to persist stroke for room %s: %v", roomID, err)
			w.metrics.persistFailures.Inc()
			return err
		}
		return nil
	}}

	var err error
	w.mu.Lock()
	w.registry.Broadcast(roomID, env, sender.ID())
	if persist {
		err = w.queue.TryEnqueue(job)
	}
	w.mu.Unlock()

	w.metrics.strokes.Inc()
	if err != nil {
		log.Printf("Dropped stroke persistence for room %s: %v", roomID, err)
		w.metrics.persistFailures.Inc()
	}
}

// Strokes returns roomID's stroke log, ordered after any queued writes
func (w *Whiteboard) Strokes(ctx context.Context, roomID string) ([]models.Stroke, error) {
	var strokes []models.Stroke
	err := w.queue.Do(ctx, roomID, func(jobCtx context.Context) error {
		jobCtx, cancel := context.WithTimeout(jobCtx, w.timeout)
		defer cancel()

		var err error
		strokes, err = w.store.Strokes(jobCtx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return strokes, nil
}

// Load sends the full stroke log of roomID to the requester only
func (w *Whiteboard) Load(ctx context.Context, requester Conn, roomID string) {
	if !w.member(requester, roomID) {
		return
	}

	strokes, err := w.Strokes(ctx, roomID)
	if err != nil {
		log.Printf("Failed to load strokes for room %s: %v", roomID, err)
		w.metrics.persistFailures.Inc()
	}
	if strokes == nil {
		strokes = []models.Stroke{}
	}

	env, err := models.NewEnvelope(models.EventLoadWhiteboard, roomID, models.StrokesPayload{Strokes: strokes})
	if err != nil {
		log.Printf("Failed to marshal stroke log: %v", err)
		return
	}
	requester.Send(env)
}

// Clear truncates roomID's stroke log and tells every member, the requester included
func (w *Whiteboard) Clear(ctx context.Context, requester Conn, roomID string) {
	if !w.member(requester, roomID) {
		return
	}

	err := w.queue.Do(ctx, roomID, func(jobCtx context.Context) error {
		jobCtx, cancel := context.WithTimeout(jobCtx, w.timeout)
		defer cancel()
		return w.store.Clear(jobCtx, roomID)
	})
	if err != nil {
		log.Printf("Failed to clear strokes for room %s: %v", roomID, err)
		w.metrics.persistFailures.Inc()
	}

	env := models.Envelope{Type: models.EventClearWhiteboard, RoomID: roomID, From: requester.ID()}
	w.registry.Broadcast(roomID, env, "")
	w.metrics.clears.Inc()
	log.Printf("Whiteboard cleared in room %s by peer %s", roomID, requester.ID())
}

// FileUploaded forwards the sender's file notification, payload untouched,
// to the other members of roomID. Nothing is stored here.
func (w *Whiteboard) FileUploaded(sender Conn, roomID string, payload json.RawMessage) {
	if !w.member(sender, roomID) {
		return
	}

	env := models.Envelope{Type: models.EventFileUploaded, RoomID: roomID, From: sender.ID(), Payload: payload}
	w.registry.Broadcast(roomID, env, sender.ID())
}
