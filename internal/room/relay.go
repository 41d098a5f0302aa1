package room

import (
	"log"

	"github.com/mossy-p/webrtc-collab/internal/models"
)

// Relay forwards offer, answer and ice-candidate messages between two
// participants of the same room. Payloads are passed through untouched;
// the peers re-negotiate on loss, so undeliverable messages are dropped.
type Relay struct {
	registry *Registry
	metrics  *Metrics
}

// NewRelay returns a relay that delivers within registry's rooms
func NewRelay(registry *Registry, metrics *Metrics) *Relay {
	return &Relay{registry: registry, metrics: metrics}
}

// Forward delivers env to the participant addressed by env.To, with From set
// to the sender's ref. It reports whether the target accepted the message.
func (r *Relay) Forward(sender Conn, env models.Envelope) bool {
	from := r.registry.RoomOf(sender.ID())
	if from == nil || env.To == "" {
		r.metrics.signalsDropped.Inc()
		return false
	}

	target := r.registry.Find(from.RoomID, env.To)
	if target == nil {
		log.Printf("Target peer %s not found in room %s", env.To, from.RoomID)
		r.metrics.signalsDropped.Inc()
		return false
	}

	out := models.Envelope{
		Type:    env.Type,
		RoomID:  from.RoomID,
		From:    sender.ID(),
		To:      env.To,
		Payload: env.Payload,
	}
	if !target.Conn.Send(out) {
		log.Printf("Failed to send %s to peer %s, buffer full", env.Type, env.To)
		r.metrics.signalsDropped.Inc()
		return false
	}

	r.metrics.signalsRelayed.WithLabelValues(string(env.Type)).Inc()
	return true
}
