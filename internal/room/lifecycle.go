package room

import (
	"log"

	"github.com/mossy-p/webrtc-collab/internal/models"
)

const (
	reasonExplicit   = "explicit"
	reasonDisconnect = "disconnect"
	reasonSwitch     = "switch"
)

// Lifecycle drives participants through Joining -> Joined -> Left. Explicit
// leaves and closed connections share one cleanup path that runs at most
// once per participant.
type Lifecycle struct {
	registry *Registry
	metrics  *Metrics
}

// NewLifecycle returns a lifecycle manager over registry
func NewLifecycle(registry *Registry, metrics *Metrics) *Lifecycle {
	return &Lifecycle{registry: registry, metrics: metrics}
}

// Join puts conn into roomID. The joiner receives the other participants,
// the others receive participant-joined. A connection already in another
// room leaves it first; repeating a join for the same room only resends
// the list.
func (l *Lifecycle) Join(conn Conn, roomID string, join models.JoinPayload) *Participant {
	if roomID == "" {
		conn.Send(models.ErrorEnvelope("", "roomId is required"))
		return nil
	}

	userID := conn.UserID()
	if userID == "" {
		userID = join.UserID
	}

	if current := l.registry.RoomOf(conn.ID()); current != nil {
		if current.RoomID == roomID {
			l.sendParticipants(conn, roomID, l.registry.List(roomID))
			return current
		}
		l.leave(current, reasonSwitch)
	}

	p := newParticipant(conn, roomID, userID, join.UserName)
	others, added := l.registry.Join(roomID, p)
	if !added {
		return nil
	}
	// A concurrent disconnect may have already taken p to Left
	if !p.transition(StateJoining, StateJoined) {
		return nil
	}
	l.metrics.joins.Inc()

	l.sendParticipants(conn, roomID, others)

	joined, err := models.NewEnvelope(models.EventParticipantJoined, roomID, p.Info())
	if err != nil {
		log.Printf("Failed to marshal join notification: %v", err)
		return p
	}
	joined.From = p.Ref()
	for _, other := range others {
		if !other.Conn.Send(joined) {
			log.Printf("Failed to notify peer %s of join, buffer full", other.Ref())
		}
	}

	log.Printf("Peer %s (%s) joined room %s - %d participants", p.Ref(), p.UserName, roomID, len(others)+1)
	return p
}

// sendParticipants sends conn the members of roomID other than itself
func (l *Lifecycle) sendParticipants(conn Conn, roomID string, members []*Participant) {
	list := models.ParticipantsPayload{Participants: make([]models.ParticipantInfo, 0, len(members))}
	for _, m := range members {
		if m.Ref() == conn.ID() {
			continue
		}
		list.Participants = append(list.Participants, m.Info())
	}

	env, err := models.NewEnvelope(models.EventParticipants, roomID, list)
	if err != nil {
		log.Printf("Failed to marshal participant list: %v", err)
		return
	}
	conn.Send(env)
}

// Leave handles an explicit leave-room. Leaving a room the connection is not in is a no-op.
func (l *Lifecycle) Leave(conn Conn, roomID string) bool {
	p := l.registry.Find(roomID, conn.ID())
	if p == nil {
		return false
	}
	return l.leave(p, reasonExplicit)
}

// Disconnect cleans up after a closed connection. It is safe to call any
// number of times and after an explicit leave.
func (l *Lifecycle) Disconnect(conn Conn) bool {
	p := l.registry.RoomOf(conn.ID())
	if p == nil {
		return false
	}
	return l.leave(p, reasonDisconnect)
}

// leave is the single cleanup routine. Only the caller that moves p to
// Left removes it and notifies the room.
func (l *Lifecycle) leave(p *Participant, reason string) bool {
	if !p.transition(StateJoined, StateLeft) && !p.transition(StateJoining, StateLeft) {
		return false
	}

	info := p.Info()
	remaining, ok := l.registry.Leave(p.RoomID, p)
	if !ok {
		return false
	}
	l.metrics.leaves.WithLabelValues(reason).Inc()
	log.Printf("Peer %s left room %s (%s)", info.Ref, p.RoomID, reason)

	if remaining == 0 {
		return true
	}

	left, err := models.NewEnvelope(models.EventParticipantLeft, p.RoomID, info)
	if err != nil {
		log.Printf("Failed to marshal leave notification: %v", err)
		return true
	}
	left.From = info.Ref
	l.registry.Broadcast(p.RoomID, left, info.Ref)
	return true
}
