package room

import (
	"sync/atomic"

	"github.com/mossy-p/webrtc-collab/internal/models"
)

// Conn is the transport's handle for one open websocket. The room package
// never closes or recreates it; it only looks it up and sends to it.
type Conn interface {
	// ID is the connection ref peers use to address signaling messages
	ID() string
	// UserID is the identity verified at connect time, empty if none
	UserID() string
	// Send queues env without blocking and reports whether it was accepted
	Send(env models.Envelope) bool
	// SendEncoded is Send for an envelope already encoded to JSON
	SendEncoded(data []byte) bool
}

// State is a participant's position in its membership lifecycle
type State int32

const (
	StateJoining State = iota
	StateJoined
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Participant is one connection's membership in one room
type Participant struct {
	Conn     Conn
	RoomID   string
	UserID   string
	UserName string

	state atomic.Int32
}

func newParticipant(conn Conn, roomID, userID, userName string) *Participant {
	return &Participant{
		Conn:     conn,
		RoomID:   roomID,
		UserID:   userID,
		UserName: userName,
	}
}

// Ref returns the connection ref of the participant
func (p *Participant) Ref() string {
	return p.Conn.ID()
}

func (p *Participant) State() State {
	return State(p.state.Load())
}

func (p *Participant) transition(from, to State) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

// Info returns the participant as sent to other clients
func (p *Participant) Info() models.ParticipantInfo {
	return models.ParticipantInfo{
		Ref:      p.Ref(),
		UserID:   p.UserID,
		UserName: p.UserName,
	}
}
