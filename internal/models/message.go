package models

import "encoding/json"

// EventType names a message exchanged over a participant's websocket
type EventType string

const (
	// Client -> server
	EventJoinRoom        EventType = "join-room"
	EventLeaveRoom       EventType = "leave-room"
	EventOffer           EventType = "offer"
	EventAnswer          EventType = "answer"
	EventCandidate       EventType = "ice-candidate"
	EventDraw            EventType = "draw"
	EventLoadWhiteboard  EventType = "load-whiteboard"
	EventClearWhiteboard EventType = "clear-whiteboard"
	EventFileUploaded    EventType = "file-uploaded"

	// Server -> client
	EventConnected         EventType = "connected"
	EventParticipants      EventType = "participants"
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventError             EventType = "error"
)

// IsSignal reports whether the event is relayed verbatim between two peers
func (t EventType) IsSignal() bool {
	return t == EventOffer || t == EventAnswer || t == EventCandidate
}

// Envelope is the JSON frame sent in both directions. Payload stays raw so
// signaling bodies pass through untouched.
type Envelope struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewEnvelope builds an envelope with payload marshalled to JSON
func NewEnvelope(t EventType, roomID string, payload any) (Envelope, error) {
	env := Envelope{Type: t, RoomID: roomID}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ErrorEnvelope is sent back to a single connection when its request could not be served
func ErrorEnvelope(roomID, msg string) Envelope {
	return Envelope{Type: EventError, RoomID: roomID, Error: msg}
}

// JoinPayload accompanies join-room
type JoinPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ConnectedPayload tells a new connection its own ref
type ConnectedPayload struct {
	Ref    string `json:"ref"`
	UserID string `json:"userId,omitempty"`
}

// ParticipantsPayload is the list sent to a participant right after it joins
type ParticipantsPayload struct {
	Participants []ParticipantInfo `json:"participants"`
}

// DrawPayload carries one stroke
type DrawPayload struct {
	Stroke Stroke `json:"stroke"`
}

// StrokesPayload carries the full stroke log of a room
type StrokesPayload struct {
	Strokes []Stroke `json:"strokes"`
}

// FilePayload announces an uploaded file
type FilePayload struct {
	File FileMeta `json:"file"`
}
