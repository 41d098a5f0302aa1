package room

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/mossy-p/webrtc-collab/internal/models"
)

// Registry maps room ids to the participants currently connected to them.
// A room entry exists only while it has at least one participant. Every
// method runs to completion under the registry lock and never blocks on
// the network, so callers observe each operation atomically.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string][]*Participant // in join order
	closed bool
}

// NewRegistry returns an empty registry ready for joins
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string][]*Participant)}
}

func indexOf(members []*Participant, ref string) int {
	for i, m := range members {
		if m.Ref() == ref {
			return i
		}
	}
	return -1
}

// Join adds p to roomID, creating the room if needed. It returns the members
// that were already present, and false without changes if p's connection is
// already in the room or the registry is closed.
func (r *Registry) Join(roomID string, p *Participant) ([]*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}

	members, exists := r.rooms[roomID]
	if indexOf(members, p.Ref()) >= 0 {
		return nil, false
	}
	if !exists {
		log.Printf("Created new room: %s", roomID)
	}

	others := make([]*Participant, len(members))
	copy(others, members)
	r.rooms[roomID] = append(members, p)
	return others, true
}

// Leave removes p's connection from roomID and deletes the room once empty.
// It returns how many participants remain and whether p was a member.
func (r *Registry) Leave(roomID string, p *Participant) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	i := indexOf(members, p.Ref())
	if i < 0 {
		return len(members), false
	}

	remaining := make([]*Participant, 0, len(members)-1)
	remaining = append(remaining, members[:i]...)
	remaining = append(remaining, members[i+1:]...)

	if len(remaining) == 0 {
		delete(r.rooms, roomID)
		log.Printf("Removed empty room: %s", roomID)
		return 0, true
	}
	r.rooms[roomID] = remaining
	return len(remaining), true
}

// List returns a snapshot of roomID's participants, empty for an unknown room
func (r *Registry) List(roomID string) []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]*Participant, len(members))
	copy(out, members)
	return out
}

// Find returns the participant in roomID with connection ref, or nil
func (r *Registry) Find(roomID, ref string) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	if i := indexOf(members, ref); i >= 0 {
		return members[i]
	}
	return nil
}

// RoomOf scans the rooms for the participant using connection ref. A
// connection is in at most one room, so the first match is the only one.
func (r *Registry) RoomOf(ref string) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.rooms {
		if i := indexOf(members, ref); i >= 0 {
			return members[i]
		}
	}
	return nil
}

// Broadcast sends env to every member of roomID except the connection
// exclude (pass "" to include everyone) and returns how many accepted it.
func (r *Registry) Broadcast(roomID string, env models.Envelope, exclude string) int {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal %s for room %s: %v", env.Type, roomID, err)
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, member := range r.rooms[roomID] {
		if member.Ref() == exclude {
			continue
		}
		if member.Conn.SendEncoded(data) {
			delivered++
		} else {
			log.Printf("Failed to send %s to peer %s in room %s", env.Type, member.Ref(), roomID)
		}
	}
	return delivered
}

// Count returns the number of live rooms and participants
func (r *Registry) Count() (rooms int, participants int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.rooms {
		participants += len(members)
	}
	return len(r.rooms), participants
}

// Close drops every room and refuses further joins
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.rooms = make(map[string][]*Participant)
}
