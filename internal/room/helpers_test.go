package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/mossy-p/webrtc-collab/internal/queue"
	"github.com/mossy-p/webrtc-collab/internal/store"
)

// fakeConn records everything sent to it
type fakeConn struct {
	id      string
	user    string
	mu      sync.Mutex
	got     []models.Envelope
	encoded [][]byte
	refuse  bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.user }

func (f *fakeConn) Send(env models.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.got = append(f.got, env)
	return true
}

func (f *fakeConn) SendEncoded(data []byte) bool {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.got = append(f.got, env)
	f.encoded = append(f.encoded, data)
	return true
}

// frames returns the encoded envelopes received through broadcasts
func (f *fakeConn) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.encoded))
	copy(out, f.encoded)
	return out
}

func (f *fakeConn) messages() []models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Envelope, len(f.got))
	copy(out, f.got)
	return out
}

func (f *fakeConn) ofType(t models.EventType) []models.Envelope {
	var out []models.Envelope
	for _, env := range f.messages() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = nil
	f.encoded = nil
}

// failingStore fails every call
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Strokes(ctx context.Context, roomID string) ([]models.Stroke, error) {
	return nil, errStoreDown
}
func (failingStore) Append(ctx context.Context, roomID string, stroke models.Stroke) error {
	return errStoreDown
}
func (failingStore) Clear(ctx context.Context, roomID string) error { return errStoreDown }
func (failingStore) Close() error                                   { return nil }

// recordingStore counts appends on top of a memory store
type recordingStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	appends []models.Stroke
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: store.NewMemoryStore()}
}

func (r *recordingStore) Append(ctx context.Context, roomID string, stroke models.Stroke) error {
	r.mu.Lock()
	r.appends = append(r.appends, stroke)
	r.mu.Unlock()
	return r.MemoryStore.Append(ctx, roomID, stroke)
}

func (r *recordingStore) appended() []models.Stroke {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Stroke, len(r.appends))
	copy(out, r.appends)
	return out
}

func newTestCoordinator(t *testing.T, st store.StrokeStore) (*Coordinator, *Metrics) {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	metrics := NewMetrics(nil)
	c := NewCoordinator(st, queue.NewManager(2, 32), metrics, time.Second)
	t.Cleanup(func() { c.Shutdown(time.Second) })
	return c, metrics
}

func join(t *testing.T, c *Coordinator, conn *fakeConn, roomID, name string) *Participant {
	t.Helper()
	p := c.Lifecycle.Join(conn, roomID, models.JoinPayload{UserID: "user-" + conn.id, UserName: name})
	if p == nil {
		t.Fatalf("%s failed to join %s", conn.id, roomID)
	}
	return p
}

func decodeParticipants(t *testing.T, env models.Envelope) []models.ParticipantInfo {
	t.Helper()
	var list models.ParticipantsPayload
	if err := env.Decode(&list); err != nil {
		t.Fatalf("decode participants: %v", err)
	}
	return list.Participants
}

func decodeInfo(t *testing.T, env models.Envelope) models.ParticipantInfo {
	t.Helper()
	var info models.ParticipantInfo
	if err := env.Decode(&info); err != nil {
		t.Fatalf("decode participant: %v", err)
	}
	return info
}

func drawPayload(t *testing.T, stroke models.Stroke) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(models.DrawPayload{Stroke: stroke})
	if err != nil {
		t.Fatalf("encode stroke: %v", err)
	}
	return data
}
