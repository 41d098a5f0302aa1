package room

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/mossy-p/webrtc-collab/internal/queue"
	"github.com/mossy-p/webrtc-collab/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func envelope(t *testing.T, typ models.EventType, roomID string, payload any) models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(typ, roomID, payload)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestDispatchRoutesEvents(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()
	a, b := newFakeConn("a"), newFakeConn("b")

	c.Dispatch(ctx, a, envelope(t, models.EventJoinRoom, "room", models.JoinPayload{UserID: "u-a", UserName: "A"}))
	c.Dispatch(ctx, b, envelope(t, models.EventJoinRoom, "room", models.JoinPayload{UserID: "u-b", UserName: "B"}))
	if _, participants := c.Registry.Count(); participants != 2 {
		t.Fatalf("expected 2 participants, got %d", participants)
	}

	stroke := models.Stroke{X0: 1, Y0: 2, X1: 3, Y1: 4, Color: "#fff", Width: 1}
	c.Dispatch(ctx, a, envelope(t, models.EventDraw, "room", models.DrawPayload{Stroke: stroke}))
	if n := len(b.ofType(models.EventDraw)); n != 1 {
		t.Fatalf("expected draw routed to b, got %d", n)
	}

	c.Dispatch(ctx, a, envelope(t, models.EventFileUploaded, "room", models.FilePayload{File: models.FileMeta{Name: "a.png"}}))
	if n := len(b.ofType(models.EventFileUploaded)); n != 1 {
		t.Fatalf("expected file-uploaded routed to b, got %d", n)
	}

	c.Dispatch(ctx, b, models.Envelope{Type: models.EventLoadWhiteboard, RoomID: "room"})
	loads := b.ofType(models.EventLoadWhiteboard)
	if len(loads) != 1 || len(decodeStrokes(t, loads[0])) != 1 {
		t.Fatalf("expected load reply with one stroke, got %+v", loads)
	}

	c.Dispatch(ctx, b, models.Envelope{Type: models.EventClearWhiteboard, RoomID: "room"})
	if n := len(a.ofType(models.EventClearWhiteboard)); n != 1 {
		t.Fatalf("expected clear routed to a, got %d", n)
	}

	c.Dispatch(ctx, a, models.Envelope{Type: models.EventLeaveRoom, RoomID: "room"})
	if n := len(b.ofType(models.EventParticipantLeft)); n != 1 {
		t.Fatalf("expected participant-left for a, got %d", n)
	}
}

func TestDispatchUnknownTypeRepliesWithError(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	a := newFakeConn("a")

	c.Dispatch(context.Background(), a, models.Envelope{Type: "teleport", RoomID: "room"})

	errs := a.ofType(models.EventError)
	if len(errs) != 1 || errs[0].Error == "" {
		t.Fatalf("expected one error reply, got %+v", errs)
	}
}

func TestDispatchMalformedPayloads(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	join(t, c, a, "room", "A")
	join(t, c, b, "room", "B")
	b.reset()

	c.Dispatch(context.Background(), a, models.Envelope{Type: models.EventDraw, RoomID: "room", Payload: json.RawMessage(`"not a stroke"`)})
	draws := b.ofType(models.EventDraw)
	if len(draws) != 1 || string(draws[0].Payload) != `"not a stroke"` {
		t.Fatalf("draw with an unreadable stroke should still be forwarded, got %+v", draws)
	}
	strokes, err := c.Whiteboard.Strokes(context.Background(), "room")
	if err != nil || len(strokes) != 0 {
		t.Fatalf("unreadable stroke must not be persisted, got %+v (%v)", strokes, err)
	}

	c.Dispatch(context.Background(), newFakeConn("c"), models.Envelope{Type: models.EventJoinRoom, RoomID: "room", Payload: json.RawMessage(`[`)})
	if _, participants := c.Registry.Count(); participants != 2 {
		t.Fatalf("malformed join must not add a participant, got %d", participants)
	}
}

func TestRoomInfo(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	join(t, c, a, "room", "A")
	join(t, c, b, "room", "B")
	c.Whiteboard.Draw(a, "room", drawPayload(t, models.Stroke{Color: "#fff", Width: 1}))
	c.Whiteboard.Draw(b, "room", drawPayload(t, models.Stroke{Color: "#000", Width: 1}))

	info, err := c.RoomInfo(context.Background(), "room")
	if err != nil {
		t.Fatalf("room info: %v", err)
	}
	if info.ParticipantCount != 2 || len(info.Participants) != 2 || info.StrokeCount != 2 {
		t.Fatalf("unexpected room info: %+v", info)
	}
	if info.Participants[0].Ref != "a" || info.Participants[1].UserName != "B" {
		t.Fatalf("participants out of join order: %+v", info.Participants)
	}

	empty, err := c.RoomInfo(context.Background(), "nobody-here")
	if err != nil {
		t.Fatalf("unknown room should not error: %v", err)
	}
	if empty.ParticipantCount != 0 || empty.Participants == nil {
		t.Fatalf("unexpected info for unknown room: %+v", empty)
	}
}

func TestRoomInfoStoreFailure(t *testing.T) {
	c, _ := newTestCoordinator(t, failingStore{})

	_, err := c.RoomInfo(context.Background(), "room")
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestShutdownRefusesFurtherWork(t *testing.T) {
	c := NewCoordinator(store.NewMemoryStore(), queue.NewManager(1, 4), nil, time.Second)
	a := newFakeConn("a")
	join(t, c, a, "room", "A")

	if err := c.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if rooms, _ := c.Registry.Count(); rooms != 0 {
		t.Fatalf("expected registry emptied, %d rooms", rooms)
	}
	if p := c.Lifecycle.Join(newFakeConn("b"), "room", models.JoinPayload{UserName: "B"}); p != nil {
		t.Fatal("join after shutdown should fail")
	}
	if _, err := c.Whiteboard.Strokes(context.Background(), "room"); !errors.Is(err, queue.ErrClosed) {
		t.Fatalf("expected queue.ErrClosed, got %v", err)
	}
}

func TestRegisterGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newTestCoordinator(t, nil)
	RegisterGauges(reg, c.Registry, func() int { return 7 })

	join(t, c, newFakeConn("a"), "one", "A")
	join(t, c, newFakeConn("b"), "two", "B")
	join(t, c, newFakeConn("c"), "two", "C")

	n, err := testutil.GatherAndCount(reg)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 gauges, got %d (%v)", n, err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	if values["collab_rooms"] != 2 || values["collab_participants"] != 3 || values["collab_persist_queue_depth"] != 7 {
		t.Fatalf("unexpected gauge values: %v", values)
	}
}
