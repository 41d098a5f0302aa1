package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mossy-p/webrtc-collab/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJoinEmptyRoomThenSecondParticipant(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	s1, s2 := newFakeConn("s1"), newFakeConn("s2")

	join(t, c, s1, "r1", "P1")

	lists := s1.ofType(models.EventParticipants)
	if len(lists) != 1 {
		t.Fatalf("P1 expected one participant list, got %d", len(lists))
	}
	if got := decodeParticipants(t, lists[0]); len(got) != 0 {
		t.Fatalf("P1 should receive an empty list, got %+v", got)
	}

	join(t, c, s2, "r1", "P2")

	lists = s2.ofType(models.EventParticipants)
	if len(lists) != 1 {
		t.Fatalf("P2 expected one participant list, got %d", len(lists))
	}
	got := decodeParticipants(t, lists[0])
	if len(got) != 1 || got[0].Ref != "s1" || got[0].UserName != "P1" {
		t.Fatalf("P2 should see exactly P1, got %+v", got)
	}

	joined := s1.ofType(models.EventParticipantJoined)
	if len(joined) != 1 {
		t.Fatalf("P1 expected one participant-joined, got %d", len(joined))
	}
	if info := decodeInfo(t, joined[0]); info.Ref != "s2" || info.UserName != "P2" {
		t.Fatalf("unexpected joined notification: %+v", info)
	}
	if len(s2.ofType(models.EventParticipantJoined)) != 0 {
		t.Fatal("joiner must not be notified of its own join")
	}
}

func TestJoinerListNeverIncludesSelf(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	conns := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c"), newFakeConn("d")}

	for i, conn := range conns {
		join(t, c, conn, "room", conn.id)
		list := decodeParticipants(t, conn.ofType(models.EventParticipants)[0])
		if len(list) != i {
			t.Fatalf("%s expected %d participants, got %d", conn.id, i, len(list))
		}
		for _, info := range list {
			if info.Ref == conn.id {
				t.Fatalf("%s found itself in its participant list", conn.id)
			}
		}
	}
}

func TestJoinThenLeaveAloneRemovesRoom(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	conn := newFakeConn("s1")

	join(t, c, conn, "solo", "P")
	if !c.Lifecycle.Leave(conn, "solo") {
		t.Fatal("leave should succeed")
	}
	if rooms, _ := c.Registry.Count(); rooms != 0 {
		t.Fatalf("room should be gone, %d rooms remain", rooms)
	}
	if len(conn.ofType(models.EventParticipantLeft)) != 0 {
		t.Fatal("leaver must not receive its own participant-left")
	}
}

func TestDisconnectWithoutLeaveNotifiesExactlyOnce(t *testing.T) {
	c, metrics := newTestCoordinator(t, nil)
	a, b, d := newFakeConn("a"), newFakeConn("b"), newFakeConn("d")
	join(t, c, a, "room", "A")
	join(t, c, b, "room", "B")
	join(t, c, d, "room", "D")

	if !c.Lifecycle.Disconnect(a) {
		t.Fatal("first disconnect should clean up")
	}
	if c.Lifecycle.Disconnect(a) {
		t.Fatal("redundant disconnect must be a no-op")
	}

	for _, peer := range []*fakeConn{b, d} {
		left := peer.ofType(models.EventParticipantLeft)
		if len(left) != 1 {
			t.Fatalf("%s expected exactly one participant-left, got %d", peer.id, len(left))
		}
		if info := decodeInfo(t, left[0]); info.Ref != "a" || info.UserName != "A" {
			t.Fatalf("unexpected participant-left payload: %+v", info)
		}
	}
	if got := testutil.ToFloat64(metrics.leaves.WithLabelValues(reasonDisconnect)); got != 1 {
		t.Fatalf("expected 1 disconnect leave counted, got %v", got)
	}
}

func TestDisconnectAfterExplicitLeaveIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	join(t, c, a, "room", "A")
	join(t, c, b, "room", "B")

	c.Lifecycle.Leave(a, "room")
	c.Lifecycle.Disconnect(a)

	if n := len(b.ofType(models.EventParticipantLeft)); n != 1 {
		t.Fatalf("expected one participant-left, got %d", n)
	}
}

func TestCleanupRunsOnceForSameParticipant(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	p := join(t, c, a, "room", "A")
	join(t, c, b, "room", "B")

	if !c.Lifecycle.leave(p, reasonExplicit) {
		t.Fatal("first cleanup should run")
	}
	if c.Lifecycle.leave(p, reasonDisconnect) {
		t.Fatal("second cleanup of the same participant must not run")
	}
	if p.State() != StateLeft {
		t.Fatalf("expected state left, got %s", p.State())
	}
}

func TestDisconnectWithoutJoinIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	b := newFakeConn("b")
	join(t, c, b, "room", "B")
	b.reset()

	if c.Lifecycle.Disconnect(newFakeConn("stranger")) {
		t.Fatal("disconnect of a connection that never joined should report false")
	}
	if c.Lifecycle.Leave(newFakeConn("stranger"), "room") {
		t.Fatal("leave of a non-member should report false")
	}
	if len(b.messages()) != 0 {
		t.Fatal("no notifications expected")
	}
}

func TestJoinAnotherRoomLeavesPrevious(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	a, b, x := newFakeConn("a"), newFakeConn("b"), newFakeConn("x")
	join(t, c, a, "first", "A")
	join(t, c, b, "first", "B")
	join(t, c, x, "second", "X")

	p := join(t, c, a, "second", "A")
	if p.RoomID != "second" {
		t.Fatalf("expected participant in second, got %s", p.RoomID)
	}
	if n := len(b.ofType(models.EventParticipantLeft)); n != 1 {
		t.Fatalf("first room should see A leave once, got %d", n)
	}
	if c.Registry.Find("first", "a") != nil {
		t.Fatal("A still registered in first room")
	}
	if n := len(x.ofType(models.EventParticipantJoined)); n != 1 {
		t.Fatalf("second room should see A join once, got %d", n)
	}
}

func TestRejoinSameRoomResendsListOnly(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	join(t, c, a, "room", "A")
	join(t, c, b, "room", "B")
	a.reset()

	join(t, c, b, "room", "B")

	if n := len(a.messages()); n != 0 {
		t.Fatalf("existing member should not be notified again, got %d messages", n)
	}
	lists := b.ofType(models.EventParticipants)
	if len(lists) != 2 {
		t.Fatalf("expected the list to be resent, got %d lists", len(lists))
	}
	if got := decodeParticipants(t, lists[1]); len(got) != 1 || got[0].Ref != "a" {
		t.Fatalf("resent list should contain only A, got %+v", got)
	}
}

func TestJoinPrefersVerifiedIdentity(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	conn := newFakeConn("s1")
	conn.user = "verified-user"

	p := c.Lifecycle.Join(conn, "room", models.JoinPayload{UserID: "claimed", UserName: "Ada"})
	if p.UserID != "verified-user" {
		t.Fatalf("expected verified identity, got %s", p.UserID)
	}
}

func TestJoinRequiresRoomID(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	conn := newFakeConn("s1")

	if p := c.Lifecycle.Join(conn, "", models.JoinPayload{UserName: "Ada"}); p != nil {
		t.Fatal("join without room id should fail")
	}
	if n := len(conn.ofType(models.EventError)); n != 1 {
		t.Fatalf("expected an error event, got %d", n)
	}
}

func TestConcurrentJoinsAndDisconnects(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("conn-%d", i))
			c.Lifecycle.Join(conn, "busy", models.JoinPayload{UserName: conn.id})
			c.Lifecycle.Disconnect(conn)
			c.Lifecycle.Disconnect(conn)
		}(i)
	}
	wg.Wait()

	if rooms, participants := c.Registry.Count(); rooms != 0 || participants != 0 {
		t.Fatalf("expected empty registry, got %d rooms / %d participants", rooms, participants)
	}
}
