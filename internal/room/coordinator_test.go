package room

import (
	"testing"

	"github.com/beaconrtc/beacon/internal/identity"
	"github.com/beaconrtc/beacon/internal/metrics"
)

type sentEvent struct {
	ConnID string
	Event  string
	Data   any
}

type fakeEmitter struct {
	live map[string]bool
	sent []sentEvent
}

func newFakeEmitter(conns ...string) *fakeEmitter {
	live := make(map[string]bool)
	for _, c := range conns {
		live[c] = true
	}
	return &fakeEmitter{live: live}
}

func (f *fakeEmitter) Emit(connID, event string, data any) bool {
	if !f.live[connID] {
		return false
	}
	f.sent = append(f.sent, sentEvent{ConnID: connID, Event: event, Data: data})
	return true
}

func (f *fakeEmitter) eventsFor(connID, event string) []sentEvent {
	var out []sentEvent
	for _, e := range f.sent {
		if e.ConnID == connID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestCoordinator(conns ...string) (*Coordinator, *identity.Registry, *fakeEmitter) {
	reg := identity.NewRegistry()
	em := newFakeEmitter(conns...)
	c := NewCoordinator(reg, em, metrics.New(), nil)
	return c, reg, em
}

func createdRoomID(t *testing.T, em *fakeEmitter, connID string) string {
	t.Helper()
	created := em.eventsFor(connID, EventCreated)
	if len(created) != 1 {
		t.Fatalf("creator received %d room-created events, want 1", len(created))
	}
	return created[0].Data.(CreatedOut).RoomID
}

func TestCreateSeedsCreator(t *testing.T) {
	c, reg, em := newTestCoordinator("a")
	reg.Register("a", "alice", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")

	if len(id) != codeLength {
		t.Fatalf("room code %q has length %d, want %d", id, len(id), codeLength)
	}
	rooms := c.Active()
	if len(rooms) != 1 || rooms[0].Participants != 1 || rooms[0].Creator != "alice" {
		t.Fatalf("active rooms = %+v", rooms)
	}
}

func TestJoinNotifiesAndListsParticipants(t *testing.T) {
	c, reg, em := newTestCoordinator("a", "b")
	reg.Register("a", "alice", "pic-a")
	reg.Register("b", "bob", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")

	c.Join("b", id)

	joins := em.eventsFor("a", EventUserJoined)
	if len(joins) != 1 || joins[0].Data.(MemberOut).UserName != "bob" {
		t.Fatalf("existing member notifications = %+v", joins)
	}

	joined := em.eventsFor("b", EventJoined)
	if len(joined) != 1 {
		t.Fatalf("joiner received %d room-joined events, want 1", len(joined))
	}
	out := joined[0].Data.(JoinedOut)
	if out.RoomID != id || out.RoomName != "standup" || len(out.Participants) != 2 {
		t.Fatalf("room-joined payload = %+v", out)
	}
	if out.Participants[0].Name != "alice" || out.Participants[0].Avatar != "pic-a" {
		t.Fatalf("participants = %+v", out.Participants)
	}
}

func TestJoinUnknownRoomReportsError(t *testing.T) {
	c, reg, em := newTestCoordinator("a")
	reg.Register("a", "alice", "")

	c.Join("a", "NOSUCH")
	if len(em.eventsFor("a", EventError)) != 1 {
		t.Fatal("join of unknown room must surface room-error to requester only")
	}
}

func TestRejoinDoesNotDuplicateMembership(t *testing.T) {
	c, reg, em := newTestCoordinator("a", "b")
	reg.Register("a", "alice", "")
	reg.Register("b", "bob", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")
	c.Join("b", id)
	c.Join("b", id)

	if got := len(em.eventsFor("a", EventUserJoined)); got != 1 {
		t.Fatalf("rejoin re-notified members %d times, want 1", got)
	}
	if c.Active()[0].Participants != 2 {
		t.Fatal("rejoin must not duplicate membership")
	}
}

func TestLeaveBySoleMemberDeletesRoom(t *testing.T) {
	c, reg, em := newTestCoordinator("a")
	reg.Register("a", "alice", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")

	c.Leave("a", id)
	if len(c.Active()) != 0 {
		t.Fatal("empty room must be deleted immediately")
	}

	c.Join("a", id)
	if len(em.eventsFor("a", EventError)) != 1 {
		t.Fatal("joining a deleted room must fail with not-found")
	}
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	c, reg, em := newTestCoordinator("a", "b")
	reg.Register("a", "alice", "")
	reg.Register("b", "bob", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")
	c.Join("b", id)

	c.Leave("b", id)
	left := em.eventsFor("a", EventUserLeft)
	if len(left) != 1 || left[0].Data.(MemberOut).UserName != "bob" {
		t.Fatalf("user-left notifications = %+v", left)
	}
	if c.Active()[0].Participants != 1 {
		t.Fatal("membership must shrink")
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	c, reg, em := newTestCoordinator("a", "b", "c")
	reg.Register("a", "alice", "")
	reg.Register("b", "bob", "")
	reg.Register("c", "carol", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")
	c.Join("b", id)
	c.Join("c", id)

	c.Broadcast("b", id, "hello")

	if len(em.eventsFor("b", EventMessage)) != 0 {
		t.Fatal("sender must not receive a server echo")
	}
	for _, conn := range []string{"a", "c"} {
		msgs := em.eventsFor(conn, EventMessage)
		if len(msgs) != 1 {
			t.Fatalf("%s received %d messages, want 1", conn, len(msgs))
		}
		out := msgs[0].Data.(MessageOut)
		if out.From != "bob" || out.Text != "hello" {
			t.Fatalf("message payload = %+v", out)
		}
	}
}

func TestBroadcastFromNonMemberIsDropped(t *testing.T) {
	c, reg, em := newTestCoordinator("a", "b")
	reg.Register("a", "alice", "")
	reg.Register("b", "bob", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")

	c.Broadcast("b", id, "hi")
	if len(em.eventsFor("a", EventMessage)) != 0 {
		t.Fatal("non-members must not reach the room")
	}
}

func TestInviteRelaysInviterName(t *testing.T) {
	c, reg, em := newTestCoordinator("a", "b")
	reg.Register("a", "alice", "")
	reg.Register("b", "bob", "")

	c.Create("a", "standup")
	id := createdRoomID(t, em, "a")

	c.Invite("a", id, "standup", "b")
	invites := em.eventsFor("b", EventInvite)
	if len(invites) != 1 {
		t.Fatalf("target received %d invites, want 1", len(invites))
	}
	out := invites[0].Data.(InviteOut)
	if out.RoomID != id || out.InviterName != "alice" {
		t.Fatalf("invite payload = %+v", out)
	}
}

func TestDisconnectSweepsAllRooms(t *testing.T) {
	c, reg, em := newTestCoordinator("a", "b")
	reg.Register("a", "alice", "")
	reg.Register("b", "bob", "")

	c.Create("a", "one")
	c.Create("a", "two")
	created := em.eventsFor("a", EventCreated)
	if len(created) != 2 {
		t.Fatalf("creator received %d room-created events, want 2", len(created))
	}
	first := created[0].Data.(CreatedOut).RoomID
	second := created[1].Data.(CreatedOut).RoomID

	c.Join("b", first) // bob joins only the first room

	c.HandleDisconnect("a")

	left := em.eventsFor("b", EventUserLeft)
	if len(left) != 1 || left[0].Data.(MemberOut).UserName != "alice" {
		t.Fatalf("user-left notifications = %+v", left)
	}

	rooms := c.Active()
	if len(rooms) != 1 || rooms[0].ID != first {
		t.Fatalf("active rooms after disconnect = %+v (second room %s should be gone)", rooms, second)
	}
}
