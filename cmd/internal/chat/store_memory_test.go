package chat

import (
	"context"
	"testing"
	"time"
)

func newTestRoom(t *testing.T, s *MemoryStore, creatorID int64) Room {
	t.Helper()
	r, err := s.CreateRoom(context.Background(), CreateRoomInput{
		Name:      "general",
		CreatorID: creatorID,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

func TestMemoryStore_CreateRoom_AutoJoinsCreator(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	r := newTestRoom(t, s, 1)
	if !IsValidID(r.ID) {
		t.Fatalf("expected ULID room id, got %q", r.ID)
	}

	member, err := s.IsMember(ctx, r.ID, 1)
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if !member {
		t.Fatalf("creator must be a member")
	}

	rooms, err := s.ListRoomsForUser(ctx, 1)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != r.ID {
		t.Fatalf("expected the created room, got %+v", rooms)
	}
}

func TestMemoryStore_CreateRoom_RejectsBadName(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateRoom(ctx, CreateRoomInput{Name: "   ", CreatorID: 1}); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for blank name, got: %v", err)
	}

	long := make([]byte, MaxRoomNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := s.CreateRoom(ctx, CreateRoomInput{Name: string(long), CreatorID: 1}); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for long name, got: %v", err)
	}
}

func TestMemoryStore_JoinLeave(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	r := newTestRoom(t, s, 1)

	if err := s.JoinRoom(ctx, r.ID, 2, time.Time{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	// Idempotent re-join.
	if err := s.JoinRoom(ctx, r.ID, 2, time.Time{}); err != nil {
		t.Fatalf("re-join: %v", err)
	}

	member, err := s.IsMember(ctx, r.ID, 2)
	if err != nil || !member {
		t.Fatalf("expected membership after join, member=%v err=%v", member, err)
	}

	if err := s.LeaveRoom(ctx, r.ID, 2); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := s.LeaveRoom(ctx, r.ID, 2); !IsNotFound(err) {
		t.Fatalf("expected not found on second leave, got: %v", err)
	}

	// Unknown room.
	fake, err := NewID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	if err := s.JoinRoom(ctx, fake, 2, time.Time{}); !IsNotFound(err) {
		t.Fatalf("expected not found joining unknown room, got: %v", err)
	}
}

func TestMemoryStore_SendMessage_RequiresMembership(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	r := newTestRoom(t, s, 1)

	if _, err := s.SendMessage(ctx, SendMessageInput{RoomID: r.ID, SenderID: 2, Body: "hi"}); !IsForbidden(err) {
		t.Fatalf("expected forbidden for non-member, got: %v", err)
	}

	m, err := s.SendMessage(ctx, SendMessageInput{RoomID: r.ID, SenderID: 1, Body: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.RoomID != r.ID || m.SenderID != 1 || m.Body != "hi" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestMemoryStore_ListMessages_NewestFirstWithCursor(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	r := newTestRoom(t, s, 1)

	// Distinct timestamps keep the ULIDs strictly ordered.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		m, err := s.SendMessage(ctx, SendMessageInput{
			RoomID:   r.ID,
			SenderID: 1,
			Body:     "msg",
			Now:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		ids = append(ids, m.ID)
	}

	// First page: newest two, more remaining.
	res, err := s.ListMessages(ctx, ListMessagesInput{RoomID: r.ID, RequesterID: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Messages) != 2 || !res.HasMore {
		t.Fatalf("expected 2 messages and has_more, got n=%d more=%v", len(res.Messages), res.HasMore)
	}
	if res.Messages[0].ID != ids[4] || res.Messages[1].ID != ids[3] {
		t.Fatalf("expected newest-first [%s %s], got [%s %s]", ids[4], ids[3], res.Messages[0].ID, res.Messages[1].ID)
	}

	// Second page via cursor.
	cursor := res.Messages[1].ID
	res, err = s.ListMessages(ctx, ListMessagesInput{RoomID: r.ID, RequesterID: 1, Limit: 2, BeforeID: &cursor})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(res.Messages) != 2 || !res.HasMore {
		t.Fatalf("expected 2 messages and has_more on page 2, got n=%d more=%v", len(res.Messages), res.HasMore)
	}
	if res.Messages[0].ID != ids[2] || res.Messages[1].ID != ids[1] {
		t.Fatalf("unexpected page 2 ids: [%s %s]", res.Messages[0].ID, res.Messages[1].ID)
	}

	// Final page.
	cursor = res.Messages[1].ID
	res, err = s.ListMessages(ctx, ListMessagesInput{RoomID: r.ID, RequesterID: 1, Limit: 2, BeforeID: &cursor})
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(res.Messages) != 1 || res.HasMore {
		t.Fatalf("expected final page of 1, got n=%d more=%v", len(res.Messages), res.HasMore)
	}
	if res.Messages[0].ID != ids[0] {
		t.Fatalf("expected oldest message last, got %s", res.Messages[0].ID)
	}
}

func TestMemoryStore_ListMessages_NonMemberForbidden(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	r := newTestRoom(t, s, 1)

	if _, err := s.ListMessages(ctx, ListMessagesInput{RoomID: r.ID, RequesterID: 2}); !IsForbidden(err) {
		t.Fatalf("expected forbidden, got: %v", err)
	}
}

func TestMemoryStore_DeleteMessage_OwnershipOnly(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	r := newTestRoom(t, s, 1)
	if err := s.JoinRoom(ctx, r.ID, 2, time.Time{}); err != nil {
		t.Fatalf("join: %v", err)
	}

	m, err := s.SendMessage(ctx, SendMessageInput{RoomID: r.ID, SenderID: 1, Body: "mine"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := s.DeleteMessage(ctx, m.ID, 2); !IsForbidden(err) {
		t.Fatalf("expected forbidden for non-sender, got: %v", err)
	}
	if err := s.DeleteMessage(ctx, m.ID, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteMessage(ctx, m.ID, 1); !IsNotFound(err) {
		t.Fatalf("expected not found after delete, got: %v", err)
	}

	res, err := s.ListMessages(ctx, ListMessagesInput{RoomID: r.ID, RequesterID: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Messages) != 0 {
		t.Fatalf("expected empty room, got %d messages", len(res.Messages))
	}
}

func TestMemoryStore_UsernameResolver(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(WithUsernameResolver(func(id int64) string {
		if id == 1 {
			return "alice"
		}
		return ""
	}))
	ctx := context.Background()
	r := newTestRoom(t, s, 1)

	m, err := s.SendMessage(ctx, SendMessageInput{RoomID: r.ID, SenderID: 1, Body: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.SenderUsername != "alice" {
		t.Fatalf("expected resolved username, got %q", m.SenderUsername)
	}
}
