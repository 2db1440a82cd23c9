package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const memMaxMessagesPerRoom = 10_000

// MemoryStore is a dev-only fallback when DB is not configured. It enforces
// the same membership and ownership contract as PostgresStore so handler
// tests exercise real authorization paths.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*memRoom

	// usernames resolves sender ids for denormalized message rows.
	// Nil lookups fall back to an empty username.
	usernames func(userID int64) string
}

type memRoom struct {
	room    Room
	members map[int64]time.Time // user_id -> joined_at
	msgs    []Message           // ordered by id ASC
}

// MemoryOption configures MemoryStore behavior.
type MemoryOption func(*MemoryStore)

// WithUsernameResolver supplies a username lookup for message rows, typically
// backed by the identity MemoryStore.
func WithUsernameResolver(fn func(userID int64) string) MemoryOption {
	return func(s *MemoryStore) { s.usernames = fn }
}

// NewMemoryStore constructs an in-memory chat Store implementation.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{rooms: make(map[string]*memRoom)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) username(userID int64) string {
	if s.usernames == nil {
		return ""
	}
	return s.usernames(userID)
}

// CreateRoom creates a room and joins the creator.
func (s *MemoryStore) CreateRoom(ctx context.Context, in CreateRoomInput) (Room, error) {
	const op = "chat.CreateRoom"

	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxRoomNameLen {
		return Room{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "room name must be 1..128 chars"}
	}
	if in.CreatorID <= 0 {
		return Room{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid creator id"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewID(now)
	if err != nil {
		return Room{}, err
	}

	r := Room{ID: id, Name: name, CreatedBy: in.CreatorID, CreatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[id] = &memRoom{
		room:    r,
		members: map[int64]time.Time{in.CreatorID: now},
	}
	return r, nil
}

// ListRoomsForUser returns the rooms the user belongs to, newest room first.
func (s *MemoryStore) ListRoomsForUser(ctx context.Context, userID int64) ([]Room, error) {
	const op = "chat.ListRoomsForUser"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid user id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Room, 0, 16)
	for _, r := range s.rooms {
		if _, ok := r.members[userID]; ok {
			out = append(out, r.room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// JoinRoom adds a membership. Re-joining is a no-op.
func (s *MemoryStore) JoinRoom(ctx context.Context, roomID string, userID int64, now time.Time) error {
	const op = "chat.JoinRoom"

	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidID(roomID) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid room id"}
	}
	if userID <= 0 {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid user id"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "room does not exist"}
	}
	if _, ok := r.members[userID]; !ok {
		r.members[userID] = now
	}
	return nil
}

// LeaveRoom removes a membership. Returns ErrNotFound when not a member.
func (s *MemoryStore) LeaveRoom(ctx context.Context, roomID string, userID int64) error {
	const op = "chat.LeaveRoom"

	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidID(roomID) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid room id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "not a member"}
	}
	if _, ok := r.members[userID]; !ok {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "not a member"}
	}
	delete(r.members, userID)
	return nil
}

// IsMember checks if userID is a member of roomID.
func (s *MemoryStore) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, ok = r.members[userID]
	return ok, nil
}

// SendMessage appends a message after the membership check.
func (s *MemoryStore) SendMessage(ctx context.Context, in SendMessageInput) (Message, error) {
	const op = "chat.SendMessage"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if !IsValidID(in.RoomID) {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid room id"}
	}
	if in.SenderID <= 0 {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid sender id"}
	}
	if strings.TrimSpace(in.Body) == "" || utf8.RuneCountInString(in.Body) > MaxMessageBodyLen {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "body must be 1..4096 chars"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewID(now)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[in.RoomID]
	if !ok {
		return Message{}, OpError{Op: op, Kind: ErrForbidden, Msg: "not a room member"}
	}
	if _, ok := r.members[in.SenderID]; !ok {
		return Message{}, OpError{Op: op, Kind: ErrForbidden, Msg: "not a room member"}
	}

	m := Message{
		ID:             id,
		RoomID:         in.RoomID,
		SenderID:       in.SenderID,
		SenderUsername: s.username(in.SenderID),
		Body:           in.Body,
		CreatedAt:      now,
	}
	r.msgs = append(r.msgs, m)

	// Bound memory to avoid unbounded growth in dev.
	if len(r.msgs) > memMaxMessagesPerRoom {
		r.msgs = r.msgs[len(r.msgs)-memMaxMessagesPerRoom:]
	}

	return m, nil
}

// ListMessages returns messages newest-first with optional paging by BeforeID.
func (s *MemoryStore) ListMessages(ctx context.Context, in ListMessagesInput) (ListMessagesResult, error) {
	const op = "chat.ListMessages"

	if err := ctx.Err(); err != nil {
		return ListMessagesResult{}, err
	}
	if !IsValidID(in.RoomID) {
		return ListMessagesResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid room id"}
	}
	if in.BeforeID != nil && !IsValidID(*in.BeforeID) {
		return ListMessagesResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid before_id"}
	}

	limit := clampLimit(in.Limit)
	fetch := limit + 1

	s.mu.Lock()
	r, ok := s.rooms[in.RoomID]
	var snap []Message
	member := false
	if ok {
		_, member = r.members[in.RequesterID]
		snap = append([]Message(nil), r.msgs...)
	}
	s.mu.Unlock()

	if !member {
		return ListMessagesResult{}, OpError{Op: op, Kind: ErrForbidden, Msg: "not a room member"}
	}

	// Ensure ordering defensively, then walk newest-first.
	sort.Slice(snap, func(i, j int) bool { return snap[i].ID < snap[j].ID })

	end := len(snap)
	if in.BeforeID != nil {
		before := *in.BeforeID
		end = sort.Search(len(snap), func(i int) bool { return snap[i].ID >= before })
	}
	if end == 0 {
		return ListMessagesResult{Messages: nil, HasMore: false}, nil
	}

	start := end - fetch
	if start < 0 {
		start = 0
	}
	window := snap[start:end]

	out := make([]Message, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		out = append(out, window[i])
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return ListMessagesResult{Messages: out, HasMore: hasMore}, nil
}

// DeleteMessage removes a message if requesterID is its sender.
func (s *MemoryStore) DeleteMessage(ctx context.Context, messageID string, requesterID int64) error {
	const op = "chat.DeleteMessage"

	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidID(messageID) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid message id"}
	}
	if requesterID <= 0 {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid requester id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		for i, m := range r.msgs {
			if m.ID != messageID {
				continue
			}
			if m.SenderID != requesterID {
				return OpError{Op: op, Kind: ErrForbidden, Msg: "not the message sender"}
			}
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return nil
		}
	}
	return OpError{Op: op, Kind: ErrNotFound, Msg: "message does not exist"}
}
