package chat

import (
	"context"
	"time"
)

// Room is a named chat room. CreatedBy is the numeric id of the creating user.
type Room struct {
	ID        string
	Name      string
	CreatedBy int64
	CreatedAt time.Time
}

// Message is the canonical persisted message representation. SenderUsername
// is denormalized at query time for API responses.
type Message struct {
	ID             string
	RoomID         string
	SenderID       int64
	SenderUsername string
	Body           string
	CreatedAt      time.Time
}

// CreateRoomInput describes a room creation request. The creator is
// automatically joined as a member.
type CreateRoomInput struct {
	Name      string
	CreatorID int64
	Now       time.Time
}

// SendMessageInput describes a message append request.
// The sender must be a member of the room.
type SendMessageInput struct {
	RoomID   string
	SenderID int64
	Body     string
	Now      time.Time
}

// ListMessagesInput describes a history query request.
//
// Paging is newest-first. BeforeID, when set, restricts the page to messages
// with ids strictly below the cursor (ULIDs order by creation time).
type ListMessagesInput struct {
	RoomID      string
	RequesterID int64
	BeforeID    *string
	Limit       int
}

// ListMessagesResult contains the retrieved history window.
type ListMessagesResult struct {
	Messages []Message
	HasMore  bool
}

const (
	// MaxRoomNameLen bounds room names; MaxMessageBodyLen bounds message bodies.
	MaxRoomNameLen    = 128
	MaxMessageBodyLen = 4096

	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Store is the chat persistence boundary.
//
// Authorization contract:
//   - SendMessage and ListMessages require room membership (ErrForbidden).
//   - DeleteMessage requires message ownership (ErrForbidden).
//   - JoinRoom is idempotent; LeaveRoom of a non-member reports ErrNotFound.
type Store interface {
	CreateRoom(ctx context.Context, in CreateRoomInput) (Room, error)
	ListRoomsForUser(ctx context.Context, userID int64) ([]Room, error)
	JoinRoom(ctx context.Context, roomID string, userID int64, now time.Time) error
	LeaveRoom(ctx context.Context, roomID string, userID int64) error
	IsMember(ctx context.Context, roomID string, userID int64) (bool, error)

	SendMessage(ctx context.Context, in SendMessageInput) (Message, error)
	ListMessages(ctx context.Context, in ListMessagesInput) (ListMessagesResult, error)
	DeleteMessage(ctx context.Context, messageID string, requesterID int64) error
}

// clampLimit applies the paging window defaults [1..maxPageLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
