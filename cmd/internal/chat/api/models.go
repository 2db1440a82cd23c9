package chatapi

import "time"

type roomCreateRequest struct {
	Name string `json:"name"`
}

type roomRefRequest struct {
	RoomID string `json:"room_id"`
}

type messageSendRequest struct {
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

type messageDeleteRequest struct {
	MessageID string `json:"message_id"`
}

type roomResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type roomCreateResponse struct {
	Room roomResponse `json:"room"`
}

type roomListResponse struct {
	Rooms []roomResponse `json:"rooms"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

type messageSendResponse struct {
	Message messageResponse `json:"message"`
}

type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
	HasMore  bool              `json:"has_more"`
}
