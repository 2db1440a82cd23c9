// Package chatapi wires HTTP room and message endpoints to the chat store.
// All endpoints require a bearer token.
package chatapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parley/cmd/internal/chat"
	"parley/cmd/security/token"
)

// Handler wires HTTP chat endpoints to the chat store.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	store  chat.Store
	tokens *token.Manager
}

// NewHandler constructs a chat Handler.
func NewHandler(log *slog.Logger, cfg Config, store chat.Store, tokens *token.Manager) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("chat: nil store")
	}
	if tokens == nil {
		return nil, errors.New("chat: nil token manager")
	}
	return &Handler{log: log, cfg: cfg, store: store, tokens: tokens}, nil
}

// Register wires chat routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/rooms/create", h.handleRoomCreate)
	mux.HandleFunc("/rooms", h.handleRoomList)
	mux.HandleFunc("/rooms/join", h.handleRoomJoin)
	mux.HandleFunc("/rooms/leave", h.handleRoomLeave)
	mux.HandleFunc("/messages/send", h.handleMessageSend)
	mux.HandleFunc("/messages", h.handleMessageList)
	mux.HandleFunc("/messages/delete", h.handleMessageDelete)
}

// ---- handlers ----

func (h *Handler) handleRoomCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req roomCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	room, err := h.store.CreateRoom(r.Context(), chat.CreateRoomInput{
		Name:      req.Name,
		CreatorID: userID,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, "chat.room.create", err)
		return
	}

	h.log.Info("chat.room.create.ok", "room_id", room.ID, "user_id", userID)
	writeJSON(w, http.StatusOK, roomCreateResponse{Room: toRoomResponse(room)})
}

func (h *Handler) handleRoomList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	rooms, err := h.store.ListRoomsForUser(r.Context(), userID)
	if err != nil {
		h.writeStoreError(w, "chat.room.list", err)
		return
	}

	out := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomResponse(room))
	}
	writeJSON(w, http.StatusOK, roomListResponse{Rooms: out})
}

func (h *Handler) handleRoomJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req roomRefRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := h.store.JoinRoom(r.Context(), strings.TrimSpace(req.RoomID), userID, time.Now().UTC()); err != nil {
		h.writeStoreError(w, "chat.room.join", err)
		return
	}

	h.log.Info("chat.room.join.ok", "room_id", req.RoomID, "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRoomLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req roomRefRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := h.store.LeaveRoom(r.Context(), strings.TrimSpace(req.RoomID), userID); err != nil {
		h.writeStoreError(w, "chat.room.leave", err)
		return
	}

	h.log.Info("chat.room.leave.ok", "room_id", req.RoomID, "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req messageSendRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	msg, err := h.store.SendMessage(r.Context(), chat.SendMessageInput{
		RoomID:   strings.TrimSpace(req.RoomID),
		SenderID: userID,
		Body:     req.Body,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, "chat.message.send", err)
		return
	}

	writeJSON(w, http.StatusOK, messageSendResponse{Message: toMessageResponse(msg)})
}

func (h *Handler) handleMessageList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	roomID := strings.TrimSpace(q.Get("room_id"))
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "room_id is required")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	var beforeID *string
	if raw := strings.TrimSpace(q.Get("before_id")); raw != "" {
		beforeID = &raw
	}

	res, err := h.store.ListMessages(r.Context(), chat.ListMessagesInput{
		RoomID:      roomID,
		RequesterID: userID,
		BeforeID:    beforeID,
		Limit:       limit,
	})
	if err != nil {
		h.writeStoreError(w, "chat.message.list", err)
		return
	}

	out := make([]messageResponse, 0, len(res.Messages))
	for _, m := range res.Messages {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, messageListResponse{Messages: out, HasMore: res.HasMore})
}

func (h *Handler) handleMessageDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req messageDeleteRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := h.store.DeleteMessage(r.Context(), strings.TrimSpace(req.MessageID), userID); err != nil {
		h.writeStoreError(w, "chat.message.delete", err)
		return
	}

	h.log.Info("chat.message.delete.ok", "message_id", req.MessageID, "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return 0, false
	}
	claims, err := h.tokens.Verify(raw)
	if err != nil {
		h.log.Info("chat.token.fail", "kind", err)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return 0, false
	}
	userID, ok := token.UserID(claims)
	if !ok || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return 0, false
	}
	return userID, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeStoreError maps chat store error kinds to HTTP statuses.
func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case chat.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	case chat.IsForbidden(err):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed")
	case chat.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func toRoomResponse(r chat.Room) roomResponse {
	return roomResponse{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}

func toMessageResponse(m chat.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		RoomID:         m.RoomID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}
