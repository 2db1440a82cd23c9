package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a chat Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//
// Authorization checks run inside the same transaction as the write they
// guard, so a concurrent leave cannot slip a message past the membership gate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by this store (default: "parley").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed chat Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "parley",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// CreateRoom inserts a room and joins the creator in one transaction.
func (s *PostgresStore) CreateRoom(ctx context.Context, in CreateRoomInput) (Room, error) {
	const op = "chat.CreateRoom"

	if s == nil || s.pool == nil {
		return Room{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Room{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rooms := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+rooms+` (id, name, created_by, created_at)
		 VALUES ($1, $2, $3, $4)`,
		id, name, in.CreatorID, now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Room{}, OpError{Op: op, Kind: ErrNotFound, Msg: "creator does not exist"}
		}
		return Room{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+members+` (room_id, user_id, joined_at)
		 VALUES ($1, $2, $3)`,
		id, in.CreatorID, now,
	)
	if err != nil {
		return Room{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Room{}, err
	}

	return Room{ID: id, Name: name, CreatedBy: in.CreatorID, CreatedAt: now}, nil
}

// ListRoomsForUser returns the rooms the user belongs to, newest room first.
func (s *PostgresStore) ListRoomsForUser(ctx context.Context, userID int64) ([]Room, error) {
	const op = "chat.ListRoomsForUser"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid user id"}
	}

	rooms := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.name, r.created_by, r.created_at
		   FROM `+rooms+` r
		   JOIN `+members+` m ON m.room_id = r.id
		  WHERE m.user_id = $1
		  ORDER BY r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Room, 0, 16)
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// JoinRoom adds a membership row. Re-joining is a no-op.
func (s *PostgresStore) JoinRoom(ctx context.Context, roomID string, userID int64, now time.Time) error {
	const op = "chat.JoinRoom"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
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

	members := pgIdent(s.schema, "room_members")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+members+` (room_id, user_id, joined_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID, now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return OpError{Op: op, Kind: ErrNotFound, Msg: "room does not exist"}
		}
		return err
	}
	return nil
}

// LeaveRoom removes a membership row. Returns ErrNotFound when the user was
// not a member.
func (s *PostgresStore) LeaveRoom(ctx context.Context, roomID string, userID int64) error {
	const op = "chat.LeaveRoom"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidID(roomID) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid room id"}
	}

	members := pgIdent(s.schema, "room_members")

	ct, err := s.pool.Exec(ctx,
		`DELETE FROM `+members+` WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "not a member"}
	}
	return nil
}

// IsMember checks if userID is a member of roomID.
func (s *PostgresStore) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("chat: nil store")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if roomID == "" || userID <= 0 {
		return false, nil
	}

	members := pgIdent(s.schema, "room_members")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SendMessage appends a message after verifying room membership in the same
// transaction.
func (s *PostgresStore) SendMessage(ctx context.Context, in SendMessageInput) (Message, error) {
	const op = "chat.SendMessage"

	if s == nil || s.pool == nil {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if !IsValidID(in.RoomID) {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid room id"}
	}
	if in.SenderID <= 0 {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid sender id"}
	}
	body := in.Body
	if strings.TrimSpace(body) == "" || utf8.RuneCountInString(body) > MaxMessageBodyLen {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	members := pgIdent(s.schema, "room_members")
	messages := pgIdent(s.schema, "messages")
	users := pgIdent(s.schema, "users")

	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE room_id = $1 AND user_id = $2`,
		in.RoomID, in.SenderID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, OpError{Op: op, Kind: ErrForbidden, Msg: "not a room member"}
	}
	if err != nil {
		return Message{}, err
	}

	var senderUsername string
	err = tx.QueryRow(ctx,
		`WITH inserted AS (
		     INSERT INTO `+messages+` (id, room_id, sender_id, body, created_at)
		     VALUES ($1, $2, $3, $4, $5)
		     RETURNING sender_id
		 )
		 SELECT u.username FROM inserted i JOIN `+users+` u ON u.id = i.sender_id`,
		id, in.RoomID, in.SenderID, body, now,
	).Scan(&senderUsername)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	return Message{
		ID:             id,
		RoomID:         in.RoomID,
		SenderID:       in.SenderID,
		SenderUsername: senderUsername,
		Body:           body,
		CreatedAt:      now,
	}, nil
}

// ListMessages returns messages newest-first with optional paging by BeforeID.
func (s *PostgresStore) ListMessages(ctx context.Context, in ListMessagesInput) (ListMessagesResult, error) {
	const op = "chat.ListMessages"

	if s == nil || s.pool == nil {
		return ListMessagesResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return ListMessagesResult{}, err
	}
	if !IsValidID(in.RoomID) {
		return ListMessagesResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid room id"}
	}
	if in.BeforeID != nil && !IsValidID(*in.BeforeID) {
		return ListMessagesResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid before_id"}
	}

	member, err := s.IsMember(ctx, in.RoomID, in.RequesterID)
	if err != nil {
		return ListMessagesResult{}, err
	}
	if !member {
		return ListMessagesResult{}, OpError{Op: op, Kind: ErrForbidden, Msg: "not a room member"}
	}

	limit := clampLimit(in.Limit)
	fetch := limit + 1

	messages := pgIdent(s.schema, "messages")
	users := pgIdent(s.schema, "users")

	var rows pgx.Rows
	if in.BeforeID == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT m.id, m.room_id, m.sender_id, u.username, m.body, m.created_at
			   FROM `+messages+` m
			   JOIN `+users+` u ON u.id = m.sender_id
			  WHERE m.room_id = $1
			  ORDER BY m.id DESC
			  LIMIT $2`,
			in.RoomID, fetch,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT m.id, m.room_id, m.sender_id, u.username, m.body, m.created_at
			   FROM `+messages+` m
			   JOIN `+users+` u ON u.id = m.sender_id
			  WHERE m.room_id = $1 AND m.id < $2
			  ORDER BY m.id DESC
			  LIMIT $3`,
			in.RoomID, *in.BeforeID, fetch,
		)
	}
	if err != nil {
		return ListMessagesResult{}, err
	}
	defer rows.Close()

	msgs := make([]Message, 0, fetch)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderUsername, &m.Body, &m.CreatedAt); err != nil {
			return ListMessagesResult{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return ListMessagesResult{}, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	return ListMessagesResult{Messages: msgs, HasMore: hasMore}, nil
}

// DeleteMessage removes a message if requesterID is its sender.
func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID string, requesterID int64) error {
	const op = "chat.DeleteMessage"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidID(messageID) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid message id"}
	}
	if requesterID <= 0 {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid requester id"}
	}

	messages := pgIdent(s.schema, "messages")

	var senderID int64
	err := s.pool.QueryRow(ctx,
		`SELECT sender_id FROM `+messages+` WHERE id = $1`,
		messageID,
	).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "message does not exist"}
	}
	if err != nil {
		return err
	}
	if senderID != requesterID {
		return OpError{Op: op, Kind: ErrForbidden, Msg: "not the message sender"}
	}

	ct, err := s.pool.Exec(ctx,
		`DELETE FROM `+messages+` WHERE id = $1 AND sender_id = $2`,
		messageID, requesterID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// Raced with another delete.
		return OpError{Op: op, Kind: ErrNotFound, Msg: "message does not exist"}
	}
	return nil
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}
