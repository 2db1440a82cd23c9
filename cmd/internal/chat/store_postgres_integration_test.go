package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require PARLEY_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_RoomAndMessageRoundTrip(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	s := mustNewChatStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	alice := mustInsertUser(t, pool, schema, "alice")
	bob := mustInsertUser(t, pool, schema, "bob")

	room, err := s.CreateRoom(ctx, CreateRoomInput{Name: "general", CreatorID: alice})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	// Creator is auto-joined; bob is not a member yet.
	if _, err := s.SendMessage(ctx, SendMessageInput{RoomID: room.ID, SenderID: bob, Body: "hi"}); !IsForbidden(err) {
		t.Fatalf("expected forbidden for non-member, got: %v", err)
	}

	if err := s.JoinRoom(ctx, room.ID, bob, time.Now().UTC()); err != nil {
		t.Fatalf("join: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	var lastID string
	for i := 0; i < 3; i++ {
		m, err := s.SendMessage(ctx, SendMessageInput{
			RoomID:   room.ID,
			SenderID: bob,
			Body:     fmt.Sprintf("msg %d", i),
			Now:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		lastID = m.ID
		if m.SenderUsername != "bob" {
			t.Fatalf("expected sender username bob, got %q", m.SenderUsername)
		}
	}

	res, err := s.ListMessages(ctx, ListMessagesInput{RoomID: room.ID, RequesterID: alice, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Messages) != 2 || !res.HasMore {
		t.Fatalf("expected 2 messages and has_more, got n=%d more=%v", len(res.Messages), res.HasMore)
	}
	if res.Messages[0].ID != lastID {
		t.Fatalf("expected newest first, got head=%s want=%s", res.Messages[0].ID, lastID)
	}

	cursor := res.Messages[1].ID
	res, err = s.ListMessages(ctx, ListMessagesInput{RoomID: room.ID, RequesterID: alice, Limit: 2, BeforeID: &cursor})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(res.Messages) != 1 || res.HasMore {
		t.Fatalf("expected final page of 1, got n=%d more=%v", len(res.Messages), res.HasMore)
	}

	// Ownership gate on delete.
	if err := s.DeleteMessage(ctx, lastID, alice); !IsForbidden(err) {
		t.Fatalf("expected forbidden deleting another user's message, got: %v", err)
	}
	if err := s.DeleteMessage(ctx, lastID, bob); err != nil {
		t.Fatalf("delete own message: %v", err)
	}
	if err := s.DeleteMessage(ctx, lastID, bob); !IsNotFound(err) {
		t.Fatalf("expected not found after delete, got: %v", err)
	}
}

func TestPostgresStore_LeaveRevokesSend(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyChatSchema(t, pool, schema)

	s := mustNewChatStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	alice := mustInsertUser(t, pool, schema, "alice")

	room, err := s.CreateRoom(ctx, CreateRoomInput{Name: "ephemeral", CreatorID: alice})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := s.LeaveRoom(ctx, room.ID, alice); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := s.SendMessage(ctx, SendMessageInput{RoomID: room.ID, SenderID: alice, Body: "hello?"}); !IsForbidden(err) {
		t.Fatalf("expected forbidden after leave, got: %v", err)
	}
	rooms, err := s.ListRoomsForUser(ctx, alice)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expected no rooms after leave, got %d", len(rooms))
	}
}

// ---- helpers ----

func mustNewChatStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PARLEY_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PARLEY_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse PARLEY_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (PARLEY_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := fmt.Sprintf("parley_it_%d_%04d", time.Now().UnixNano(), rand.Intn(10_000))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplyChatSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	rooms := pgIdent(schema, "rooms")
	members := pgIdent(schema, "room_members")
	messages := pgIdent(schema, "messages")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  password_digest TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_users_username_norm UNIQUE (username_norm),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_by BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_rooms_id_ulid_len CHECK (char_length(id) = 26)
);

CREATE TABLE IF NOT EXISTS %s (
  room_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  user_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  room_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  sender_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  body TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_messages_id_ulid_len CHECK (char_length(id) = 26)
);

CREATE INDEX IF NOT EXISTS idx_messages_room_id_id ON %s (room_id, id DESC);
`, users, rooms, users, members, rooms, users, messages, rooms, users, messages)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func mustInsertUser(t *testing.T, pool *pgxpool.Pool, schema, username string) int64 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")

	var id int64
	err := pool.QueryRow(ctx,
		`INSERT INTO `+users+` (username, username_norm, email, email_norm, password_digest)
		 VALUES ($1, $1, $2, $2, 'aa:bb')
		 RETURNING id`,
		username, username+"@example.com",
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user %q: %v", username, err)
	}
	return id
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}
