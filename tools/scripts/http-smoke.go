// Package main provides a CI-friendly HTTP smoke test for the Parley API.
//
// It validates:
//   - health + readiness probes
//   - register -> token issuance
//   - login by username and by email
//   - /me with the issued token
//   - room create/join and membership-gated send
//   - message list with cursor pagination
//   - delete by owner, 403 for non-owner
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name    string
	baseURL string
	token   string
	http    *http.Client
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "API base URL")
		room    = flag.String("room", "smoke-room", "Room name to create")
		text    = flag.String("text", "hello parley", "Message body to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	suffix := time.Now().UnixNano() % 1_000_000_000

	a := &smokeClient{name: "A", baseURL: *baseURL, http: &http.Client{Timeout: *timeout}}
	b := &smokeClient{name: "B", baseURL: *baseURL, http: &http.Client{Timeout: *timeout}}

	mustProbe(root, a, "/healthz")
	mustProbe(root, a, "/readyz")

	userA := fmt.Sprintf("smoke_a_%d", suffix)
	userB := fmt.Sprintf("smoke_b_%d", suffix)
	const pass = "smoke-password-1"

	mustRegister(root, a, userA, userA+"@smoke.example", pass)
	mustRegister(root, b, userB, userB+"@smoke.example", pass)

	mustLoginUsername(root, a, userA, pass)
	mustLoginEmail(root, b, userB+"@smoke.example", pass)

	if got := mustMe(root, a); got != userA {
		fatalf("me: username=%q want=%q", got, userA)
	}

	roomID := mustCreateRoom(root, a, fmt.Sprintf("%s-%d", *room, suffix))
	if *verbose {
		fmt.Printf("room created: id=%s\n", roomID)
	}

	// B is not a member yet: send must be rejected.
	mustSendStatus(root, b, roomID, *text, http.StatusForbidden)

	mustJoin(root, b, roomID)

	var lastID string
	for i := 0; i < 3; i++ {
		lastID = mustSend(root, a, roomID, fmt.Sprintf("%s %d", *text, i))
	}
	_ = mustSend(root, b, roomID, *text+" from B")

	ids := mustList(root, b, roomID, 2, "")
	if len(ids) != 2 {
		fatalf("list: got %d messages, want 2", len(ids))
	}
	more := mustList(root, b, roomID, 50, ids[len(ids)-1])
	if len(more) == 0 {
		fatalf("list: cursor page empty")
	}

	// Ownership: B must not be able to delete A's message.
	mustDeleteStatus(root, b, lastID, http.StatusForbidden)
	mustDeleteStatus(root, a, lastID, http.StatusNoContent)
	mustDeleteStatus(root, a, lastID, http.StatusNotFound)

	fmt.Printf("OK: users=%s,%s room_id=%s\n", userA, userB, roomID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *smokeClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *smokeClient) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	status, data, err := c.do(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	if out != nil && len(data) > 0 && status < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return status, fmt.Errorf("decode %s %s: %w (body=%s)", method, path, err, firstN(data, 256))
		}
	}
	return status, nil
}

func mustProbe(ctx context.Context, c *smokeClient, path string) {
	status, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		fatalf("%s: %v", path, err)
	}
	if status != http.StatusOK {
		fatalf("%s: status=%d body=%s", path, status, firstN(data, 256))
	}
}

type authPayload struct {
	User struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Token string `json:"token"`
}

func mustRegister(ctx context.Context, c *smokeClient, username, email, pass string) {
	var out authPayload
	status, err := c.doJSON(ctx, http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": pass,
	}, &out)
	if err != nil {
		fatalf("register %s: %v", c.name, err)
	}
	if status != http.StatusOK || out.Token == "" {
		fatalf("register %s: status=%d token_empty=%v", c.name, status, out.Token == "")
	}
	c.token = out.Token
}

func mustLoginUsername(ctx context.Context, c *smokeClient, username, pass string) {
	var out authPayload
	status, err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": pass,
	}, &out)
	if err != nil || status != http.StatusOK || out.Token == "" {
		fatalf("login(username) %s: status=%d err=%v", c.name, status, err)
	}
	c.token = out.Token
}

func mustLoginEmail(ctx context.Context, c *smokeClient, email, pass string) {
	var out authPayload
	status, err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": pass,
	}, &out)
	if err != nil || status != http.StatusOK || out.Token == "" {
		fatalf("login(email) %s: status=%d err=%v", c.name, status, err)
	}
	c.token = out.Token
}

func mustMe(ctx context.Context, c *smokeClient) string {
	var out struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, "/me", nil, &out)
	if err != nil || status != http.StatusOK {
		fatalf("me %s: status=%d err=%v", c.name, status, err)
	}
	return out.User.Username
}

func mustCreateRoom(ctx context.Context, c *smokeClient, name string) string {
	var out struct {
		Room struct {
			ID string `json:"id"`
		} `json:"room"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, "/rooms/create", map[string]string{"name": name}, &out)
	if err != nil || status != http.StatusOK || out.Room.ID == "" {
		fatalf("create room: status=%d err=%v", status, err)
	}
	return out.Room.ID
}

func mustJoin(ctx context.Context, c *smokeClient, roomID string) {
	status, data, err := c.do(ctx, http.MethodPost, "/rooms/join", map[string]string{"room_id": roomID})
	if err != nil {
		fatalf("join %s: %v", c.name, err)
	}
	if status != http.StatusNoContent {
		fatalf("join %s: status=%d body=%s", c.name, status, firstN(data, 256))
	}
}

func mustSend(ctx context.Context, c *smokeClient, roomID, body string) string {
	var out struct {
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, "/messages/send", map[string]string{
		"room_id": roomID,
		"body":    body,
	}, &out)
	if err != nil || status != http.StatusOK || out.Message.ID == "" {
		fatalf("send %s: status=%d err=%v", c.name, status, err)
	}
	return out.Message.ID
}

func mustSendStatus(ctx context.Context, c *smokeClient, roomID, body string, want int) {
	status, data, err := c.do(ctx, http.MethodPost, "/messages/send", map[string]string{
		"room_id": roomID,
		"body":    body,
	})
	if err != nil {
		fatalf("send %s: %v", c.name, err)
	}
	if status != want {
		var ae apiError
		_ = json.Unmarshal(data, &ae)
		fatalf("send %s: status=%d want=%d code=%q", c.name, status, want, ae.Error.Code)
	}
}

func mustList(ctx context.Context, c *smokeClient, roomID string, limit int, beforeID string) []string {
	path := fmt.Sprintf("/messages?room_id=%s&limit=%d", url.QueryEscape(roomID), limit)
	if beforeID != "" {
		path += "&before_id=" + url.QueryEscape(beforeID)
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil || status != http.StatusOK {
		fatalf("list %s: status=%d err=%v", c.name, status, err)
	}

	ids := make([]string, 0, len(out.Messages))
	for _, m := range out.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func mustDeleteStatus(ctx context.Context, c *smokeClient, messageID string, want int) {
	status, data, err := c.do(ctx, http.MethodPost, "/messages/delete", map[string]string{
		"message_id": messageID,
	})
	if err != nil {
		fatalf("delete %s: %v", c.name, err)
	}
	if status != want {
		fatalf("delete %s: status=%d want=%d body=%s", c.name, status, want, firstN(data, 256))
	}
}

func firstN(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "SMOKE FAIL: "+format+"\n", args...)
	os.Exit(1)
}
