package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()

	// Keep derivation cheap in tests.
	t.Setenv("PARLEY_PBKDF2_ITERATIONS", "10000")

	if cfg.TokenSecret == "" {
		cfg.TokenSecret = strings.Repeat("s", 32)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAppHealthEndpoints(t *testing.T) {
	a := newTestApp(t, Config{})
	h := a.Handler()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d want=200", path, rr.Code)
		}
	}
}

func TestAppReadyzRequiresDB(t *testing.T) {
	a := newTestApp(t, Config{ReadinessRequireDB: true})
	h := a.Handler()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without db: status=%d want=503", rr.Code)
	}
}

// End-to-end through the full middleware chain: register, create a room,
// send a message, read it back.
func TestAppWiring_RegisterAndChat(t *testing.T) {
	a := newTestApp(t, Config{})
	h := a.Handler()

	do := func(method, path, token string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var r io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			r = bytes.NewReader(buf)
		}
		req := httptest.NewRequest(method, path, r)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "wiring_user",
		"email":    "wiring@example.com",
		"password": "correct horse battery",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("register: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var reg struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	if reg.Token == "" {
		t.Fatalf("register: empty token")
	}

	rr = do(http.MethodPost, "/rooms/create", reg.Token, map[string]string{"name": "wiring"})
	if rr.Code != http.StatusOK {
		t.Fatalf("create room: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created struct {
		Room struct {
			ID string `json:"id"`
		} `json:"room"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode room: %v", err)
	}

	rr = do(http.MethodPost, "/messages/send", reg.Token, map[string]string{
		"room_id": created.Room.ID,
		"body":    "hello",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("send: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(http.MethodGet, "/messages?room_id="+created.Room.ID, reg.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var list struct {
		Messages []struct {
			Body           string `json:"body"`
			SenderUsername string `json:"sender_username"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Messages) != 1 || list.Messages[0].Body != "hello" {
		t.Fatalf("unexpected messages: %+v", list.Messages)
	}
	if list.Messages[0].SenderUsername != "wiring_user" {
		t.Fatalf("sender username not resolved: %+v", list.Messages[0])
	}
}

func TestAppMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, Config{})
	h := a.Handler()

	// Generate at least one observation first.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "parley_http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", body[:min(len(body), 512)])
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "no db no secret", cfg: Config{}, wantErr: false},
		{name: "db without secret", cfg: Config{DatabaseURL: "postgres://x"}, wantErr: true},
		{name: "db short secret", cfg: Config{DatabaseURL: "postgres://x", TokenSecret: "short"}, wantErr: true},
		{name: "db good secret", cfg: Config{DatabaseURL: "postgres://x", TokenSecret: strings.Repeat("s", 32)}, wantErr: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSecurityConfig(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateSecurityConfig: err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
