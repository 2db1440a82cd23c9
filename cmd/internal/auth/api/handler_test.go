package authapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parley/cmd/identity"
	"parley/cmd/security/password"
	"parley/cmd/security/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestHandler(t *testing.T) (*Handler, *http.ServeMux) {
	t.Helper()

	tokens, err := token.NewManager(token.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	// Low iteration count keeps the test fast; format is unchanged.
	hasher := password.DefaultConfig()
	hasher.Params.Iterations = 10_000

	h, err := NewHandler(nil, Config{MaxBodyBytes: 1 << 20}, identity.NewMemoryStore(), hasher, tokens)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func registerTestUser(t *testing.T, mux *http.ServeMux, username, email, pw string) authResponse {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"username": username,
		"email":    email,
		"password": pw,
	})
	rec := doJSON(t, mux, http.MethodPost, "/auth/register", string(body), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("register %q: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var out authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return out
}

func TestRegister_ReturnsUserAndToken(t *testing.T) {
	t.Parallel()

	_, mux := newTestHandler(t)
	out := registerTestUser(t, mux, "alice", "alice@example.com", "correct horse battery")

	if out.User.ID != 1 || out.User.Username != "alice" {
		t.Fatalf("unexpected user: %+v", out.User)
	}
	if strings.Count(out.Token, ".") != 2 {
		t.Fatalf("expected three-part token, got %q", out.Token)
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	_, mux := newTestHandler(t)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"short username", `{"username":"ab","email":"a@b.com","password":"long enough pass"}`, "invalid_request"},
		{"bad chars", `{"username":"Has Space","email":"a@b.com","password":"long enough pass"}`, "invalid_request"},
		{"bad email", `{"username":"charlie","email":"not-an-email","password":"long enough pass"}`, "invalid_request"},
		{"short password", `{"username":"charlie","email":"a@b.com","password":"short"}`, "weak_password"},
		{"unknown field", `{"username":"charlie","email":"a@b.com","password":"long enough pass","extra":1}`, "invalid_json"},
	}
	for _, tc := range cases {
		rec := doJSON(t, mux, http.MethodPost, "/auth/register", tc.body, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%s)", tc.name, rec.Code, rec.Body.String())
		}
		var er errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
			t.Fatalf("%s: decode error body: %v", tc.name, err)
		}
		if er.Error.Code != tc.code {
			t.Fatalf("%s: expected code %q, got %q", tc.name, tc.code, er.Error.Code)
		}
	}
}

func TestRegister_DuplicateUsernameConflicts(t *testing.T) {
	t.Parallel()

	_, mux := newTestHandler(t)
	registerTestUser(t, mux, "dana", "dana@example.com", "correct horse battery")

	rec := doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"username":"DANA","email":"other@example.com","password":"correct horse battery"}`, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestLogin_ByUsernameAndEmail(t *testing.T) {
	t.Parallel()

	_, mux := newTestHandler(t)
	registerTestUser(t, mux, "erin", "erin@example.com", "correct horse battery")

	rec := doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"username":"erin","password":"correct horse battery"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login by username: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"ERIN@example.com","password":"correct horse battery"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login by email: %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestLogin_UniformFailures(t *testing.T) {
	t.Parallel()

	_, mux := newTestHandler(t)
	registerTestUser(t, mux, "frank", "frank@example.com", "correct horse battery")

	// Wrong password and unknown user must be indistinguishable.
	for _, body := range []string{
		`{"username":"frank","password":"wrong password here"}`,
		`{"username":"nobody","password":"wrong password here"}`,
	} {
		rec := doJSON(t, mux, http.MethodPost, "/auth/login", body, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d (%s)", rec.Code, rec.Body.String())
		}
		var er errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if er.Error.Code != "invalid_credentials" {
			t.Fatalf("expected invalid_credentials, got %q", er.Error.Code)
		}
	}

	// Both identifiers at once is a request shape error, not an auth error.
	rec := doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"username":"frank","email":"frank@example.com","password":"x y z pass"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ambiguous identifier, got %d", rec.Code)
	}
}

func TestMe_RequiresValidToken(t *testing.T) {
	t.Parallel()

	_, mux := newTestHandler(t)
	out := registerTestUser(t, mux, "grace", "grace@example.com", "correct horse battery")

	// No token.
	rec := doJSON(t, mux, http.MethodGet, "/me", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Garbage token.
	rec = doJSON(t, mux, http.MethodGet, "/me", "", "not.a.token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}

	// Valid token.
	rec = doJSON(t, mux, http.MethodGet, "/me", "", out.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d (%s)", rec.Code, rec.Body.String())
	}
	var me meResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if me.User.Username != "grace" {
		t.Fatalf("unexpected user: %+v", me.User)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	_, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodGet, "/auth/login", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodPost, "/me", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
