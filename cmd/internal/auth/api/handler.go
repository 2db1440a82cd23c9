// Package authapi wires HTTP registration, login, and profile endpoints to
// the identity store and the security primitives.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"parley/cmd/identity"
	"parley/cmd/security/password"
	"parley/cmd/security/token"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 32
	emailMaxLen    = 254
)

var usernameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// Handler wires HTTP auth endpoints to the identity store.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	store  identity.Store
	hasher password.Config
	tokens *token.Manager

	dummyDigest string
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, store identity.Store, hasher password.Config, tokens *token.Manager) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("auth: nil identity store")
	}
	if tokens == nil {
		return nil, errors.New("auth: nil token manager")
	}

	h := &Handler{
		log:    log,
		cfg:    cfg,
		store:  store,
		hasher: hasher,
		tokens: tokens,
	}

	// Dummy digest for timing-resistant login checks.
	if digest, err := hasher.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyDigest = digest
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := identity.NormalizeUsername(req.Username)
	if len(username) < usernameMinLen || len(username) > usernameMaxLen || !usernameRe.MatchString(username) {
		writeError(w, http.StatusBadRequest, "invalid_request", "username must be 3..32 chars of [a-z0-9_]")
		return
	}
	email := strings.TrimSpace(req.Email)
	if !plausibleEmail(email) {
		writeError(w, http.StatusBadRequest, "invalid_request", "a valid email is required")
		return
	}

	digest, err := h.hasher.Hash(req.Password)
	if err != nil {
		if isPolicyError(err) {
			writeError(w, http.StatusBadRequest, "weak_password", passwordErrorMessage(err))
			return
		}
		h.log.Error("auth.register.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	u, err := h.store.CreateUser(ctx, identity.CreateUserInput{
		Username:       username,
		Email:          email,
		PasswordDigest: digest,
		Now:            now,
	})
	if err != nil {
		var ce identity.ConflictError
		switch {
		case errors.As(err, &ce):
			authFailures.WithLabelValues(failReasonConflict).Inc()
			h.log.Info("auth.register.conflict", "field", ce.Field, "ip", ipString(ip))
			writeError(w, http.StatusConflict, "conflict", ce.Field+" already exists")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	tok, err := h.issueToken(u)
	if err != nil {
		h.log.Error("auth.register.token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.register.ok", "user_id", u.ID, "ip", ipString(ip))
	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(u), Token: tok})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username, email, pw, ok := normalizeLoginRequest(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "username/email and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	identifier := loginIdentifier(username, email)

	userAuth, err := h.lookupUserForLogin(ctx, username, email)
	if err != nil {
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyDigest != "" {
			_, _ = h.hasher.Verify(h.dummyDigest, pw)
		}
		authFailures.WithLabelValues(failReasonBadCredentials).Inc()
		h.log.Info("auth.login.fail", "reason", "not_found", "identifier", identifier, "ip", ipString(ip))
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	okPw, err := h.hasher.Verify(userAuth.PasswordDigest, pw)
	if err != nil || !okPw {
		reason := "bad_password"
		if err != nil {
			// A malformed stored digest is an operational problem, not a
			// caller problem; keep the response uniform but log the kind.
			reason = "bad_digest"
		}
		authFailures.WithLabelValues(failReasonBadCredentials).Inc()
		h.log.Info("auth.login.fail", "reason", reason, "user_id", userAuth.ID, "ip", ipString(ip))
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	tok, err := h.issueToken(userAuth.User)
	if err != nil {
		h.log.Error("auth.login.token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.login.ok", "user_id", userAuth.ID, "ip", ipString(ip))
	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(userAuth.User), Token: tok})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

func (h *Handler) issueToken(u identity.User) (string, error) {
	return h.tokens.Issue(map[string]any{
		token.ClaimUserID: u.ID,
		token.ClaimEmail:  u.Email,
	})
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return 0, false
	}
	claims, err := h.tokens.Verify(raw)
	if err != nil {
		authFailures.WithLabelValues(failReasonBadToken).Inc()
		h.log.Info("auth.token.fail", "kind", err)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return 0, false
	}
	userID, ok := token.UserID(claims)
	if !ok || userID <= 0 {
		authFailures.WithLabelValues(failReasonBadToken).Inc()
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

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeLoginRequest(req loginRequest) (username *string, email *string, pw string, ok bool) {
	username = trimPtr(req.Username)
	email = trimPtr(req.Email)
	pw = req.Password
	if pw == "" {
		return nil, nil, "", false
	}
	if (username == nil && email == nil) || (username != nil && email != nil) {
		return nil, nil, "", false
	}
	return username, email, pw, true
}

func loginIdentifier(username, email *string) string {
	if username != nil {
		return identity.NormalizeUsername(*username)
	}
	if email != nil {
		return identity.NormalizeEmail(*email)
	}
	return ""
}

func (h *Handler) lookupUserForLogin(ctx context.Context, username, email *string) (identity.UserAuth, error) {
	if username != nil {
		return h.store.GetUserAuthByUsername(ctx, *username)
	}
	if email != nil {
		return h.store.GetUserAuthByEmail(ctx, *email)
	}
	return identity.UserAuth{}, identity.OpError{Op: "auth.lookupUser", Kind: identity.ErrInvalidInput}
}

// plausibleEmail applies a cheap shape check. Deliverability is out of scope;
// uniqueness is enforced by the store on the normalized form.
func plausibleEmail(s string) bool {
	if s == "" || len(s) > emailMaxLen {
		return false
	}
	if strings.Count(s, "@") != 1 {
		return false
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	if strings.ContainsAny(s, " \t") {
		return false
	}
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

func isPolicyError(err error) bool {
	return errors.Is(err, password.ErrPasswordTooShort) ||
		errors.Is(err, password.ErrPasswordTooLong) ||
		errors.Is(err, password.ErrWeakPassword)
}

func passwordErrorMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "password is too short"
	case errors.Is(err, password.ErrPasswordTooLong):
		return "password is too long"
	case errors.Is(err, password.ErrWeakPassword):
		return "password is too weak"
	default:
		return "invalid password"
	}
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
