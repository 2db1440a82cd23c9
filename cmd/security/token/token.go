package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim keys the issuer sets on every token.
const (
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimUserID    = "userId"
	ClaimEmail     = "email"
)

// Manager issues and verifies signed bearer tokens (JWT, HS256).
//
// The signing secret is injected at construction and read-only afterwards;
// rotating it invalidates every previously issued token. Issue and Verify are
// pure computations safe for concurrent use.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	parser *jwt.Parser
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithClock overrides the time source (for deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if m == nil || now == nil {
			return
		}
		m.now = now
	}
}

// NewManager constructs a Manager from cfg. A zero TTL selects DefaultTTL.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}

	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
		jwt.WithExpirationRequired(),
	)

	return m, nil
}

// TTL reports the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue mints a signed token carrying the caller's claims plus
// server-generated "iat" (now, Unix seconds) and "exp" (iat + TTL).
// Caller values under those two keys are overwritten.
func (m *Manager) Issue(claims map[string]any) (string, error) {
	now := m.now()

	mc := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		mc[k] = v
	}
	mc[ClaimIssuedAt] = now.Unix()
	mc[ClaimExpiresAt] = now.Add(m.ttl).Unix()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(m.secret)
}

// Verify checks a presented token and returns its claims.
//
// Failures are classified into the package sentinels: ErrMalformed for a
// token that does not parse as three decodable parts, ErrBadSignature for an
// HMAC mismatch, ErrExpired for a structurally valid, correctly signed token
// past its "exp". Handlers collapse all three into an unauthenticated
// outcome; the distinction exists for logging.
func (m *Manager) Verify(tokenString string) (map[string]any, error) {
	parsed, err := m.parser.Parse(tokenString, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		// Unknown verification failures are treated as malformed rather than
		// leaking library internals to callers.
		return ErrMalformed
	}
}

// UserID extracts the numeric identity reference from a verified claims map.
// JSON decoding turns numbers into float64; issued-but-not-serialized maps may
// still hold int64.
func UserID(claims map[string]any) (int64, bool) {
	switch v := claims[ClaimUserID].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Email extracts the email claim from a verified claims map.
func Email(claims map[string]any) (string, bool) {
	s, ok := claims[ClaimEmail].(string)
	return s, ok && s != ""
}
