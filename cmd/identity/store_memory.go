package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a dev-only fallback when DB is not configured. It enforces
// the same uniqueness contract as PostgresStore (normalized username/email)
// so handler tests exercise real conflict paths.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]memUser
	byUser map[string]int64 // username_norm -> id
	byMail map[string]int64 // email_norm -> id
}

type memUser struct {
	User
	passwordDigest string
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]memUser),
		byUser: make(map[string]int64),
		byMail: make(map[string]int64),
	}
}

// CreateUser inserts a new user with a monotonically allocated id.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	}
	if email == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	}
	if strings.TrimSpace(in.PasswordDigest) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password digest is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	usernameNorm := NormalizeUsername(username)
	emailNorm := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[usernameNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byMail[emailNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	s.nextID++
	u := User{
		ID:           s.nextID,
		Username:     username,
		UsernameNorm: usernameNorm,
		Email:        email,
		EmailNorm:    emailNorm,
		CreatedAt:    now,
	}
	s.byID[u.ID] = memUser{User: u, passwordDigest: in.PasswordDigest}
	s.byUser[usernameNorm] = u.ID
	s.byMail[emailNorm] = u.ID

	return u, nil
}

// GetUserAuthByUsername looks up credentials by normalized username.
func (s *MemoryStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	const op = "identity.GetUserAuthByUsername"
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[NormalizeUsername(username)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	mu := s.byID[id]
	return UserAuth{User: mu.User, PasswordDigest: mu.passwordDigest}, nil
}

// GetUserAuthByEmail looks up credentials by normalized email.
func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byMail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	mu := s.byID[id]
	return UserAuth{User: mu.User, PasswordDigest: mu.passwordDigest}, nil
}

// GetUserByID fetches a user by numeric id.
func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	const op = "identity.GetUserByID"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return mu.User, nil
}
