package identity

import (
	"context"
	"time"
)

// User is Parley's canonical security principal.
type User struct {
	ID           int64
	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string

	CreatedAt time.Time
}

// UserAuth is a user plus the stored password digest. It is only returned by
// the credential lookups used during login; the digest never leaves the auth
// handler.
type UserAuth struct {
	User
	PasswordDigest string
}

// CreateUserInput describes a user registration request.
// PasswordDigest is the already-hashed credential; stores never see plaintext.
type CreateUserInput struct {
	Username       string
	Email          string
	PasswordDigest string
	Now            time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser inserts a new user. Returns ConflictError with Field
	// "username" or "email" when a normalized value is already taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserAuthByUsername looks up credentials by normalized username.
	// Returns an error satisfying IsNotFound when no such user exists.
	GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error)

	// GetUserAuthByEmail looks up credentials by normalized email.
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	// GetUserByID fetches a user row by numeric id.
	GetUserByID(ctx context.Context, id int64) (User, error)
}
