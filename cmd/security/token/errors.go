package token

import "errors"

// Public, stable errors for callers. All verification failures collapse to an
// unauthenticated outcome at the API boundary; the split exists for logging.
var (
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("bad token signature")
	ErrExpired      = errors.New("token expired")

	ErrSecretMissing  = errors.New("token signing secret missing")
	ErrSecretTooShort = errors.New("token signing secret too short")
	ErrConfig         = errors.New("invalid token config")
)
