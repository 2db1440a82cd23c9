package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// digestSeparator joins the hex-encoded salt and derived key in a stored digest.
// The `hex(salt):hex(key)` text form is the bit-exact contract with the
// identity store.
const digestSeparator = ":"

// Hash derives a salted digest from a plaintext password.
// Format: <hex salt>:<hex key>, PBKDF2-HMAC-SHA256.
// Every call draws a fresh random salt, so hashing the same password twice
// yields different digests.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, c.Params.Iterations, c.Params.KeyLength, sha256.New)

	return hex.EncodeToString(salt) + digestSeparator + hex.EncodeToString(key), nil
}

// Verify checks whether password matches the given stored digest.
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidDigest) for a malformed digest. It never panics on
// malformed stored data; callers treat any error as "no match" and may log
// the reason.
func (c Config) Verify(digest, password string) (bool, error) {
	salt, expected, err := decode(digest)
	if err != nil {
		return false, err
	}

	// Derive with the stored key length, not the configured one, so digests
	// hashed under older settings still verify.
	key := pbkdf2.Key([]byte(password), salt, c.Params.Iterations, len(expected), sha256.New)

	if subtle.ConstantTimeCompare(key, expected) == 1 {
		return true, nil
	}
	return false, nil
}

// decode parses a stored digest into its salt and derived key.
func decode(digest string) (salt, key []byte, err error) {
	parts := strings.Split(digest, digestSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, nil, ErrInvalidDigest
	}

	salt, err = hex.DecodeString(parts[0])
	if err != nil {
		return nil, nil, ErrInvalidDigest
	}
	key, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, ErrInvalidDigest
	}

	// Bounds keep attacker-controlled digest strings from driving pathological
	// derivation work during verify.
	if len(salt) < 8 || len(salt) > 64 {
		return nil, nil, ErrInvalidDigest
	}
	if len(key) < 16 || len(key) > 128 {
		return nil, nil, ErrInvalidDigest
	}

	return salt, key, nil
}
