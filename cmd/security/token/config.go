package token

import "time"

const (
	// MinSecretBytes is the minimum signing secret length.
	// HMAC-SHA256 keys shorter than the digest size weaken the construction.
	MinSecretBytes = 32

	// DefaultTTL is the token lifetime when none is configured.
	DefaultTTL = 24 * time.Hour
)

// Config holds the signing secret and token lifetime.
//
// The secret is deliberately a constructor argument, not an env lookup inside
// the package: tests inject fixed secrets, and the process owns exactly one
// immutable signing key established at startup.
type Config struct {
	Secret string
	TTL    time.Duration
}

// Validate checks the config.
func (c Config) Validate() error {
	if len(c.Secret) == 0 {
		return ErrSecretMissing
	}
	if len(c.Secret) < MinSecretBytes {
		return ErrSecretTooShort
	}
	if c.TTL < 0 {
		return ErrConfig
	}
	return nil
}
