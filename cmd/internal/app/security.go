package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"parley/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// A database-backed deployment must bring its own signing secret: issued
// tokens outlive the process that minted them, and a secret generated at
// startup would invalidate all of them on restart. Fail-fast beats silently
// breaking every session.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.DatabaseURL == "" {
		return nil
	}
	if cfg.TokenSecret == "" {
		return fmt.Errorf("security policy: PARLEY_TOKEN_SECRET is required when PARLEY_DATABASE_URL is set")
	}
	// Bytes, not runes: the secret is fed to HMAC as raw bytes.
	if len(cfg.TokenSecret) < token.MinSecretBytes {
		return fmt.Errorf("security policy: PARLEY_TOKEN_SECRET is too short (min %d bytes)", token.MinSecretBytes)
	}
	return nil
}

// devTokenSecret mints a throwaway signing secret for in-memory dev runs.
// Tokens die with the process.
func devTokenSecret() (string, error) {
	buf := make([]byte, token.MinSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
