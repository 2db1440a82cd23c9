package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PBKDF2Params controls key-derivation cost and sizes.
type PBKDF2Params struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params PBKDF2Params
	Policy Policy
}

// DefaultConfig returns a baseline suitable for interactive logins.
// Derivation is deliberately slow (tens of milliseconds); callers on
// latency-sensitive paths should offload Hash/Verify.
func DefaultConfig() Config {
	return Config{
		Params: PBKDF2Params{
			Iterations: 120_000,
			SaltLength: 16,
			KeyLength:  32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - PARLEY_PASSWORD_MIN_LEN
// - PARLEY_PASSWORD_MAX_LEN
// - PARLEY_PASSWORD_REJECT_VERY_WEAK (true/false)
// - PARLEY_PBKDF2_ITERATIONS
// - PARLEY_PBKDF2_SALT_LEN
// - PARLEY_PBKDF2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("PARLEY_PASSWORD_MIN_LEN"); ok {
		n, err := atoiInRange(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("PARLEY_PASSWORD_MAX_LEN"); ok {
		n, err := atoiInRange(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("PARLEY_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if v, ok := os.LookupEnv("PARLEY_PBKDF2_ITERATIONS"); ok {
		// 10k is the floor; anything lower is a security regression.
		n, err := atoiInRange(v, 10_000, 10_000_000)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PBKDF2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = n
	}

	if v, ok := os.LookupEnv("PARLEY_PBKDF2_SALT_LEN"); ok {
		n, err := atoiInRange(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PBKDF2_SALT_LEN: %w", err)
		}
		cfg.Params.SaltLength = n
	}

	if v, ok := os.LookupEnv("PARLEY_PBKDF2_KEY_LEN"); ok {
		n, err := atoiInRange(v, 16, 128)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PBKDF2_KEY_LEN: %w", err)
		}
		cfg.Params.KeyLength = n
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}
