// Package token issues and verifies Parley's bearer tokens.
//
// It is the single source of truth for token format and verification rules.
//
// Design goals:
//   - Self-contained three-part tokens (header.claims.signature, JWT HS256):
//     no server-side session storage, no revocation list; tokens self-expire.
//   - Claims are a generic key-value map; the issuer adds "iat" and
//     "exp" = iat + TTL (default 24h).
//   - Verification failures are classified (malformed / bad signature /
//     expired) for internal logging while surfacing uniformly as
//     unauthenticated to clients.
//
// Any number of tokens may be live for one identity; two tokens issued at
// different times are never identical because "iat"/"exp" differ.
package token
