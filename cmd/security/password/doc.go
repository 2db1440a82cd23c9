// Package password derives and verifies salted password digests for Parley.
//
// It is the single source of truth for the stored digest format.
//
// Design goals:
// - Stored form is `hex(salt):hex(key)`, PBKDF2-HMAC-SHA256 over (password, salt).
// - A fresh random salt per Hash call; identical passwords never share digests.
// - Constant-time key comparison during Verify.
// - Malformed stored digests fail verification; they never crash a login.
//
// A digest is compared, never decrypted. Replacing a password replaces the
// digest wholesale.
package password
