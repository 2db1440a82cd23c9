// Package identity owns Parley's user records and their stored credentials.
//
// A user is keyed by a numeric id and by unique, normalized username and
// email. The password digest is an opaque text field here: its format is
// owned by parley/cmd/security/password, and this package only stores and
// returns it.
package identity
