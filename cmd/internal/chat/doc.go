// Package chat contains Parley's room, membership, and message persistence
// primitives.
//
// Rooms and messages are keyed by ULIDs, which are lexicographically sortable
// by creation time. Message listing leans on that: pages are newest-first and
// the before_id cursor is a plain id comparison.
package chat
