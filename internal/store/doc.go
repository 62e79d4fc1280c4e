// Package store provides persistent storage for the support gateway using SQLite.
//
// # Interfaces
//
//   - HistoryStore: append-only transcript log, listed oldest first
//   - IdentityStore: visitor profiles keyed by conversation id
//   - AccountStore: staff accounts and named counters
//   - Store: all of the above plus Ping and Close
//
// SQLiteStore implements Store on modernc.org/sqlite (pure Go, no cgo).
// MockStore is an in-memory implementation for tests, with hooks to inject
// append failures.
//
// # Ordering
//
// Messages carry a relay-assigned CreatedAt that is strictly increasing
// process-wide. ListMessages orders by (created_at, seq), where seq is the
// insertion rowid, so two messages never swap places even if timestamps
// collide after a restart.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	busy_timeout(5000) on every pooled connection
//
// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order.
//
// # Errors
//
//   - ErrNotFound: requested profile or account does not exist
//   - ErrDuplicateMessage: a message with the same id was already appended
//   - ErrUsernameExists: account username is taken
package store
