// Package store persists the gateway's audit ledger in SQLite.
//
// The ledger records operational events that are otherwise only visible in
// logs: bridges connecting, disconnecting or being rejected at the upgrade,
// turns rejected by the admission gate, and replies that could not be
// delivered. It is append-only and read back newest first by the admin API.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite (pure Go, no cgo), WAL mode, schema
//     created on open. ":memory:" is accepted for tests and ephemeral runs.
//   - Nop: discards writes; used when database.path is empty.
//
// # Event kinds
//
//	bridge_connected     bridge_disconnected   bridge_rejected
//	admission_overflow   delivery_failed
package store
