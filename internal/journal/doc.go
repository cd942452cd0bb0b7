// Package journal provides SQLite-backed durable storage for bootstrap runs.
//
// Every CreateApplication call is recorded with:
//   - Runs: one row per bootstrap, with outcome, error code and the
//     configuration fingerprint
//   - Stage outcomes: one row per executed stage
//   - Teardown failures: undo callbacks that failed when the context was
//     destroyed
//
// Runs are ordered by an autoincrement seq column, never by timestamps, so
// listings are stable across clock changes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Journal implements bootstrap.Recorder.
package journal
