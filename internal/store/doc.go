// Package store persists gtest runs in SQLite.
//
// A run is one execution of the host engine (one fixture, or one `gtest run`
// invocation). Per run the store keeps:
//   - Dispatches: every message taken off the queue, with how its
//     invocation ended
//   - Outgoing: messages addressed to actors that are not programs
//   - Allocations: page ownership when the run finished
//
// Ordering:
//   - Dispatches are ordered by the engine's logical seq
//   - Outgoing messages are ordered by emission position
//   - Allocations are ordered by page number
//
// Ids are stored in their text form (0x-hex for messages, decimal or
// 0x-hex for actors) so the database is readable with the sqlite3 shell.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
