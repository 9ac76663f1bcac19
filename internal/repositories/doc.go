// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [DynamicPlaylistRepository] : Rule definitions with name lookups, plus the cached snapshot of each playlist
//   - [RefreshRunRepository] : History of evaluation cycles with status tracking
//
// Rule trees and order clauses are stored as JSON columns. Snapshots live in two tables: a header row carrying
// the dirty flag and one row per position, rewritten in a single transaction.
//
// Sequence numbers provide stable, human-readable ordering (e.g., playlist #15, run #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
