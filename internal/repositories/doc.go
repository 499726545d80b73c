// Package repositories implements SQLite persistence for the catalog entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [ArtistRepository] : Artist persistence with exact-name lookups and a unique live name
//   - [AlbumRepository] : Album persistence plus album→artist and album→song links
//   - [SongRepository] : Song persistence plus song→artist links
//
// Relationship edits are push/pull style: Link* inserts junction rows (ignoring rows that already exist) and Unlink*
// removes them, so both are safe to repeat. Compensating actions rely on that.
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
