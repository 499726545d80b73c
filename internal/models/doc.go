// Package models defines the catalog entities and persistence interfaces for tracklift.
//
// The package contains three persistent entities, each backed by a SQLite table:
//   - [Artist] : Performing artists, unique by exact name among live rows
//   - [Album] : Albums with a derived [AlbumType] (Single, EP, Album)
//   - [Song] : Tracks backed by an HLS streaming asset, lyrics and genre/mood tags
//
// Relationships are stored in junction tables (album_artists, song_artists, album_songs) and are edited with
// push/pull-style link and unlink operations on the repositories rather than through entity fields.
//
// All entities embed [Record], which provides the ID, sequence, timestamps and soft-delete marker required by the
// [Model] interface. The [Repository] interface defines standard CRUD operations for database access.
package models
