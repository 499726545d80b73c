// Package tasks runs catalog ingestion as a saga with real-time progress reporting.
//
// # Ingestion
//
// [IngestEngine.Run] takes an [IngestRequest] (archive path and album reference) through these states:
//
//  1. [StatePreflight] : extract the archive, fetch the album listing, classify files and match every track to
//     an audio file. Nothing is written; any failure ends the run.
//  2. [StateArtistsResolved] : find or create the album artists through [ArtistResolver]
//  3. [StateAlbumCreated] : create the album (Single, EP or Album by track count) and credit its artists
//  4. Per track: [StateTrackArtistsResolved], [StateMediaReady], [StateLyricsResolved], [StatePersisted]
//  5. [StateCompleted] : return the album and the created songs
//
// # Rollback
//
// Every object key, song, artist and album created by the run is appended to a [Ledger] as soon as it exists.
// On failure the engine enters [StateRollingBack]: objects are deleted concurrently, then songs, the album and
// artists, detaching relationships first. Compensation failures are logged and never returned. Pre-existing
// artists and albums are never recorded and so never touched.
//
// # Progress Reporting
//
// Transitions are logged and sent as [ProgressUpdate] values on an optional channel. Sends use select with
// default so a slow reader never stalls a run.
//
// # Implementation
//
// [IngestEngine] depends on:
//   - [ArtistStore], [AlbumStore], [SongStore] : implemented by the repositories package
//   - [MediaProcessor] : media.Pipeline (ffmpeg HLS transcode plus uploads)
//   - storage.Store : artist images and media objects
//   - services.MetadataProvider, services.LyricsProvider, services.Tagger : remote collaborators
package tasks
