// Package services implements the remote collaborators of the ingest pipeline.
//
// # Metadata
//
// [SpotifyService] implements [MetadataProvider] against the Spotify Web API using the
// OAuth2 client credentials flow. Album track listings are followed across pages and all
// requests share a token-bucket rate limiter.
//
// # Lyrics
//
// [LRCLibService] implements [LyricsProvider] using lrclib.net. Synced (LRC) lyrics are
// preferred over plain text. [ParseLRC] parses local .lrc files and remote results.
//
// # Tagging
//
// [LLMTagger] implements [Tagger] with a JSON-mode chat completion request. Returned ids are
// filtered against [GenreVocabulary] and [MoodVocabulary].
//
// # Error Handling
//
// Transport and status failures wrap [shared.ErrExternalService]; a missing resource also
// wraps [shared.ErrNotFound].
package services
