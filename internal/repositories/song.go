package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/shared"
)

const songColumns = `id, sequence, title, album_id, track_number, duration, stream_url, source_key, stream_prefix,
	lyrics, lyrics_source, genres, moods, external_id, created_at, updated_at, deleted_at`

// SongRepository implements models.Repository[*models.Song] and manages the song_artists junction.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Create inserts a new [models.Song] into the database with generated ID and sequence
func (r *SongRepository) Create(song *models.Song) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "songs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO songs (id, sequence, title, album_id, track_number, duration, stream_url, source_key, stream_prefix,
			lyrics, lyrics_source, genres, moods, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		song.Title,
		nullString(song.AlbumID),
		song.TrackNumber,
		song.Duration,
		song.StreamURL,
		song.SourceKey,
		song.StreamPrefix,
		song.Lyrics,
		string(song.LyricsSource),
		joinList(song.Genres),
		joinList(song.Moods),
		song.ExternalID,
		song.CreatedAt(),
		song.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	song.SetID(id)
	song.SetSequence(sequence)
	return nil
}

// Get retrieves a song by ID, excluding soft-deleted songs
func (r *SongRepository) Get(id string) (*models.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// Update modifies an existing song in the database
func (r *SongRepository) Update(song *models.Song) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	song.SetUpdatedAt(now)

	query := `
		UPDATE songs
		SET title = ?, album_id = ?, track_number = ?, duration = ?, stream_url = ?, source_key = ?, stream_prefix = ?,
			lyrics = ?, lyrics_source = ?, genres = ?, moods = ?, external_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		song.Title,
		nullString(song.AlbumID),
		song.TrackNumber,
		song.Duration,
		song.StreamURL,
		song.SourceKey,
		song.StreamPrefix,
		song.Lyrics,
		string(song.LyricsSource),
		joinList(song.Genres),
		joinList(song.Moods),
		song.ExternalID,
		now,
		song.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update song: %w", err)
	}

	return requireAffected(result, "songs", song.ID())
}

// Delete soft-deletes a song by ID
func (r *SongRepository) Delete(id string) error {
	return softDelete(r.db, "songs", id)
}

// List retrieves all songs matching the given criteria, excluding soft-deleted songs.
//
// Supported criteria: "album_id" (string). Songs in an album are ordered by track number.
func (r *SongRepository) List(criteria map[string]any) ([]*models.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE deleted_at IS NULL`
	args := []any{}

	if albumID, ok := criteria["album_id"].(string); ok && albumID != "" {
		query += " AND album_id = ?"
		args = append(args, albumID)
	}

	query += " ORDER BY track_number ASC, sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []*models.Song
	for rows.Next() {
		song, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}

// LinkArtists credits artists on a song in credit order. Existing links are left untouched.
func (r *SongRepository) LinkArtists(songID string, artistIDs ...string) error {
	return linkRows(r.db, "song_artists", "song_id", "artist_id", songID, artistIDs, 0)
}

// UnlinkArtists removes artist credits from a song; with no ids every credit is removed.
func (r *SongRepository) UnlinkArtists(songID string, artistIDs ...string) error {
	return unlinkRows(r.db, "song_artists", "song_id", "artist_id", songID, artistIDs...)
}

// Artists returns the live artists credited on a song in credit order.
func (r *SongRepository) Artists(songID string) ([]*models.Artist, error) {
	query := `
		SELECT a.id, a.sequence, a.name, a.external_id, a.image_url, a.image_key, a.created_at, a.updated_at, a.deleted_at
		FROM artists a
		JOIN song_artists sa ON sa.artist_id = a.id
		WHERE sa.song_id = ? AND a.deleted_at IS NULL
		ORDER BY sa.position ASC
	`
	return NewArtistRepository(r.db).query(query, songID)
}

func (r *SongRepository) scan(row interface{ Scan(...any) error }) (*models.Song, error) {
	var (
		id, title, streamURL, sourceKey, streamPrefix string
		lyrics, lyricsSource, genres, moods, external string
		albumID                                       sql.NullString
		sequence, trackNumber, duration               int
		createdAt, updatedAt                          time.Time
		deletedAt                                     sql.NullTime
	)

	err := row.Scan(&id, &sequence, &title, &albumID, &trackNumber, &duration, &streamURL, &sourceKey, &streamPrefix,
		&lyrics, &lyricsSource, &genres, &moods, &external, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: song", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}

	song := models.NewSong(sequence, title)
	song.AlbumID = albumID.String
	song.TrackNumber = trackNumber
	song.Duration = duration
	song.StreamURL = streamURL
	song.SourceKey = sourceKey
	song.StreamPrefix = streamPrefix
	song.Lyrics = lyrics
	song.LyricsSource = models.LyricsSource(lyricsSource)
	song.Genres = splitList(genres)
	song.Moods = splitList(moods)
	song.ExternalID = external
	song.SetID(id)
	song.SetCreatedAt(createdAt)
	song.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		song.SetDeletedAt(&deletedAt.Time)
	}

	return song, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
