package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/shared"
)

const albumColumns = `id, sequence, title, album_type, release_date, cover_url, external_id, total_tracks, created_at, updated_at, deleted_at`

// AlbumRepository implements models.Repository[*models.Album] and manages the
// album_artists and album_songs junctions.
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// Create inserts a new [models.Album] into the database with generated ID and sequence
func (r *AlbumRepository) Create(album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "albums")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO albums (id, sequence, title, album_type, release_date, cover_url, external_id, total_tracks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		album.Title,
		string(album.Type),
		album.ReleaseDate,
		album.CoverURL,
		album.ExternalID,
		album.TotalTracks,
		album.CreatedAt(),
		album.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}

	album.SetID(id)
	album.SetSequence(sequence)
	return nil
}

// Get retrieves an album by ID, excluding soft-deleted albums
func (r *AlbumRepository) Get(id string) (*models.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// Update modifies an existing album in the database
func (r *AlbumRepository) Update(album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	album.SetUpdatedAt(now)

	query := `
		UPDATE albums
		SET title = ?, album_type = ?, release_date = ?, cover_url = ?, external_id = ?, total_tracks = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		album.Title,
		string(album.Type),
		album.ReleaseDate,
		album.CoverURL,
		album.ExternalID,
		album.TotalTracks,
		now,
		album.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}

	return requireAffected(result, "albums", album.ID())
}

// Delete soft-deletes an album by ID
func (r *AlbumRepository) Delete(id string) error {
	return softDelete(r.db, "albums", id)
}

// List retrieves all albums matching the given criteria, excluding soft-deleted albums.
//
// Supported criteria: "external_id" (string), "album_type" ([models.AlbumType]).
func (r *AlbumRepository) List(criteria map[string]any) ([]*models.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE deleted_at IS NULL`
	args := []any{}

	if externalID, ok := criteria["external_id"].(string); ok && externalID != "" {
		query += " AND external_id = ?"
		args = append(args, externalID)
	}
	if albumType, ok := criteria["album_type"].(models.AlbumType); ok && albumType != "" {
		query += " AND album_type = ?"
		args = append(args, string(albumType))
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		album, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return albums, nil
}

// LinkArtists attaches artists to an album in credit order. Existing links are left untouched.
func (r *AlbumRepository) LinkArtists(albumID string, artistIDs ...string) error {
	return linkRows(r.db, "album_artists", "album_id", "artist_id", albumID, artistIDs, 0)
}

// UnlinkArtists removes artist links from an album; with no ids every link is removed.
func (r *AlbumRepository) UnlinkArtists(albumID string, artistIDs ...string) error {
	return unlinkRows(r.db, "album_artists", "album_id", "artist_id", albumID, artistIDs...)
}

// LinkSong appends a song to the album's track list at position.
func (r *AlbumRepository) LinkSong(albumID, songID string, position int) error {
	return linkRows(r.db, "album_songs", "album_id", "song_id", albumID, []string{songID}, position)
}

// UnlinkSongs removes song links from an album; with no ids every link is removed.
func (r *AlbumRepository) UnlinkSongs(albumID string, songIDs ...string) error {
	return unlinkRows(r.db, "album_songs", "album_id", "song_id", albumID, songIDs...)
}

// Artists returns the live artists credited on an album in credit order.
func (r *AlbumRepository) Artists(albumID string) ([]*models.Artist, error) {
	query := `
		SELECT a.id, a.sequence, a.name, a.external_id, a.image_url, a.image_key, a.created_at, a.updated_at, a.deleted_at
		FROM artists a
		JOIN album_artists aa ON aa.artist_id = a.id
		WHERE aa.album_id = ? AND a.deleted_at IS NULL
		ORDER BY aa.position ASC
	`
	return NewArtistRepository(r.db).query(query, albumID)
}

// SongIDs returns the ids of songs linked to an album in track order.
func (r *AlbumRepository) SongIDs(albumID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT song_id FROM album_songs WHERE album_id = ? ORDER BY position ASC`, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query album songs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan album song: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func (r *AlbumRepository) scan(row interface{ Scan(...any) error }) (*models.Album, error) {
	var (
		id, title, albumType, releaseDate, coverURL, externalID string
		sequence, totalTracks                                   int
		createdAt, updatedAt                                    time.Time
		deletedAt                                               sql.NullTime
	)

	err := row.Scan(&id, &sequence, &title, &albumType, &releaseDate, &coverURL, &externalID, &totalTracks,
		&createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: album", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}

	album := models.NewAlbum(sequence, title, models.AlbumType(albumType))
	album.ReleaseDate = releaseDate
	album.CoverURL = coverURL
	album.ExternalID = externalID
	album.TotalTracks = totalTracks
	album.SetID(id)
	album.SetCreatedAt(createdAt)
	album.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		album.SetDeletedAt(&deletedAt.Time)
	}

	return album, nil
}
