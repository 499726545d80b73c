package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/shared"
)

const artistColumns = `id, sequence, name, external_id, image_url, image_key, created_at, updated_at, deleted_at`

// ArtistRepository implements models.Repository[*models.Artist].
//
// Live artist names are unique: [ArtistRepository.Create] returns an error wrapping [shared.ErrDuplicate] when an
// artist with the same exact name already exists, so callers can fetch the existing row instead.
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// Create inserts a new [models.Artist] into the database with generated ID and sequence
func (r *ArtistRepository) Create(artist *models.Artist) error {
	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "artists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO artists (id, sequence, name, external_id, image_url, image_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		artist.Name,
		artist.ExternalID,
		artist.ImageURL,
		artist.ImageKey,
		artist.CreatedAt(),
		artist.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: artist %q already exists", shared.ErrDuplicate, artist.Name)
		}
		return fmt.Errorf("failed to insert artist: %w", err)
	}

	artist.SetID(id)
	artist.SetSequence(sequence)
	return nil
}

// Get retrieves an artist by ID, excluding soft-deleted artists
func (r *ArtistRepository) Get(id string) (*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByName retrieves a live artist by exact name
func (r *ArtistRepository) GetByName(name string) (*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE name = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, name))
}

// Update modifies an existing artist in the database
func (r *ArtistRepository) Update(artist *models.Artist) error {
	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	artist.SetUpdatedAt(now)

	query := `
		UPDATE artists
		SET name = ?, external_id = ?, image_url = ?, image_key = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, artist.Name, artist.ExternalID, artist.ImageURL, artist.ImageKey, now, artist.ID())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: artist %q already exists", shared.ErrDuplicate, artist.Name)
		}
		return fmt.Errorf("failed to update artist: %w", err)
	}

	return requireAffected(result, "artists", artist.ID())
}

// Delete soft-deletes an artist by ID
func (r *ArtistRepository) Delete(id string) error {
	return softDelete(r.db, "artists", id)
}

// List retrieves all artists matching the given criteria, excluding soft-deleted artists.
//
// Supported criteria: "external_id" (string).
func (r *ArtistRepository) List(criteria map[string]any) ([]*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE deleted_at IS NULL`
	args := []any{}

	if externalID, ok := criteria["external_id"].(string); ok && externalID != "" {
		query += " AND external_id = ?"
		args = append(args, externalID)
	}

	query += " ORDER BY sequence ASC"

	return r.query(query, args...)
}

func (r *ArtistRepository) query(query string, args ...any) ([]*models.Artist, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		artist, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, artist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return artists, nil
}

// scan reads one artist from a [sql.Row] or [sql.Rows]
func (r *ArtistRepository) scan(row interface{ Scan(...any) error }) (*models.Artist, error) {
	var (
		id, name, externalID, imageURL, imageKey string
		sequence                                 int
		createdAt, updatedAt                     time.Time
		deletedAt                                sql.NullTime
	)

	err := row.Scan(&id, &sequence, &name, &externalID, &imageURL, &imageKey, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: artist", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}

	artist := models.NewArtist(sequence, name, externalID)
	artist.ImageURL = imageURL
	artist.ImageKey = imageKey
	artist.SetID(id)
	artist.SetCreatedAt(createdAt)
	artist.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		artist.SetDeletedAt(&deletedAt.Time)
	}

	return artist, nil
}
