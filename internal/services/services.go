package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/tracklift/internal/shared"
)

// MetadataProvider fetches album listings and artist details from a remote catalog.
type MetadataProvider interface {
	// Album resolves an album URL (or URI) to its full listing, including every track.
	Album(ctx context.Context, albumURL string) (*AlbumListing, error)

	// Artist fetches extended details for an artist by the provider's id.
	Artist(ctx context.Context, externalID string) (*ArtistDetails, error)

	// FetchImage downloads an image referenced by the provider.
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// LyricsProvider looks up lyrics remotely. A miss returns "" and no error.
type LyricsProvider interface {
	Lyrics(ctx context.Context, q LyricsQuery) (string, error)
}

// Tagger derives genre and mood ids for a track.
type Tagger interface {
	Tags(ctx context.Context, artist, track string) (Tags, error)
}

// ArtistDescriptor identifies an artist credited on an album or track.
type ArtistDescriptor struct {
	ExternalID string
	Name       string
}

// TrackDescriptor is one entry of an album's track listing.
type TrackDescriptor struct {
	ExternalID  string
	Title       string
	TrackNumber int
	DiscNumber  int
	DurationMS  int
	Artists     []ArtistDescriptor
}

// AlbumListing is the externally hosted metadata an ingest run is driven by.
type AlbumListing struct {
	ExternalID  string
	Title       string
	ReleaseDate string
	TotalTracks int
	CoverURL    string
	Artists     []ArtistDescriptor
	Tracks      []TrackDescriptor
}

// ArtistDetails holds the extended artist fields used when creating an artist.
type ArtistDetails struct {
	ExternalID string
	Name       string
	ImageURL   string // Empty when the provider has no image
	Genres     []string
}

// LyricsQuery identifies a recording for a lyrics lookup.
type LyricsQuery struct {
	Artist     string
	Track      string
	Album      string
	DurationMS int
}

// Tags are vocabulary ids for a track.
type Tags struct {
	Genres []string
	Moods  []string
}

// IsEmpty reports whether no tags were assigned.
func (t Tags) IsEmpty() bool {
	return len(t.Genres) == 0 && len(t.Moods) == 0
}

// PrimaryArtist returns the first credited artist's name, or "".
func (t TrackDescriptor) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

func externalError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", shared.ErrExternalService, provider, err)
}
