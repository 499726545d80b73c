// Spotify Web API implementation of [MetadataProvider]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/tracklift/internal/shared"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// maxImageBytes bounds artist image downloads.
	maxImageBytes = 10 << 20
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifySimpleArtist is the artist object embedded in albums and tracks.
type SpotifySimpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyArtist represents a full Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
}

// SpotifySimpleTrack is a track as listed inside an album.
type SpotifySimpleTrack struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Artists     []SpotifySimpleArtist `json:"artists"`
	DurationMS  int                   `json:"duration_ms"`
	TrackNumber int                   `json:"track_number"`
	DiscNumber  int                   `json:"disc_number"`
}

// SpotifyPaginatedTracks represents one page of an album's tracks.
type SpotifyPaginatedTracks struct {
	Items  []SpotifySimpleTrack `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Next   *string              `json:"next"`
}

// SpotifyAlbum represents a full Spotify album.
type SpotifyAlbum struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Artists     []SpotifySimpleArtist  `json:"artists"`
	ReleaseDate string                 `json:"release_date"`
	TotalTracks int                    `json:"total_tracks"`
	Images      []SpotifyImage         `json:"images"`
	Tracks      SpotifyPaginatedTracks `json:"tracks"`
}

// SpotifyService implements [MetadataProvider] for the Spotify Web API.
// Requests are authorized with an app token from the client credentials flow and rate limited.
type SpotifyService struct {
	config     *clientcredentials.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// SpotifyOption customizes a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithSpotifyEndpoints overrides the API and token URLs.
func WithSpotifyEndpoints(baseURL, tokenURL string) SpotifyOption {
	return func(s *SpotifyService) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/")
		}
		if tokenURL != "" {
			s.config.TokenURL = tokenURL
		}
	}
}

// WithRateLimit caps requests per second. Values <= 0 disable limiting.
func WithRateLimit(perSecond float64) SpotifyOption {
	return func(s *SpotifyService) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewSpotifyService creates a Spotify client from app credentials.
func NewSpotifyService(creds shared.SpotifyConfig, opts ...SpotifyOption) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	s := &SpotifyService{
		config: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     spotifyTokenURL,
		},
		baseURL: spotifyBaseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.httpClient = s.config.Client(context.Background())
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// ParseAlbumID extracts the album id from an open.spotify.com URL, a spotify:album: URI or a bare id.
func ParseAlbumID(albumURL string) (string, error) {
	raw := strings.TrimSpace(albumURL)
	if raw == "" {
		return "", fmt.Errorf("%w: album URL is required", shared.ErrValidation)
	}

	if rest, ok := strings.CutPrefix(raw, "spotify:album:"); ok {
		return validAlbumID(rest)
	}

	if !strings.Contains(raw, "/") {
		return validAlbumID(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid album URL %q", shared.ErrValidation, albumURL)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "album" {
			return validAlbumID(segments[i+1])
		}
	}

	return "", fmt.Errorf("%w: %q is not a Spotify album URL", shared.ErrValidation, albumURL)
}

func validAlbumID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty album id", shared.ErrValidation)
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", fmt.Errorf("%w: invalid album id %q", shared.ErrValidation, id)
		}
	}
	return id, nil
}

// doRequest performs an authenticated GET and decodes the JSON body into result.
// endpoint is either a path under the API base or an absolute URL returned by a previous page.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return externalError("spotify", err)
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		apiURL = s.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return externalError("spotify", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return externalError("spotify", fmt.Errorf("%w: %s", shared.ErrNotFound, endpoint))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return externalError("spotify", &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return externalError("spotify", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// Album retrieves an album and every page of its track listing.
func (s *SpotifyService) Album(ctx context.Context, albumURL string) (*AlbumListing, error) {
	id, err := ParseAlbumID(albumURL)
	if err != nil {
		return nil, err
	}

	var album SpotifyAlbum
	if err := s.doRequest(ctx, "/albums/"+url.PathEscape(id), &album); err != nil {
		return nil, err
	}

	tracks := album.Tracks.Items
	next := album.Tracks.Next
	for next != nil && *next != "" {
		var page SpotifyPaginatedTracks
		if err := s.doRequest(ctx, *next, &page); err != nil {
			return nil, err
		}
		tracks = append(tracks, page.Items...)
		next = page.Next
	}

	listing := &AlbumListing{
		ExternalID:  album.ID,
		Title:       album.Name,
		ReleaseDate: album.ReleaseDate,
		TotalTracks: album.TotalTracks,
		CoverURL:    largestImage(album.Images),
		Artists:     artistDescriptors(album.Artists),
	}

	for _, track := range tracks {
		listing.Tracks = append(listing.Tracks, TrackDescriptor{
			ExternalID:  track.ID,
			Title:       track.Name,
			TrackNumber: track.TrackNumber,
			DiscNumber:  track.DiscNumber,
			DurationMS:  track.DurationMS,
			Artists:     artistDescriptors(track.Artists),
		})
	}

	if listing.TotalTracks == 0 {
		listing.TotalTracks = len(listing.Tracks)
	}

	return listing, nil
}

// Artist retrieves an artist by ID.
func (s *SpotifyService) Artist(ctx context.Context, artistID string) (*ArtistDetails, error) {
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id is required", shared.ErrValidation)
	}

	var artist SpotifyArtist
	if err := s.doRequest(ctx, "/artists/"+url.PathEscape(artistID), &artist); err != nil {
		return nil, err
	}

	return &ArtistDetails{
		ExternalID: artist.ID,
		Name:       artist.Name,
		ImageURL:   largestImage(artist.Images),
		Genres:     artist.Genres,
	}, nil
}

// FetchImage downloads an image from Spotify's CDN. Image hosts do not need the app token.
func (s *SpotifyService) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, externalError("spotify", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, externalError("spotify", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, externalError("spotify", &StatusError{StatusCode: resp.StatusCode})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, externalError("spotify", err)
	}
	if len(data) > maxImageBytes {
		return nil, externalError("spotify", errors.New("image exceeds size limit"))
	}
	return data, nil
}

func artistDescriptors(artists []SpotifySimpleArtist) []ArtistDescriptor {
	out := make([]ArtistDescriptor, 0, len(artists))
	for _, a := range artists {
		out = append(out, ArtistDescriptor{ExternalID: a.ID, Name: a.Name})
	}
	return out
}

// largestImage picks the widest image; Spotify usually lists it first.
func largestImage(images []SpotifyImage) string {
	best := -1
	for i, img := range images {
		if best == -1 || img.Width > images[best].Width {
			best = i
		}
	}
	if best == -1 {
		return ""
	}
	return images[best].URL
}
