package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tracklift/internal/shared"
)

const (
	lrclibBaseURL   = "https://lrclib.net/api"
	lrclibUserAgent = "tracklift (https://github.com/desertthunder/tracklift)"
)

// LRCLibResult is the lrclib.net /get response.
type LRCLibResult struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// LRCLibService implements [LyricsProvider] using lrclib.net.
type LRCLibService struct {
	api *APIService
}

// NewLRCLibService creates a client from cfg. An empty base URL uses lrclib.net.
func NewLRCLibService(cfg shared.LyricsConfig) *LRCLibService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = lrclibBaseURL
	}

	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	api := NewAPIService(baseURL, &http.Client{Timeout: timeout})
	api.SetHeader("User-Agent", lrclibUserAgent)
	return &LRCLibService{api: api}
}

// Lyrics looks up lyrics for q, preferring synced lyrics. A 404 or an instrumental match yields "".
func (s *LRCLibService) Lyrics(ctx context.Context, q LyricsQuery) (string, error) {
	if q.Artist == "" || q.Track == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("artist_name", q.Artist)
	params.Set("track_name", q.Track)
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.DurationMS > 0 {
		params.Set("duration", strconv.Itoa((q.DurationMS+500)/1000))
	}

	resp, err := s.api.Get(ctx, "/get", params)
	if err != nil {
		return "", externalError("lrclib", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if err := resp.Err(); err != nil {
		return "", externalError("lrclib", err)
	}

	var result LRCLibResult
	if err := resp.Decode(&result); err != nil {
		return "", externalError("lrclib", err)
	}

	switch {
	case result.Instrumental:
		return "", nil
	case strings.TrimSpace(result.SyncedLyrics) != "":
		return result.SyncedLyrics, nil
	default:
		return strings.TrimSpace(result.PlainLyrics), nil
	}
}
