// package formatter renders albums and ingestion results as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/desertthunder/tracklift/internal/tasks"
	"github.com/dustin/go-humanize"
)

// Format names an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat validates a --format flag value. "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want text, json, markdown or csv)", shared.ErrValidation, s)
	}
}

// SongView is a song with its credited artist names.
type SongView struct {
	Song    *models.Song
	Artists []string
}

// AlbumView is an album with its credits and track list, as loaded for display.
type AlbumView struct {
	Album   *models.Album
	Artists []string
	Songs   []SongView
}

type songJSON struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	TrackNumber int      `json:"track_number"`
	Duration    int      `json:"duration"`
	Artists     []string `json:"artists,omitempty"`
	StreamURL   string   `json:"stream_url"`
	HasLyrics   bool     `json:"has_lyrics"`
	LyricsFrom  string   `json:"lyrics_source,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Moods       []string `json:"moods,omitempty"`
}

type albumJSON struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	ReleaseDate string     `json:"release_date,omitempty"`
	CoverURL    string     `json:"cover_url,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"`
	TotalTracks int        `json:"total_tracks"`
	Artists     []string   `json:"artists,omitempty"`
	Songs       []songJSON `json:"songs,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type resultJSON struct {
	RunID    string              `json:"run_id"`
	Duration string              `json:"duration"`
	Album    albumJSON           `json:"album"`
	Songs    []tasks.CreatedSong `json:"songs"`
}

func toAlbumJSON(album *models.Album) albumJSON {
	return albumJSON{
		ID:          album.ID(),
		Title:       album.Title,
		Type:        string(album.Type),
		ReleaseDate: album.ReleaseDate,
		CoverURL:    album.CoverURL,
		ExternalID:  album.ExternalID,
		TotalTracks: album.TotalTracks,
		CreatedAt:   album.CreatedAt(),
	}
}

// AlbumToJSON encodes the view, songs included.
func AlbumToJSON(view *AlbumView) ([]byte, error) {
	out := toAlbumJSON(view.Album)
	out.Artists = view.Artists
	for _, sv := range view.Songs {
		s := sv.Song
		out.Songs = append(out.Songs, songJSON{
			ID:          s.ID(),
			Title:       s.Title,
			TrackNumber: s.TrackNumber,
			Duration:    s.Duration,
			Artists:     sv.Artists,
			StreamURL:   s.StreamURL,
			HasLyrics:   s.Lyrics != "",
			LyricsFrom:  string(s.LyricsSource),
			Genres:      s.Genres,
			Moods:       s.Moods,
		})
	}
	return shared.MarshalJSON(out, true)
}

// AlbumToCSV writes one row per song with columns: ID, Track, Title, Artists, Duration, Genres, Moods, Lyrics, Stream
func AlbumToCSV(view *AlbumView) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Track", "Title", "Artists", "Duration", "Genres", "Moods", "Lyrics", "Stream"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, sv := range view.Songs {
		s := sv.Song
		record := []string{
			s.ID(),
			strconv.Itoa(s.TrackNumber),
			s.Title,
			strings.Join(sv.Artists, "; "),
			strconv.Itoa(s.Duration),
			strings.Join(s.Genres, "; "),
			strings.Join(s.Moods, "; "),
			string(s.LyricsSource),
			s.StreamURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// AlbumToMarkdown renders the album with an optional cover image
func AlbumToMarkdown(view *AlbumView, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	album := view.Album

	fmt.Fprintf(&buf, "# %s\n\n", album.Title)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	if len(view.Artists) > 0 {
		fmt.Fprintf(&buf, "**Artists**: %s\n", strings.Join(view.Artists, ", "))
	}
	fmt.Fprintf(&buf, "**Type**: %s\n", album.Type)
	if album.ReleaseDate != "" {
		fmt.Fprintf(&buf, "**Released**: %s\n", album.ReleaseDate)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(view.Songs))
	fmt.Fprintf(&buf, "**Length**: %s\n\n", shared.FormatDuration(totalDuration(view)))

	buf.WriteString("## Tracks\n\n")
	for _, sv := range view.Songs {
		s := sv.Song
		artists := ""
		if len(sv.Artists) > 0 {
			artists = strings.Join(sv.Artists, ", ") + " - "
		}
		tags := ""
		if len(s.Genres) > 0 {
			tags = fmt.Sprintf(" _%s_", strings.Join(s.Genres, ", "))
		}
		fmt.Fprintf(&buf, "%d. %s%s [%s]%s\n", s.TrackNumber, artists, s.Title, shared.FormatDuration(s.Duration), tags)
	}

	return buf.Bytes(), nil
}

// AlbumToText renders the album as plain text
func AlbumToText(view *AlbumView) ([]byte, error) {
	var buf bytes.Buffer
	album := view.Album

	fmt.Fprintf(&buf, "Album: %s (%s)\n", album.Title, album.Type)
	fmt.Fprintf(&buf, "ID: %s\n", album.ID())
	if len(view.Artists) > 0 {
		fmt.Fprintf(&buf, "Artists: %s\n", strings.Join(view.Artists, ", "))
	}
	if album.ReleaseDate != "" {
		fmt.Fprintf(&buf, "Released: %s\n", album.ReleaseDate)
	}
	fmt.Fprintf(&buf, "Created: %s\n", humanize.Time(album.CreatedAt()))
	fmt.Fprintf(&buf, "Tracks: %d (%s)\n\n", len(view.Songs), shared.FormatDuration(totalDuration(view)))

	for _, sv := range view.Songs {
		s := sv.Song
		lyrics := ""
		if s.LyricsSource != models.LyricsNone {
			lyrics = fmt.Sprintf(" [lyrics: %s]", s.LyricsSource)
		}
		fmt.Fprintf(&buf, "%d. %s - %s (%s)%s\n", s.TrackNumber, strings.Join(sv.Artists, ", "), s.Title, shared.FormatDuration(s.Duration), lyrics)
	}

	return buf.Bytes(), nil
}

// RenderAlbum encodes the view in the requested format.
func RenderAlbum(view *AlbumView, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return AlbumToJSON(view)
	case FormatCSV:
		return AlbumToCSV(view)
	case FormatMarkdown:
		return AlbumToMarkdown(view, "")
	default:
		return AlbumToText(view)
	}
}

// ResultToText summarizes a completed ingestion
func ResultToText(result *tasks.IngestResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Album: %s (%s)\n", result.Album.Title, result.Album.Type)
	fmt.Fprintf(&buf, "ID: %s\n", result.Album.ID())
	fmt.Fprintf(&buf, "Run: %s in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(&buf, "Songs created: %d\n\n", len(result.Songs))

	for i, s := range result.Songs {
		fmt.Fprintf(&buf, "%d. %s (%s)\n", i+1, s.Title, s.ID)
	}

	return buf.Bytes(), nil
}

// RenderResult encodes an ingestion result. CSV lists the created songs; Markdown falls back to text.
func RenderResult(result *tasks.IngestResult, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return shared.MarshalJSON(resultJSON{
			RunID:    result.RunID,
			Duration: result.Duration.Round(time.Millisecond).String(),
			Album:    toAlbumJSON(result.Album),
			Songs:    result.Songs,
		}, true)
	case FormatCSV:
		var buf bytes.Buffer
		writer := csv.NewWriter(&buf)
		_ = writer.Write([]string{"ID", "Title", "Album ID"})
		for _, s := range result.Songs {
			_ = writer.Write([]string{s.ID, s.Title, result.Album.ID()})
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, fmt.Errorf("CSV writer error: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return ResultToText(result)
	}
}

func totalDuration(view *AlbumView) int {
	total := 0
	for _, sv := range view.Songs {
		total += sv.Song.Duration
	}
	return total
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ExportResult lists the files written by [WriteExport].
type ExportResult struct {
	Files      []string
	CoverImage string
}

// WriteExport writes the album in format under outputDir, which defaults to the album ID.
//
// Markdown exports produce {dir}/README.md plus {dir}/cover.jpg when the cover downloads; a failed download is
// reported through warn and the export continues without it. Other formats write {dir}/album.{ext}.
func WriteExport(view *AlbumView, format Format, outputDir string, warn func(msg string, kv ...any)) (*ExportResult, error) {
	if outputDir == "" {
		outputDir = view.Album.ID()
	}
	if warn == nil {
		warn = func(string, ...any) {}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &ExportResult{}

	if format != FormatMarkdown {
		data, err := RenderAlbum(view, format)
		if err != nil {
			return nil, fmt.Errorf("failed to render album: %w", err)
		}
		file := filepath.Join(outputDir, "album."+extension(format))
		if err := os.WriteFile(file, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file, err)
		}
		result.Files = append(result.Files, file)
		return result, nil
	}

	var coverImageFilename string
	if view.Album.CoverURL != "" {
		imageData, err := DownloadImage(view.Album.CoverURL)
		if err != nil {
			warn("failed to download cover image", "error", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				warn("failed to save cover image", "error", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := AlbumToMarkdown(view, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

func extension(format Format) string {
	switch format {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	default:
		return "txt"
	}
}
