package tasks

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/matching"
	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/services"
	"github.com/dhowden/tag"
)

// resolveLyrics picks lyrics for one track: the extracted lyric file, then lyrics embedded in the
// audio file's tags, then the remote provider. A provider miss is not an error.
func (e *IngestEngine) resolveLyrics(ctx context.Context, logger *log.Logger, m matching.Match, album string, duration int) (string, models.LyricsSource, error) {
	if text, ok := localLyrics(logger, m.Files.LyricPath); ok {
		return text, models.LyricsFile, nil
	}

	if text := embeddedLyrics(logger, m.Files.AudioPath); text != "" {
		return text, models.LyricsEmbedded, nil
	}

	if e.lyrics == nil {
		return "", models.LyricsNone, nil
	}

	query := services.LyricsQuery{
		Artist:     m.Track.PrimaryArtist(),
		Track:      m.Track.Title,
		Album:      album,
		DurationMS: m.Track.DurationMS,
	}
	if query.DurationMS == 0 {
		query.DurationMS = duration * 1000
	}

	text, err := withTimeout(ctx, e.config.ProviderTimeout, func(ctx context.Context) (string, error) {
		return e.lyrics.Lyrics(ctx, query)
	})
	if err != nil {
		return "", models.LyricsNone, err
	}
	if text == "" {
		logger.Debug("no lyrics found", "track", m.Track.Title)
		return "", models.LyricsNone, nil
	}
	return text, models.LyricsRemote, nil
}

// localLyrics accepts any lyric file that is non-empty after trimming, synced or not.
func localLyrics(logger *log.Logger, path string) (string, bool) {
	if path == "" {
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read lyric file", "path", path, "error", err)
		return "", false
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", false
	}

	if parsed, err := services.ParseLRC(strings.NewReader(text)); err != nil || !parsed.HasLines() {
		logger.Debug("lyric file is unsynced, storing as plain text", "path", path)
	}
	return text, true
}

func embeddedLyrics(logger *log.Logger, path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		logger.Debug("no readable tags", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(m.Lyrics())
}

// resolveTags never fails: tagging errors are logged and produce empty tags.
func (e *IngestEngine) resolveTags(ctx context.Context, logger *log.Logger, artist, track string) services.Tags {
	if e.tagger == nil {
		return services.Tags{}
	}

	tags, err := withTimeout(ctx, e.config.ProviderTimeout, func(ctx context.Context) (services.Tags, error) {
		return e.tagger.Tags(ctx, artist, track)
	})
	if err != nil {
		logger.Warn("AI tagging failed, continuing without tags", "track", track, "error", err)
		return services.Tags{}
	}
	return tags
}
