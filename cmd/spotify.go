package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/urfave/cli/v3"
)

// SpotifyAlbum prints the album listing an ingest run would match against.
func (r *Runner) SpotifyAlbum(ctx context.Context, cmd *cli.Command) error {
	albumURL := cmd.StringArg("url")
	if albumURL == "" {
		return fmt.Errorf("%w: album URL is required", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	metadata, err := r.metadataProvider(config)
	if err != nil {
		return err
	}

	r.logger.Infof("fetching spotify album %v", albumURL)

	listing, err := metadata.Album(ctx, albumURL)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		data, err := shared.MarshalJSON(listing, true)
		if err != nil {
			return fmt.Errorf("failed to marshal album: %w", err)
		}
		return r.writeBytes(data)
	}

	artists := make([]string, len(listing.Artists))
	for i, a := range listing.Artists {
		artists[i] = a.Name
	}

	r.writePlainHeader(listing.Title)
	r.writePlain("Artists: %s\n", strings.Join(artists, ", "))
	if listing.ReleaseDate != "" {
		r.writePlain("Released: %s\n", listing.ReleaseDate)
	}
	r.writePlain("Tracks: %d\n\n", len(listing.Tracks))

	for _, t := range listing.Tracks {
		r.writePlain("%2d. %s - %s [%s]\n", t.TrackNumber, t.PrimaryArtist(), t.Title, shared.FormatDuration(t.DurationMS/1000))
	}
	return nil
}
