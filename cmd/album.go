package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/tracklift/internal/formatter"
	"github.com/desertthunder/tracklift/internal/repositories"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// AlbumList prints every live album in the catalog.
func (r *Runner) AlbumList(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	albums, err := repositories.NewAlbumRepository(db).List(nil)
	if err != nil {
		return err
	}

	if len(albums) == 0 {
		r.writePlain("No albums yet. Run 'tracklift ingest run' to add one.\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("%d albums", len(albums)))
	for _, album := range albums {
		r.writePlain("%s  %-6s %s (%d tracks, added %s)\n",
			album.ID(), album.Type, album.Title, album.TotalTracks, humanize.Time(album.CreatedAt()))
	}
	return nil
}

// AlbumShow prints one album with its credits and track list.
func (r *Runner) AlbumShow(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	view, closeFn, err := r.albumView(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	data, err := formatter.RenderAlbum(view, format)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// AlbumExport writes an album to a directory, with the cover image alongside markdown output.
func (r *Runner) AlbumExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	view, closeFn, err := r.albumView(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := formatter.WriteExport(view, format, cmd.String("output"), r.logger.Warn)
	if err != nil {
		return err
	}

	r.writePlainHeader("Export Complete!")
	for _, file := range result.Files {
		r.writePlain("  %s\n", file)
	}
	return nil
}

func (r *Runner) albumView(cmd *cli.Command) (*formatter.AlbumView, func(), error) {
	id := cmd.String("id")
	if id == "" {
		return nil, nil, fmt.Errorf("%w: --id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	db, err := r.openDatabase(config)
	if err != nil {
		return nil, nil, err
	}

	view, err := loadAlbumView(db, id)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return view, func() { db.Close() }, nil
}

func loadAlbumView(db *sql.DB, id string) (*formatter.AlbumView, error) {
	albums := repositories.NewAlbumRepository(db)
	songs := repositories.NewSongRepository(db)

	album, err := albums.Get(id)
	if err != nil {
		return nil, err
	}

	view := &formatter.AlbumView{Album: album}

	artists, err := albums.Artists(id)
	if err != nil {
		return nil, err
	}
	for _, a := range artists {
		view.Artists = append(view.Artists, a.Name)
	}

	list, err := songs.List(map[string]any{"album_id": id})
	if err != nil {
		return nil, err
	}
	for _, song := range list {
		credits, err := songs.Artists(song.ID())
		if err != nil {
			return nil, err
		}
		names := make([]string, len(credits))
		for i, a := range credits {
			names[i] = a.Name
		}
		view.Songs = append(view.Songs, formatter.SongView{Song: song, Artists: names})
	}
	return view, nil
}
