package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/tracklift/internal/archive"
	"github.com/desertthunder/tracklift/internal/formatter"
	"github.com/desertthunder/tracklift/internal/matching"
	"github.com/desertthunder/tracklift/internal/media"
	"github.com/desertthunder/tracklift/internal/repositories"
	"github.com/desertthunder/tracklift/internal/services"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/desertthunder/tracklift/internal/storage"
	"github.com/desertthunder/tracklift/internal/tasks"
	"github.com/urfave/cli/v3"
)

// IngestRun runs one ingestion saga and prints the created album.
func (r *Runner) IngestRun(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg := *config
	config = &cfg
	if cmd.Bool("dry-run") {
		config.Database.Path = ":memory:"
		config.Storage.Backend = "memory"
		r.logger.Warn("dry run: nothing will be persisted")
	}
	if workers := cmd.Int("workers"); workers > 0 {
		config.Media.Workers = int(workers)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	engine, closeFn, err := r.buildEngine(ctx, config)
	if err != nil {
		return err
	}
	defer closeFn()

	req := tasks.IngestRequest{
		ArchivePath: cmd.String("archive"),
		AlbumURL:    cmd.String("album"),
		AlbumID:     cmd.String("album-id"),
	}

	// Machine-readable formats get the result only; transitions are still logged.
	human := format == formatter.FormatText || format == formatter.FormatMarkdown
	if human {
		r.writePlain("Ingesting %s\n\n", filepath.Base(req.ArchivePath))
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if !human {
				continue
			}
			switch update.State {
			case tasks.StatePreflight:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.StateAlbumCreated:
				r.writePlain("\n📀 %s\n", update.Message)
			case tasks.StatePersisted:
				r.writePlain("   %s\n", update.Message)
			case tasks.StateRollingBack, tasks.StateFailed:
				r.writePlain("\n%s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, req, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	data, err := formatter.RenderResult(result, format)
	if err != nil {
		return err
	}

	if human {
		r.writePlain("\n")
		r.writePlainHeader("Ingest Complete!")
	}
	return r.writeBytes(data)
}

// buildEngine wires the ingestion engine from config. The returned func closes the database.
func (r *Runner) buildEngine(ctx context.Context, config *shared.Config) (*tasks.IngestEngine, func(), error) {
	metadata, err := r.metadataProvider(config)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.New(ctx, config.Storage)
	if err != nil {
		return nil, nil, err
	}

	var tagger services.Tagger
	if config.Tagging.Enabled {
		llm, err := services.NewLLMTagger(config.Tagging)
		if err != nil {
			return nil, nil, err
		}
		tagger = llm
	}

	ffmpeg := media.NewFFmpeg(config.Media, r.logger)
	if err := ffmpeg.CheckTools(); err != nil {
		return nil, nil, err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return nil, nil, err
	}

	engine := tasks.NewIngestEngine(tasks.Dependencies{
		Artists:  repositories.NewArtistRepository(db),
		Albums:   repositories.NewAlbumRepository(db),
		Songs:    repositories.NewSongRepository(db),
		Store:    store,
		Metadata: metadata,
		Lyrics:   services.NewLRCLibService(config.Lyrics),
		Tagger:   tagger,
		Media:    media.NewPipeline(store, ffmpeg, ffmpeg, config.Media.WorkDir, r.logger),
	}, tasks.EngineConfig{
		ScratchDir:      config.Ingest.ScratchDir,
		ProviderTimeout: config.Ingest.ProviderTimeout(),
		EPMaxTracks:     config.Ingest.EPMaxTracks,
		Workers:         config.Media.Workers,
	}, r.logger)

	return engine, func() { db.Close() }, nil
}

type checkRow struct {
	Track        string   `json:"track"`
	Key          string   `json:"key,omitempty"`
	Audio        string   `json:"audio,omitempty"`
	Lyrics       string   `json:"lyrics,omitempty"`
	Exact        bool     `json:"exact"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// IngestCheck extracts the archive and reports how each listed track matches, without writing anything.
func (r *Runner) IngestCheck(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	metadata, err := r.metadataProvider(config)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp(config.Ingest.ScratchDir, "check-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer archive.Cleanup(scratch)

	files, err := archive.NewExtractor(r.logger).Extract(cmd.String("archive"), scratch)
	if err != nil {
		return err
	}

	listing, err := metadata.Album(ctx, cmd.String("album"))
	if err != nil {
		return err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	classification := matching.Classify(r.logger, paths...)

	rows := make([]checkRow, len(listing.Tracks))
	for i, track := range listing.Tracks {
		rows[i] = checkRow{Track: track.Title}
		m, ok := classification.Lookup(track.Title)
		if !ok {
			continue
		}
		rows[i].Key = m.Files.Key
		rows[i].Audio = filepath.Base(m.Files.AudioPath)
		if m.Files.LyricPath != "" {
			rows[i].Lyrics = filepath.Base(m.Files.LyricPath)
		}
		rows[i].Exact = m.Exact
		rows[i].Alternatives = m.Alternatives
	}

	if format == formatter.FormatJSON {
		data, err := shared.MarshalJSON(rows, true)
		if err != nil {
			return fmt.Errorf("failed to marshal matches: %w", err)
		}
		if err := r.writeBytes(data); err != nil {
			return err
		}
	} else {
		r.writePlainHeader(fmt.Sprintf("%s: %d tracks, %d file keys", listing.Title, len(listing.Tracks), classification.Len()))
		for i, row := range rows {
			switch {
			case row.Audio == "":
				r.writePlain("%2d. ✗ %s\n", i+1, row.Track)
			case len(row.Alternatives) > 0:
				r.writePlain("%2d. ? %s → %s (also: %v)\n", i+1, row.Track, row.Audio, row.Alternatives)
			default:
				r.writePlain("%2d. ✓ %s → %s\n", i+1, row.Track, row.Audio)
			}
			if row.Lyrics != "" {
				r.writePlain("       lyrics: %s\n", row.Lyrics)
			}
		}
	}

	if _, err := matching.MatchAll(listing.Tracks, classification); err != nil {
		if errors.Is(err, shared.ErrValidation) {
			r.logger.Warn("archive would fail preflight")
		}
		return err
	}
	return nil
}
