// package tasks implements the catalog ingestion saga.
//
// The core abstraction is IngestEngine, which turns an archive and an album reference into catalog records
// and undoes its own work when any step fails. Transitions are reported via channels for non-blocking status
// reporting to the CLI layer.
package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/archive"
	"github.com/desertthunder/tracklift/internal/matching"
	"github.com/desertthunder/tracklift/internal/media"
	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/services"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/desertthunder/tracklift/internal/storage"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// ArtistStore persists artists. Implemented by repositories.ArtistRepository.
type ArtistStore interface {
	Create(artist *models.Artist) error
	GetByName(name string) (*models.Artist, error)
	Delete(id string) error
}

// AlbumStore persists albums and their relationships. Implemented by repositories.AlbumRepository.
type AlbumStore interface {
	Create(album *models.Album) error
	Get(id string) (*models.Album, error)
	Delete(id string) error
	LinkArtists(albumID string, artistIDs ...string) error
	UnlinkArtists(albumID string, artistIDs ...string) error
	LinkSong(albumID, songID string, position int) error
	UnlinkSongs(albumID string, songIDs ...string) error
	SongIDs(albumID string) ([]string, error)
}

// SongStore persists songs and their artist credits. Implemented by repositories.SongRepository.
type SongStore interface {
	Create(song *models.Song) error
	Delete(id string) error
	LinkArtists(songID string, artistIDs ...string) error
	UnlinkArtists(songID string, artistIDs ...string) error
}

// MediaProcessor turns one source file into uploaded streaming assets. Implemented by media.Pipeline.
type MediaProcessor interface {
	Process(ctx context.Context, src string, rec media.UploadRecorder) (media.Result, error)
}

// IngestRequest names the archive and the album listing to ingest.
type IngestRequest struct {
	ArchivePath string // Zip archive of audio and optional .lrc files
	AlbumURL    string // Metadata provider album URL, URI or id
	AlbumID     string // Optional existing album to append songs to; it is never rolled back
}

// CreatedSong identifies one song created by a run.
type CreatedSong struct {
	Title string `json:"title"`
	ID    string `json:"id"`
}

// IngestResult is returned by a completed run.
type IngestResult struct {
	Album    *models.Album
	Songs    []CreatedSong
	RunID    string
	Duration time.Duration
}

// EngineConfig tunes an IngestEngine.
type EngineConfig struct {
	ScratchDir      string        // Parent of per-run scratch directories; empty uses the OS default
	ProviderTimeout time.Duration // Bound on each metadata, lyrics and tagging call
	EPMaxTracks     int           // Largest track count classified as an EP
	// Workers bounds concurrent media pipelines. Above 1, media for every track runs first, so each
	// track reports StateMediaReady before StateTrackArtistsResolved.
	Workers int
}

// Dependencies are the collaborators of an IngestEngine. Lyrics and Tagger are optional.
type Dependencies struct {
	Artists  ArtistStore
	Albums   AlbumStore
	Songs    SongStore
	Store    storage.Store
	Metadata services.MetadataProvider
	Lyrics   services.LyricsProvider
	Tagger   services.Tagger
	Media    MediaProcessor
}

// IngestEngine runs ingestion sagas.
type IngestEngine struct {
	artists   ArtistStore
	albums    AlbumStore
	songs     SongStore
	store     storage.Store
	metadata  services.MetadataProvider
	lyrics    services.LyricsProvider
	tagger    services.Tagger
	media     MediaProcessor
	resolver  *ArtistResolver
	extractor *archive.Extractor
	config    EngineConfig
	logger    *log.Logger
}

// NewIngestEngine creates an IngestEngine.
func NewIngestEngine(deps Dependencies, cfg EngineConfig, logger *log.Logger) *IngestEngine {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	if cfg.EPMaxTracks <= 0 {
		cfg.EPMaxTracks = 6
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &IngestEngine{
		artists:   deps.Artists,
		albums:    deps.Albums,
		songs:     deps.Songs,
		store:     deps.Store,
		metadata:  deps.Metadata,
		lyrics:    deps.Lyrics,
		tagger:    deps.Tagger,
		media:     deps.Media,
		resolver:  NewArtistResolver(deps.Artists, deps.Metadata, deps.Store, cfg.ProviderTimeout, logger),
		extractor: archive.NewExtractor(logger),
		config:    cfg,
		logger:    logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// transition logs a state change and reports it.
func transition(logger *log.Logger, progress chan<- ProgressUpdate, update ProgressUpdate) {
	switch update.State {
	case StateRollingBack:
		logger.Warn(update.Message, "state", update.State)
	case StateFailed:
		logger.Error(update.Message, "state", update.State)
	default:
		logger.Info(update.Message, "state", update.State)
	}
	sendProgress(progress, update)
}

// plan is the read-only output of preflight.
type plan struct {
	listing  *services.AlbumListing
	matches  []matching.Match
	existing *models.Album
}

// run carries the mutable state of one saga.
type run struct {
	*IngestEngine
	logger   *log.Logger
	progress chan<- ProgressUpdate
	ledger   *Ledger
	plan     plan
	album    *models.Album
	offset   int
}

// Run ingests one archive.
//
// Nothing is written until preflight has extracted the archive, fetched the listing and matched every track to
// an audio file. After that any failure rolls back what the run created and the triggering error is returned.
// The scratch directory is removed in every outcome.
func (e *IngestEngine) Run(ctx context.Context, req IngestRequest, progress chan<- ProgressUpdate) (*IngestResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	started := time.Now()
	runID := shared.GenerateID()
	logger := shared.WithLogger(e.logger, "run", runID[:8])

	scratch, err := os.MkdirTemp(e.config.ScratchDir, "ingest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := archive.Cleanup(scratch); err != nil {
			logger.Warn("failed to clean up scratch directory", "error", err)
		}
	}()

	p, err := e.preflight(ctx, logger, req, scratch, progress)
	if err != nil {
		transition(logger, progress, failedUpdate(err))
		return nil, err
	}

	r := &run{
		IngestEngine: e,
		logger:       shared.WithLogger(logger, "album", p.listing.Title),
		progress:     progress,
		ledger:       NewLedger(),
		plan:         p,
	}

	result, err := r.forward(ctx)
	if err != nil {
		transition(r.logger, progress, rollingBackUpdate(err))
		var songAlbum string
		if r.album != nil {
			songAlbum = r.album.ID()
		}
		e.rollback(context.WithoutCancel(ctx), r.logger, r.ledger, songAlbum)
		transition(r.logger, progress, failedUpdate(err))
		return nil, err
	}

	result.RunID = runID
	result.Duration = time.Since(started)
	transition(r.logger, progress, completedUpdate(len(p.matches), result))
	return result, nil
}

func (e *IngestEngine) ready() error {
	var missing []string
	if e.artists == nil || e.albums == nil || e.songs == nil {
		missing = append(missing, "persistence")
	}
	if e.store == nil {
		missing = append(missing, "storage")
	}
	if e.metadata == nil {
		missing = append(missing, "metadata provider")
	}
	if e.media == nil {
		missing = append(missing, "media pipeline")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: ingest engine missing %s", shared.ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// preflight performs every check that needs no writes.
func (e *IngestEngine) preflight(ctx context.Context, logger *log.Logger, req IngestRequest, scratch string, progress chan<- ProgressUpdate) (plan, error) {
	if strings.TrimSpace(req.ArchivePath) == "" {
		return plan{}, fmt.Errorf("%w: archive path is required", shared.ErrValidation)
	}
	if strings.TrimSpace(req.AlbumURL) == "" {
		return plan{}, fmt.Errorf("%w: album reference is required", shared.ErrValidation)
	}

	info, err := os.Stat(req.ArchivePath)
	if err != nil {
		return plan{}, fmt.Errorf("%w: archive %s: %w", shared.ErrValidation, req.ArchivePath, err)
	}

	transition(logger, progress, preflightUpdate(fmt.Sprintf("Extracting %s (%s)", filepath.Base(req.ArchivePath), humanize.Bytes(uint64(info.Size())))))
	files, err := e.extractor.Extract(req.ArchivePath, scratch)
	if err != nil {
		return plan{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}

	transition(logger, progress, preflightUpdate("Fetching album listing"))
	listing, err := withTimeout(ctx, e.config.ProviderTimeout, func(ctx context.Context) (*services.AlbumListing, error) {
		return e.metadata.Album(ctx, req.AlbumURL)
	})
	if err != nil {
		return plan{}, fmt.Errorf("failed to fetch album listing: %w", err)
	}
	if len(listing.Tracks) == 0 {
		return plan{}, fmt.Errorf("%w: album %q lists no tracks", shared.ErrValidation, listing.Title)
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	classification := matching.Classify(logger, paths...)

	transition(logger, progress, preflightUpdate(fmt.Sprintf("Matching %d track(s) against %d file key(s)", len(listing.Tracks), classification.Len())))
	matches, err := matching.MatchAll(listing.Tracks, classification)
	if err != nil {
		return plan{}, err
	}
	for _, m := range matches {
		if m.Ambiguous() {
			logger.Warn("ambiguous match, using first key in archive order",
				"track", m.Track.Title, "chosen", m.Files.Key, "alternatives", m.Alternatives)
		}
	}

	p := plan{listing: listing, matches: matches}
	if req.AlbumID != "" {
		existing, err := e.albums.Get(req.AlbumID)
		if err != nil {
			return plan{}, fmt.Errorf("%w: album %s: %w", shared.ErrValidation, req.AlbumID, err)
		}
		p.existing = existing
	}
	return p, nil
}

// forward runs every mutating step. Everything it creates is recorded in the ledger as it happens.
func (r *run) forward(ctx context.Context) (*IngestResult, error) {
	listing := r.plan.listing

	albumArtists, err := r.resolveArtists(ctx, listing.Artists)
	if err != nil {
		return nil, err
	}
	transition(r.logger, r.progress, artistsResolvedUpdate(len(albumArtists)))

	if err := r.prepareAlbum(albumArtists); err != nil {
		return nil, err
	}
	transition(r.logger, r.progress, albumCreatedUpdate(r.album, r.plan.existing != nil))

	var prepared []media.Result
	if r.config.Workers > 1 {
		if prepared, err = r.processMedia(ctx); err != nil {
			return nil, err
		}
	}

	result := &IngestResult{Album: r.album}
	for i, m := range r.plan.matches {
		var res *media.Result
		if prepared != nil {
			res = &prepared[i]
		}

		song, err := r.ingestTrack(ctx, i+1, m, res)
		if err != nil {
			return nil, fmt.Errorf("track %d (%s): %w", i+1, m.Track.Title, err)
		}
		result.Songs = append(result.Songs, CreatedSong{Title: song.Title, ID: song.ID()})
	}

	return result, nil
}

func (r *run) resolveArtists(ctx context.Context, descs []services.ArtistDescriptor) ([]*models.Artist, error) {
	artists := make([]*models.Artist, 0, len(descs))
	seen := make(map[string]bool, len(descs))
	for _, desc := range descs {
		artist, err := r.resolver.Resolve(ctx, desc, r.ledger)
		if err != nil {
			return nil, err
		}
		if seen[artist.ID()] {
			continue
		}
		seen[artist.ID()] = true
		artists = append(artists, artist)
	}
	return artists, nil
}

// prepareAlbum creates the album, or adopts the requested existing one without recording it.
func (r *run) prepareAlbum(artists []*models.Artist) error {
	if existing := r.plan.existing; existing != nil {
		ids, err := r.albums.SongIDs(existing.ID())
		if err != nil {
			return fmt.Errorf("failed to list songs of album %s: %w", existing.ID(), err)
		}
		r.album, r.offset = existing, len(ids)
		return nil
	}

	listing := r.plan.listing
	album := models.NewAlbum(0, listing.Title, models.ClassifyAlbum(len(listing.Tracks), r.config.EPMaxTracks))
	album.ReleaseDate = listing.ReleaseDate
	album.CoverURL = listing.CoverURL
	album.ExternalID = listing.ExternalID
	album.TotalTracks = listing.TotalTracks
	if album.TotalTracks == 0 {
		album.TotalTracks = len(listing.Tracks)
	}

	if err := r.albums.Create(album); err != nil {
		return fmt.Errorf("failed to create album: %w", err)
	}
	r.ledger.SetAlbum(album.ID())
	r.album = album

	if err := r.albums.LinkArtists(album.ID(), artistIDs(artists)...); err != nil {
		return fmt.Errorf("failed to link album artists: %w", err)
	}
	return nil
}

// processMedia runs the media pipeline for every track with bounded concurrency. The first failure cancels the rest.
func (r *run) processMedia(ctx context.Context) ([]media.Result, error) {
	matches := r.plan.matches
	results := make([]media.Result, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for i, m := range matches {
		g.Go(func() error {
			res, err := r.media.Process(gctx, m.Files.AudioPath, r.ledger)
			if err != nil {
				return fmt.Errorf("track %d (%s): %w", i+1, m.Track.Title, err)
			}
			results[i] = res
			transition(r.logger, r.progress, trackUpdate(StateMediaReady, i+1, len(matches), m.Track.Title))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ingestTrack runs the per-track states. prepared holds media already processed by [run.processMedia].
func (r *run) ingestTrack(ctx context.Context, step int, m matching.Match, prepared *media.Result) (*models.Song, error) {
	total := len(r.plan.matches)
	title := m.Track.Title
	logger := shared.WithLogger(r.logger, "track", title)

	descs := m.Track.Artists
	if len(descs) == 0 {
		descs = r.plan.listing.Artists
	}
	artists, err := r.resolveArtists(ctx, descs)
	if err != nil {
		return nil, err
	}
	transition(logger, r.progress, trackUpdate(StateTrackArtistsResolved, step, total, title))

	var res media.Result
	if prepared != nil {
		res = *prepared
	} else {
		if res, err = r.media.Process(ctx, m.Files.AudioPath, r.ledger); err != nil {
			return nil, err
		}
		transition(logger, r.progress, trackUpdate(StateMediaReady, step, total, title))
	}

	lyrics, source, err := r.resolveLyrics(ctx, logger, m, r.plan.listing.Title, res.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lyrics: %w", err)
	}
	transition(logger, r.progress, trackUpdate(StateLyricsResolved, step, total, title))

	var primary string
	if len(artists) > 0 {
		primary = artists[0].Name
	}
	tags := r.resolveTags(ctx, logger, primary, title)

	song := models.NewSong(0, title)
	song.AlbumID = r.album.ID()
	song.TrackNumber = m.Track.TrackNumber
	if song.TrackNumber == 0 {
		song.TrackNumber = step
	}
	song.Duration = res.Duration
	song.StreamURL = res.StreamURL
	song.SourceKey = res.SourceKey
	song.StreamPrefix = res.StreamPrefix
	song.Lyrics = lyrics
	song.LyricsSource = source
	song.Genres = tags.Genres
	song.Moods = tags.Moods
	song.ExternalID = m.Track.ExternalID

	if err := r.songs.Create(song); err != nil {
		return nil, fmt.Errorf("failed to create song: %w", err)
	}
	r.ledger.AddSong(song.ID())

	if err := r.songs.LinkArtists(song.ID(), artistIDs(artists)...); err != nil {
		return nil, fmt.Errorf("failed to link song artists: %w", err)
	}
	if err := r.albums.LinkSong(r.album.ID(), song.ID(), r.offset+step); err != nil {
		return nil, fmt.Errorf("failed to link song to album: %w", err)
	}

	transition(logger, r.progress, persistedUpdate(step, total, song))
	return song, nil
}

func artistIDs(artists []*models.Artist) []string {
	ids := make([]string, len(artists))
	for i, a := range artists {
		ids[i] = a.ID()
	}
	return ids
}
