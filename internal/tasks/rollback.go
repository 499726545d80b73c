package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/shared"
	"golang.org/x/sync/errgroup"
)

const rollbackConcurrency = 8

// rollback undoes everything in ledger: storage objects first (concurrently), then songs, the album and artists.
// songAlbum is the album new songs were linked to, which may predate the run.
//
// Failures are logged as [shared.ErrCompensation] and never stop the sweep. The returned count is the number of
// compensation failures.
func (e *IngestEngine) rollback(ctx context.Context, logger *log.Logger, ledger *Ledger, songAlbum string) int {
	started := time.Now()
	failures := 0
	fail := func(what, id string, err error) {
		failures++
		logger.Warn("rollback step failed", "target", what, "id", id, "error", fmt.Errorf("%w: %w", shared.ErrCompensation, err))
	}

	keys := ledger.Keys()
	errs := make([]error, len(keys))

	var g errgroup.Group
	g.SetLimit(rollbackConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			errs[i] = e.store.Delete(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			fail("object", keys[i], err)
		}
	}

	for _, id := range ledger.Songs() {
		if err := e.songs.UnlinkArtists(id); err != nil {
			fail("song artists", id, err)
		}
		if songAlbum != "" {
			if err := e.albums.UnlinkSongs(songAlbum, id); err != nil {
				fail("album song", id, err)
			}
		}
		if err := e.songs.Delete(id); err != nil {
			fail("song", id, err)
		}
	}

	if id := ledger.Album(); id != "" {
		if err := e.albums.UnlinkSongs(id); err != nil {
			fail("album songs", id, err)
		}
		if err := e.albums.UnlinkArtists(id); err != nil {
			fail("album artists", id, err)
		}
		if err := e.albums.Delete(id); err != nil {
			fail("album", id, err)
		}
	}

	for _, id := range ledger.Artists() {
		if err := e.artists.Delete(id); err != nil {
			fail("artist", id, err)
		}
	}

	logger.Info("rollback finished",
		"objects", len(keys),
		"songs", len(ledger.Songs()),
		"artists", len(ledger.Artists()),
		"failures", failures,
		"took", time.Since(started).Round(time.Millisecond),
	)
	return failures
}
