package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tracklift/internal/media"
	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/repositories"
	"github.com/desertthunder/tracklift/internal/services"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/desertthunder/tracklift/internal/storage"
	tu "github.com/desertthunder/tracklift/internal/testing"
)

const syncedLyrics = "[ar:Band]\n[00:01.00]First line\n[00:05.50]Second line\n"

var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF fake image")

type fakeMetadata struct {
	mu          sync.Mutex
	listing     *services.AlbumListing
	artists     map[string]*services.ArtistDetails
	albumErr    error
	imageErr    error
	albumCalls  int
	artistCalls int
}

func (f *fakeMetadata) Album(context.Context, string) (*services.AlbumListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.albumCalls++
	if f.albumErr != nil {
		return nil, f.albumErr
	}
	return f.listing, nil
}

func (f *fakeMetadata) Artist(_ context.Context, id string) (*services.ArtistDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artistCalls++
	if details, ok := f.artists[id]; ok {
		return details, nil
	}
	return &services.ArtistDetails{ExternalID: id}, nil
}

func (f *fakeMetadata) FetchImage(context.Context, string) ([]byte, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return jpegBytes, nil
}

type fakeLyrics struct {
	mu      sync.Mutex
	text    string
	err     error
	queries []services.LyricsQuery
}

func (f *fakeLyrics) Lyrics(_ context.Context, q services.LyricsQuery) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.text, f.err
}

func (f *fakeLyrics) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeTagger struct {
	tags services.Tags
	err  error
}

func (f fakeTagger) Tags(context.Context, string, string) (services.Tags, error) {
	return f.tags, f.err
}

// fakeTranscoder writes a two-segment workspace, failing for sources whose base name contains failOn.
type fakeTranscoder struct {
	failOn string
}

func (f fakeTranscoder) Transcode(_ context.Context, input, outDir string) error {
	if f.failOn != "" && strings.Contains(filepath.Base(input), f.failOn) {
		return errors.New("invalid data found when processing input")
	}
	files := map[string]string{media.ManifestName: "#EXTM3U\n", "segment_000.ts": "a", "segment_001.ts": "b"}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type fakeProber struct{}

func (fakeProber) Duration(context.Context, string) (time.Duration, error) {
	return 201500 * time.Millisecond, nil
}

type harness struct {
	artists  *repositories.ArtistRepository
	albums   *repositories.AlbumRepository
	songs    *repositories.SongRepository
	store    *storage.MemoryStore
	metadata *fakeMetadata
	lyrics   *fakeLyrics
	tagger   services.Tagger
	failOn   string
	workers  int
	scratch  string
}

func newHarness(t *testing.T, listing *services.AlbumListing) *harness {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &harness{
		artists:  repositories.NewArtistRepository(db),
		albums:   repositories.NewAlbumRepository(db),
		songs:    repositories.NewSongRepository(db),
		store:    storage.NewMemoryStore("https://cdn.test"),
		metadata: &fakeMetadata{listing: listing, artists: map[string]*services.ArtistDetails{}},
		lyrics:   &fakeLyrics{},
		tagger:   fakeTagger{tags: services.Tags{Genres: []string{"indie-rock"}, Moods: []string{"calm"}}},
		scratch:  t.TempDir(),
	}
}

func (h *harness) engine() *IngestEngine {
	pipeline := media.NewPipeline(h.store, fakeTranscoder{failOn: h.failOn}, fakeProber{}, "", nil)
	return NewIngestEngine(Dependencies{
		Artists:  h.artists,
		Albums:   h.albums,
		Songs:    h.songs,
		Store:    h.store,
		Metadata: h.metadata,
		Lyrics:   h.lyrics,
		Tagger:   h.tagger,
		Media:    pipeline,
	}, EngineConfig{ScratchDir: h.scratch, ProviderTimeout: time.Second, Workers: h.workers}, nil)
}

func (h *harness) run(t *testing.T, archivePath string) (*IngestResult, error) {
	t.Helper()
	return h.engine().Run(context.Background(), IngestRequest{ArchivePath: archivePath, AlbumURL: "spotify:album:abc"}, nil)
}

func (h *harness) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.scratch)
	if err != nil {
		t.Fatalf("failed to read scratch parent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected scratch directories removed, found %d", len(entries))
	}
}

func (h *harness) artistNames(t *testing.T) []string {
	t.Helper()
	artists, err := h.artists.List(nil)
	if err != nil {
		t.Fatalf("failed to list artists: %v", err)
	}
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return names
}

func (h *harness) countRows(t *testing.T) (albums, songs int) {
	t.Helper()
	albumList, err := h.albums.List(nil)
	if err != nil {
		t.Fatalf("failed to list albums: %v", err)
	}
	songList, err := h.songs.List(nil)
	if err != nil {
		t.Fatalf("failed to list songs: %v", err)
	}
	return len(albumList), len(songList)
}

func artist(id, name string) services.ArtistDescriptor {
	return services.ArtistDescriptor{ExternalID: id, Name: name}
}

func listingOf(artists []services.ArtistDescriptor, titles ...string) *services.AlbumListing {
	listing := &services.AlbumListing{ExternalID: "abc", Title: "Test Album", ReleaseDate: "2024-05-01", Artists: artists}
	for i, title := range titles {
		listing.Tracks = append(listing.Tracks, services.TrackDescriptor{
			ExternalID:  fmt.Sprintf("t%d", i+1),
			Title:       title,
			TrackNumber: i + 1,
			DurationMS:  200000,
			Artists:     artists,
		})
	}
	listing.TotalTracks = len(listing.Tracks)
	return listing
}

func audioEntries(titles ...string) []tu.ZipEntry {
	entries := make([]tu.ZipEntry, len(titles))
	for i, title := range titles {
		entries[i] = tu.ZipEntry{Name: title + ".mp3", Content: "audio " + title}
	}
	return entries
}

func TestIngestEngine_Run(t *testing.T) {
	t.Run("local lyrics skip the provider", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Song One"))
		h.metadata.artists["a1"] = &services.ArtistDetails{ExternalID: "a1", Name: "Band", ImageURL: "https://img.test/band.jpg"}
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip",
			tu.ZipEntry{Name: "Song One.mp3", Content: "audio"},
			tu.ZipEntry{Name: "Song One-lyrics.lrc", Content: syncedLyrics},
		)

		result, err := h.run(t, archivePath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Songs) != 1 || result.Songs[0].Title != "Song One" {
			t.Fatalf("expected one created song, got %+v", result.Songs)
		}
		if result.Album.Type != models.AlbumTypeSingle {
			t.Errorf("expected Single, got %s", result.Album.Type)
		}
		if result.RunID == "" {
			t.Error("expected run id")
		}

		song, err := h.songs.Get(result.Songs[0].ID)
		if err != nil {
			t.Fatalf("failed to load song: %v", err)
		}
		if !strings.Contains(song.Lyrics, "First line") || song.LyricsSource != models.LyricsFile {
			t.Errorf("expected lyrics from file, got %q (%s)", song.Lyrics, song.LyricsSource)
		}
		if h.lyrics.calls() != 0 {
			t.Errorf("expected lyrics provider not to be called, got %d calls", h.lyrics.calls())
		}
		if song.Duration != 202 {
			t.Errorf("expected rounded duration 202, got %d", song.Duration)
		}
		if song.AlbumID != result.Album.ID() || song.TrackNumber != 1 {
			t.Errorf("unexpected album linkage: album=%q track=%d", song.AlbumID, song.TrackNumber)
		}
		if len(song.Genres) != 1 || song.Genres[0] != "indie-rock" {
			t.Errorf("expected tags persisted, got %v", song.Genres)
		}

		credits, err := h.songs.Artists(song.ID())
		if err != nil || len(credits) != 1 || credits[0].Name != "Band" {
			t.Errorf("expected song credited to Band, got %v (%v)", credits, err)
		}
		if !strings.HasSuffix(credits[0].ImageKey, ".jpg") {
			t.Errorf("expected fetched jpeg image, got key %q", credits[0].ImageKey)
		}

		ids, err := h.albums.SongIDs(result.Album.ID())
		if err != nil || len(ids) != 1 || ids[0] != song.ID() {
			t.Errorf("expected album to list the song, got %v (%v)", ids, err)
		}

		if _, ok := h.store.Get(song.SourceKey); !ok {
			t.Errorf("expected source object %s", song.SourceKey)
		}
		if _, ok := h.store.Get(song.StreamPrefix + media.ManifestName); !ok {
			t.Error("expected manifest object")
		}
		h.assertScratchEmpty(t)
	})

	t.Run("remote lyrics when no lyric file", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Intro", "Outro"))
		h.lyrics.text = "[00:02.00]hello"
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("01 Intro", "02 Outro")...)

		result, err := h.run(t, archivePath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Album.Type != models.AlbumTypeEP {
			t.Errorf("expected EP, got %s", result.Album.Type)
		}
		if h.lyrics.calls() != 2 {
			t.Fatalf("expected 2 provider calls, got %d", h.lyrics.calls())
		}

		q := h.lyrics.queries[0]
		want := services.LyricsQuery{Artist: "Band", Track: "Intro", Album: "Test Album", DurationMS: 200000}
		if q != want {
			t.Errorf("expected query %+v, got %+v", want, q)
		}

		song, _ := h.songs.Get(result.Songs[1].ID)
		if song.LyricsSource != models.LyricsRemote {
			t.Errorf("expected remote lyrics, got %q", song.LyricsSource)
		}
	})

	t.Run("plain text lyric file is kept", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Song One"))
		h.lyrics.text = "[00:01.00]remote words"
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip",
			tu.ZipEntry{Name: "Song One.mp3", Content: "audio"},
			tu.ZipEntry{Name: "Song One-lyrics.lrc", Content: "Local first line\nLocal second line\n"},
		)

		result, err := h.run(t, archivePath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.lyrics.calls() != 0 {
			t.Errorf("expected no provider calls, got %d", h.lyrics.calls())
		}
		song, _ := h.songs.Get(result.Songs[0].ID)
		if song.LyricsSource != models.LyricsFile {
			t.Errorf("expected file lyrics, got %q", song.LyricsSource)
		}
		if song.Lyrics != "Local first line\nLocal second line" {
			t.Errorf("unexpected lyrics %q", song.Lyrics)
		}
	})

	t.Run("whitespace-only lyric file falls through", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Song One"))
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip",
			tu.ZipEntry{Name: "Song One.mp3", Content: "audio"},
			tu.ZipEntry{Name: "Song One.lrc", Content: "   \n"},
		)

		if _, err := h.run(t, archivePath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.lyrics.calls() != 1 {
			t.Errorf("expected provider fallback, got %d calls", h.lyrics.calls())
		}
	})

	t.Run("tagging failure degrades to empty tags", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Song One"))
		h.tagger = fakeTagger{err: fmt.Errorf("%w: tagger: status 503", shared.ErrExternalService)}
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Song One")...)

		result, err := h.run(t, archivePath)
		if err != nil {
			t.Fatalf("expected tagging failure to be tolerated, got %v", err)
		}
		song, _ := h.songs.Get(result.Songs[0].ID)
		if len(song.Genres) != 0 || len(song.Moods) != 0 {
			t.Errorf("expected empty tags, got %v %v", song.Genres, song.Moods)
		}
	})

	t.Run("image download failure uses default image", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Song One"))
		h.metadata.artists["a1"] = &services.ArtistDetails{ExternalID: "a1", ImageURL: "https://img.test/missing.jpg"}
		h.metadata.imageErr = errors.New("status 404")
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Song One")...)

		if _, err := h.run(t, archivePath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		band, err := h.artists.GetByName("Band")
		if err != nil {
			t.Fatalf("expected artist: %v", err)
		}
		data, ok := h.store.Get(band.ImageKey)
		if !ok || string(data) != string(defaultArtistImage) {
			t.Error("expected default artist image uploaded")
		}
	})
}

func TestIngestEngine_Preflight(t *testing.T) {
	tests := []struct {
		name     string
		listing  *services.AlbumListing
		entries  []tu.ZipEntry
		request  func(archivePath string) IngestRequest
		albumErr error
		wantErr  error
	}{
		{
			name:    "unmatched track",
			listing: listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Completely Different Name"),
			entries: audioEntries("track1"),
			wantErr: shared.ErrValidation,
		},
		{
			name:    "one of several unmatched",
			listing: listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Song One", "Song Two"),
			entries: audioEntries("Song One"),
			wantErr: shared.ErrValidation,
		},
		{
			name:    "lyric file alone does not match",
			listing: listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Song One"),
			entries: []tu.ZipEntry{{Name: "Song One.lrc", Content: syncedLyrics}},
			wantErr: shared.ErrValidation,
		},
		{
			name:    "missing album reference",
			listing: listingOf(nil, "Song One"),
			entries: audioEntries("Song One"),
			request: func(p string) IngestRequest { return IngestRequest{ArchivePath: p} },
			wantErr: shared.ErrValidation,
		},
		{
			name:    "missing archive",
			listing: listingOf(nil, "Song One"),
			request: func(string) IngestRequest {
				return IngestRequest{ArchivePath: "/nonexistent/album.zip", AlbumURL: "abc"}
			},
			wantErr: shared.ErrValidation,
		},
		{
			name:     "metadata provider failure",
			listing:  listingOf(nil, "Song One"),
			entries:  audioEntries("Song One"),
			albumErr: fmt.Errorf("%w: spotify: status 502", shared.ErrExternalService),
			wantErr:  shared.ErrExternalService,
		},
		{
			name:    "empty listing",
			listing: listingOf(nil),
			entries: audioEntries("Song One"),
			wantErr: shared.ErrValidation,
		},
		{
			name:    "unknown existing album",
			listing: listingOf(nil, "Song One"),
			entries: audioEntries("Song One"),
			request: func(p string) IngestRequest {
				return IngestRequest{ArchivePath: p, AlbumURL: "abc", AlbumID: "missing"}
			},
			wantErr: shared.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.listing)
			h.metadata.albumErr = tt.albumErr
			archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", tt.entries...)

			req := IngestRequest{ArchivePath: archivePath, AlbumURL: "spotify:album:abc"}
			if tt.request != nil {
				req = tt.request(archivePath)
			}

			_, err := h.engine().Run(context.Background(), req, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			if keys := h.store.Keys(); len(keys) != 0 {
				t.Errorf("expected no uploads, got %v", keys)
			}
			if names := h.artistNames(t); len(names) != 0 {
				t.Errorf("expected no artists, got %v", names)
			}
			if albums, songs := h.countRows(t); albums != 0 || songs != 0 {
				t.Errorf("expected no rows, got %d albums and %d songs", albums, songs)
			}
			if h.metadata.artistCalls != 0 {
				t.Errorf("expected no artist lookups, got %d", h.metadata.artistCalls)
			}
			h.assertScratchEmpty(t)
		})
	}
}

func TestIngestEngine_Rollback(t *testing.T) {
	titles := []string{"Alpha", "Bravo", "Charlie"}

	for _, workers := range []int{1, 3} {
		for k := range titles {
			t.Run(fmt.Sprintf("workers=%d fail at track %d", workers, k), func(t *testing.T) {
				artists := []services.ArtistDescriptor{artist("old", "Existing Artist"), artist("new", "New Artist")}
				h := newHarness(t, listingOf(artists, titles...))
				h.failOn = titles[k]
				h.workers = workers

				existing := models.NewArtist(0, "Existing Artist", "old")
				if err := h.artists.Create(existing); err != nil {
					t.Fatalf("failed to seed artist: %v", err)
				}

				archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries(titles...)...)
				_, err := h.run(t, archivePath)
				if !errors.Is(err, shared.ErrTranscode) {
					t.Fatalf("expected ErrTranscode, got %v", err)
				}

				if keys := h.store.Keys(); len(keys) != 0 {
					t.Errorf("expected every uploaded object removed, got %v", keys)
				}
				if albums, songs := h.countRows(t); albums != 0 || songs != 0 {
					t.Errorf("expected no albums or songs, got %d and %d", albums, songs)
				}
				names := h.artistNames(t)
				if len(names) != 1 || names[0] != "Existing Artist" {
					t.Errorf("expected only the pre-existing artist, got %v", names)
				}
				if _, err := h.artists.Get(existing.ID()); err != nil {
					t.Errorf("pre-existing artist was touched: %v", err)
				}
				h.assertScratchEmpty(t)
			})
		}
	}

	t.Run("lyrics provider failure", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Alpha", "Bravo"))
		h.lyrics.err = fmt.Errorf("%w: lrclib: status 500", shared.ErrExternalService)
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Alpha", "Bravo")...)

		_, err := h.run(t, archivePath)
		if !errors.Is(err, shared.ErrExternalService) {
			t.Fatalf("expected ErrExternalService, got %v", err)
		}
		if len(h.store.Keys()) != 0 || len(h.artistNames(t)) != 0 {
			t.Error("expected full rollback")
		}
	})

	t.Run("storage failures do not stop the sweep", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Alpha"))
		h.failOn = "Alpha"
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Alpha")...)

		e := h.engine()
		e.store = &failingDeleteStore{Store: h.store}

		if _, err := e.Run(context.Background(), IngestRequest{ArchivePath: archivePath, AlbumURL: "abc"}, nil); err == nil {
			t.Fatal("expected error")
		}
		if albums, _ := h.countRows(t); albums != 0 {
			t.Error("expected album removed despite storage failures")
		}
		if len(h.artistNames(t)) != 0 {
			t.Error("expected artist removed despite storage failures")
		}
	})
}

type failingDeleteStore struct {
	storage.Store
}

func (failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("access denied")
}

func TestIngestEngine_ExistingAlbum(t *testing.T) {
	h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Bonus"))

	album := models.NewAlbum(0, "Deluxe", models.AlbumTypeAlbum)
	if err := h.albums.Create(album); err != nil {
		t.Fatalf("failed to seed album: %v", err)
	}
	archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Bonus")...)

	t.Run("failure keeps the album", func(t *testing.T) {
		h.failOn = "Bonus"
		_, err := h.engine().Run(context.Background(), IngestRequest{ArchivePath: archivePath, AlbumURL: "abc", AlbumID: album.ID()}, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if _, err := h.albums.Get(album.ID()); err != nil {
			t.Errorf("expected existing album kept: %v", err)
		}
		if ids, _ := h.albums.SongIDs(album.ID()); len(ids) != 0 {
			t.Errorf("expected no songs linked, got %v", ids)
		}
	})

	t.Run("success appends songs", func(t *testing.T) {
		h.failOn = ""
		result, err := h.engine().Run(context.Background(), IngestRequest{ArchivePath: archivePath, AlbumURL: "abc", AlbumID: album.ID()}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Album.ID() != album.ID() {
			t.Errorf("expected songs appended to %s, got %s", album.ID(), result.Album.ID())
		}
		if ids, _ := h.albums.SongIDs(album.ID()); len(ids) != 1 {
			t.Errorf("expected one linked song, got %v", ids)
		}
	})
}

func TestIngestEngine_ArtistIdempotence(t *testing.T) {
	band := []services.ArtistDescriptor{artist("a1", "Band"), artist("a1", "Band")}
	h := newHarness(t, listingOf(band, "Alpha", "Bravo"))

	for i := range 2 {
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Alpha", "Bravo")...)
		if _, err := h.run(t, archivePath); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i+1, err)
		}
	}

	if names := h.artistNames(t); len(names) != 1 {
		t.Errorf("expected exactly one artist across runs, got %v", names)
	}
	if h.metadata.artistCalls != 1 {
		t.Errorf("expected artist details fetched once, got %d", h.metadata.artistCalls)
	}
}

func TestIngestEngine_Progress(t *testing.T) {
	h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Alpha"))
	archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Alpha")...)

	progress := make(chan ProgressUpdate, 64)
	if _, err := h.engine().Run(context.Background(), IngestRequest{ArchivePath: archivePath, AlbumURL: "abc"}, progress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(progress)

	var states []State
	for u := range progress {
		if len(states) == 0 || states[len(states)-1] != u.State {
			states = append(states, u.State)
		}
	}

	want := []State{
		StatePreflight, StateArtistsResolved, StateAlbumCreated,
		StateTrackArtistsResolved, StateMediaReady, StateLyricsResolved, StatePersisted,
		StateCompleted,
	}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Errorf("expected states %v, got %v", want, states)
	}

	t.Run("parallel media reports media before track artists", func(t *testing.T) {
		h := newHarness(t, listingOf([]services.ArtistDescriptor{artist("a1", "Band")}, "Alpha"))
		h.workers = 2
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Alpha")...)

		progress := make(chan ProgressUpdate, 64)
		if _, err := h.engine().Run(context.Background(), IngestRequest{ArchivePath: archivePath, AlbumURL: "abc"}, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var states []State
		for u := range progress {
			states = append(states, u.State)
		}

		want := []State{
			StatePreflight, StateArtistsResolved, StateAlbumCreated,
			StateMediaReady, StateTrackArtistsResolved, StateLyricsResolved, StatePersisted,
			StateCompleted,
		}
		var collapsed []State
		for _, s := range states {
			if len(collapsed) == 0 || collapsed[len(collapsed)-1] != s {
				collapsed = append(collapsed, s)
			}
		}
		if fmt.Sprint(collapsed) != fmt.Sprint(want) {
			t.Errorf("expected states %v, got %v", want, collapsed)
		}
	})

	t.Run("full channel never blocks", func(t *testing.T) {
		archivePath := tu.WriteZip(t, t.TempDir(), "album.zip", audioEntries("Alpha")...)
		blocked := make(chan ProgressUpdate)

		done := make(chan error, 1)
		go func() {
			_, err := h.engine().Run(context.Background(), IngestRequest{ArchivePath: archivePath, AlbumURL: "abc"}, blocked)
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run blocked on progress channel")
		}
	})
}

func TestIngestEngine_MissingDependencies(t *testing.T) {
	e := NewIngestEngine(Dependencies{}, EngineConfig{}, nil)
	_, err := e.Run(context.Background(), IngestRequest{ArchivePath: "a.zip", AlbumURL: "abc"}, nil)
	if !errors.Is(err, shared.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePreflight, "preflight"},
		{StateTrackArtistsResolved, "track_artists_resolved"},
		{StateRollingBack, "rolling_back"},
		{State(99), ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if !StateCompleted.Terminal() || !StateFailed.Terminal() || StateRollingBack.Terminal() {
		t.Error("unexpected terminal states")
	}
}
