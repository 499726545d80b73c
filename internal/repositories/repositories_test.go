package repositories

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newTestSong(title string) *models.Song {
	song := models.NewSong(0, title)
	song.StreamURL = "https://cdn.example.com/songs/hls/abc/index.m3u8"
	song.SourceKey = "songs/source/abc.mp3"
	song.StreamPrefix = "songs/hls/abc/"
	return song
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "artists")
		if err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for table without sequence")
	}
}

func TestArtistRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := models.NewArtist(0, "Phoebe Bridgers", "spotify-1")

		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		if artist.ID() == "" {
			t.Error("artist ID should be set after creation")
		}
		if artist.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", artist.Sequence())
		}
	})

	t.Run("GetByName", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := models.NewArtist(0, "Boygenius", "")
		artist.ImageURL = "https://cdn.example.com/artists/x.jpg"
		artist.ImageKey = "artists/x.jpg"
		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		got, err := repo.GetByName("Boygenius")
		if err != nil {
			t.Fatalf("failed to get artist: %v", err)
		}
		if got.ID() != artist.ID() {
			t.Errorf("expected ID %s, got %s", artist.ID(), got.ID())
		}
		if got.ImageKey != "artists/x.jpg" {
			t.Errorf("expected image key to round trip, got %q", got.ImageKey)
		}

		if _, err := repo.GetByName("boygenius"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected exact name match only, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := models.NewArtist(0, "Julien Baker", "")
		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		artist.ImageURL = "https://cdn.example.com/a.png"
		if err := repo.Update(artist); err != nil {
			t.Fatalf("failed to update artist: %v", err)
		}

		got, err := repo.Get(artist.ID())
		if err != nil {
			t.Fatalf("failed to get artist: %v", err)
		}
		if got.ImageURL != artist.ImageURL {
			t.Errorf("expected image URL %s, got %s", artist.ImageURL, got.ImageURL)
		}
	})

	t.Run("Delete frees the name", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := models.NewArtist(0, "Lucy Dacus", "")
		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		if err := repo.Delete(artist.ID()); err != nil {
			t.Fatalf("failed to delete artist: %v", err)
		}

		if _, err := repo.Get(artist.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}

		again := models.NewArtist(0, "Lucy Dacus", "")
		if err := repo.Create(again); err != nil {
			t.Fatalf("expected name to be reusable after soft delete: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		for _, name := range []string{"A", "B", "C"} {
			if err := repo.Create(models.NewArtist(0, name, "ext-"+name)); err != nil {
				t.Fatalf("failed to create artist: %v", err)
			}
		}

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list artists: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 artists, got %d", len(all))
		}
		if all[0].Name != "A" || all[2].Name != "C" {
			t.Errorf("expected sequence order, got %s..%s", all[0].Name, all[2].Name)
		}

		filtered, err := repo.List(map[string]any{"external_id": "ext-B"})
		if err != nil {
			t.Fatalf("failed to list artists: %v", err)
		}
		if len(filtered) != 1 || filtered[0].Name != "B" {
			t.Errorf("expected only B, got %v", filtered)
		}
	})
}

func TestAlbumRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAlbumRepository(db)
		album := models.NewAlbum(0, "Punisher", models.AlbumTypeAlbum)
		album.ReleaseDate = "2020-06-18"
		album.TotalTracks = 11

		if err := repo.Create(album); err != nil {
			t.Fatalf("failed to create album: %v", err)
		}

		got, err := repo.Get(album.ID())
		if err != nil {
			t.Fatalf("failed to get album: %v", err)
		}
		if got.Title != "Punisher" || got.Type != models.AlbumTypeAlbum {
			t.Errorf("unexpected album %q (%s)", got.Title, got.Type)
		}
		if got.TotalTracks != 11 {
			t.Errorf("expected 11 tracks, got %d", got.TotalTracks)
		}
	})

	t.Run("Artists keep credit order", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		artists := NewArtistRepository(db)
		albums := NewAlbumRepository(db)

		second := models.NewArtist(0, "Second", "")
		first := models.NewArtist(0, "First", "")
		for _, a := range []*models.Artist{second, first} {
			if err := artists.Create(a); err != nil {
				t.Fatalf("failed to create artist: %v", err)
			}
		}

		album := models.NewAlbum(0, "Split", models.AlbumTypeEP)
		if err := albums.Create(album); err != nil {
			t.Fatalf("failed to create album: %v", err)
		}
		if err := albums.LinkArtists(album.ID(), first.ID(), second.ID()); err != nil {
			t.Fatalf("failed to link artists: %v", err)
		}
		if err := albums.LinkArtists(album.ID(), first.ID()); err != nil {
			t.Fatalf("relinking should be a no-op: %v", err)
		}

		credited, err := albums.Artists(album.ID())
		if err != nil {
			t.Fatalf("failed to list album artists: %v", err)
		}
		if len(credited) != 2 || credited[0].Name != "First" || credited[1].Name != "Second" {
			t.Fatalf("unexpected credits: %v", credited)
		}

		if err := albums.UnlinkArtists(album.ID()); err != nil {
			t.Fatalf("failed to unlink artists: %v", err)
		}
		credited, _ = albums.Artists(album.ID())
		if len(credited) != 0 {
			t.Errorf("expected no credits after unlink, got %d", len(credited))
		}
	})

	t.Run("Songs", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		albums := NewAlbumRepository(db)
		songs := NewSongRepository(db)

		album := models.NewAlbum(0, "Two", models.AlbumTypeEP)
		if err := albums.Create(album); err != nil {
			t.Fatalf("failed to create album: %v", err)
		}

		var ids []string
		for i, title := range []string{"One", "Two"} {
			song := newTestSong(title)
			song.AlbumID = album.ID()
			song.TrackNumber = i + 1
			if err := songs.Create(song); err != nil {
				t.Fatalf("failed to create song: %v", err)
			}
			if err := albums.LinkSong(album.ID(), song.ID(), i+1); err != nil {
				t.Fatalf("failed to link song: %v", err)
			}
			ids = append(ids, song.ID())
		}

		got, err := albums.SongIDs(album.ID())
		if err != nil {
			t.Fatalf("failed to list album songs: %v", err)
		}
		if len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
			t.Errorf("expected %v, got %v", ids, got)
		}

		if err := albums.UnlinkSongs(album.ID(), ids[0]); err != nil {
			t.Fatalf("failed to unlink song: %v", err)
		}
		got, _ = albums.SongIDs(album.ID())
		if len(got) != 1 || got[0] != ids[1] {
			t.Errorf("expected only second song, got %v", got)
		}
	})
}

func TestSongRepository(t *testing.T) {
	t.Run("Create round trips fields", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSongRepository(db)
		song := newTestSong("Kyoto")
		song.Duration = 184
		song.Lyrics = "[00:01.00]Day off in Kyoto"
		song.LyricsSource = models.LyricsFile
		song.Genres = []string{"indie-rock", "folk"}
		song.Moods = []string{"melancholic"}

		if err := repo.Create(song); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}

		got, err := repo.Get(song.ID())
		if err != nil {
			t.Fatalf("failed to get song: %v", err)
		}
		if got.AlbumID != "" {
			t.Errorf("expected no album, got %q", got.AlbumID)
		}
		if got.Duration != 184 || got.LyricsSource != models.LyricsFile {
			t.Errorf("unexpected duration/lyrics source: %d %q", got.Duration, got.LyricsSource)
		}
		if len(got.Genres) != 2 || got.Genres[1] != "folk" {
			t.Errorf("unexpected genres %v", got.Genres)
		}
		if len(got.Moods) != 1 || got.Moods[0] != "melancholic" {
			t.Errorf("unexpected moods %v", got.Moods)
		}
	})

	t.Run("List by album", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		albums := NewAlbumRepository(db)
		songs := NewSongRepository(db)

		album := models.NewAlbum(0, "LP", models.AlbumTypeAlbum)
		if err := albums.Create(album); err != nil {
			t.Fatalf("failed to create album: %v", err)
		}

		for _, n := range []int{3, 1, 2} {
			song := newTestSong("Track")
			song.AlbumID = album.ID()
			song.TrackNumber = n
			if err := songs.Create(song); err != nil {
				t.Fatalf("failed to create song: %v", err)
			}
		}
		if err := songs.Create(newTestSong("Loose")); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}

		listed, err := songs.List(map[string]any{"album_id": album.ID()})
		if err != nil {
			t.Fatalf("failed to list songs: %v", err)
		}
		if len(listed) != 3 {
			t.Fatalf("expected 3 songs, got %d", len(listed))
		}
		for i, song := range listed {
			if song.TrackNumber != i+1 {
				t.Errorf("expected track %d at index %d, got %d", i+1, i, song.TrackNumber)
			}
		}
	})

	t.Run("Artists", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		artists := NewArtistRepository(db)
		songs := NewSongRepository(db)

		artist := models.NewArtist(0, "Soloist", "")
		if err := artists.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}
		song := newTestSong("Solo")
		if err := songs.Create(song); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}
		if err := songs.LinkArtists(song.ID(), artist.ID()); err != nil {
			t.Fatalf("failed to link: %v", err)
		}

		credited, err := songs.Artists(song.ID())
		if err != nil {
			t.Fatalf("failed to list song artists: %v", err)
		}
		if len(credited) != 1 || credited[0].ID() != artist.ID() {
			t.Fatalf("unexpected credits %v", credited)
		}

		if err := songs.UnlinkArtists(song.ID(), artist.ID()); err != nil {
			t.Fatalf("failed to unlink: %v", err)
		}
		credited, _ = songs.Artists(song.ID())
		if len(credited) != 0 {
			t.Errorf("expected no credits, got %d", len(credited))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSongRepository(db)
		song := newTestSong("Gone")
		if err := repo.Create(song); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}
		if err := repo.Delete(song.ID()); err != nil {
			t.Fatalf("failed to delete song: %v", err)
		}
		if _, err := repo.Get(song.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
