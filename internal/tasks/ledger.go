package tasks

import (
	"slices"
	"sync"
)

// Ledger records what a run created so rollback can undo exactly that.
//
// Appends are safe for concurrent use. Pre-existing artists and albums are never recorded.
type Ledger struct {
	mu      sync.Mutex
	keys    []string
	seen    map[string]struct{}
	songs   []string
	artists []string
	album   string
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// AddKey records an uploaded object key or key prefix. Duplicates are ignored.
func (l *Ledger) AddKey(key string) {
	if key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[key]; ok {
		return
	}
	l.seen[key] = struct{}{}
	l.keys = append(l.keys, key)
}

// RecordUpload implements media.UploadRecorder.
func (l *Ledger) RecordUpload(key string) { l.AddKey(key) }

// AddSong records a song created by this run.
func (l *Ledger) AddSong(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.songs = append(l.songs, id)
}

// AddArtist records an artist created by this run.
func (l *Ledger) AddArtist(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.artists = append(l.artists, id)
}

// SetAlbum records the album created by this run. A run creates at most one.
func (l *Ledger) SetAlbum(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.album = id
}

// Keys returns recorded object keys in upload order.
func (l *Ledger) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.keys)
}

// Songs returns recorded song ids in creation order.
func (l *Ledger) Songs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.songs)
}

// Artists returns recorded artist ids in creation order.
func (l *Ledger) Artists() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.artists)
}

// Album returns the album created by this run, or "".
func (l *Ledger) Album() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.album
}

// Empty reports whether nothing has been recorded.
func (l *Ledger) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys) == 0 && len(l.songs) == 0 && len(l.artists) == 0 && l.album == ""
}
