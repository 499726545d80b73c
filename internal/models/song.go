package models

import (
	"fmt"
	"strings"
)

// LyricsSource records where a song's lyrics came from.
type LyricsSource string

const (
	LyricsNone     LyricsSource = ""
	LyricsFile     LyricsSource = "file"
	LyricsEmbedded LyricsSource = "embedded"
	LyricsRemote   LyricsSource = "remote"
)

// Song is a single track backed by an HLS streaming asset.
type Song struct {
	Record
	Title        string
	AlbumID      string // Empty when the song has no album
	TrackNumber  int
	Duration     int // Duration in whole seconds
	StreamURL    string
	SourceKey    string // Object key of the uploaded source audio
	StreamPrefix string // Object key prefix (trailing slash) of the HLS asset
	Lyrics       string
	LyricsSource LyricsSource
	Genres       []string
	Moods        []string
	ExternalID   string
}

// NewSong creates an unsaved Song.
func NewSong(sequence int, title string) *Song {
	return &Song{Record: newRecord(sequence), Title: title}
}

// Validate checks that the song has a title and a streaming asset.
func (s *Song) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("song title is required")
	}
	if s.StreamURL == "" || s.SourceKey == "" || s.StreamPrefix == "" {
		return fmt.Errorf("song %q is missing its media assets", s.Title)
	}
	if s.Duration < 0 {
		return fmt.Errorf("song duration must not be negative")
	}
	return nil
}
