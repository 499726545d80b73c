package models

import (
	"fmt"
	"strings"
)

// AlbumType classifies an album by its track count.
type AlbumType string

const (
	AlbumTypeSingle AlbumType = "Single"
	AlbumTypeEP     AlbumType = "EP"
	AlbumTypeAlbum  AlbumType = "Album"
)

// ClassifyAlbum derives the [AlbumType] from a track count.
// One track is a Single, up to epMaxTracks is an EP, anything larger is an Album.
func ClassifyAlbum(trackCount, epMaxTracks int) AlbumType {
	switch {
	case trackCount <= 1:
		return AlbumTypeSingle
	case trackCount <= epMaxTracks:
		return AlbumTypeEP
	default:
		return AlbumTypeAlbum
	}
}

// Album is a release grouping songs and artists.
type Album struct {
	Record
	Title       string
	Type        AlbumType
	ReleaseDate string
	CoverURL    string
	ExternalID  string
	TotalTracks int
}

// NewAlbum creates an unsaved Album.
func NewAlbum(sequence int, title string, albumType AlbumType) *Album {
	return &Album{Record: newRecord(sequence), Title: title, Type: albumType}
}

// Validate checks the album's title and type.
func (a *Album) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("album title is required")
	}
	switch a.Type {
	case AlbumTypeSingle, AlbumTypeEP, AlbumTypeAlbum:
	default:
		return fmt.Errorf("invalid album type %q", a.Type)
	}
	return nil
}
