package models

import (
	"fmt"
	"strings"
)

// Artist is a performing artist in the catalog.
type Artist struct {
	Record
	Name       string
	ExternalID string // Metadata provider id (e.g. Spotify artist id)
	ImageURL   string
	ImageKey   string // Object storage key of the uploaded image
}

// NewArtist creates an unsaved Artist.
func NewArtist(sequence int, name, externalID string) *Artist {
	return &Artist{Record: newRecord(sequence), Name: name, ExternalID: externalID}
}

// Validate checks that the artist has a name.
func (a *Artist) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("artist name is required")
	}
	return nil
}
