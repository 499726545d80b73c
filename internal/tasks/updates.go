package tasks

import (
	"fmt"

	"github.com/desertthunder/tracklift/internal/models"
)

// ProgressUpdate represents a state transition during an ingestion run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	State   State  // Coordinator state entered
	Step    int    // Current track (1-based) for per-track states
	Total   int    // Total tracks in the listing
	Message string // Human-readable message for display
	Data    any    // Optional state-specific data (album, song)
}

// State enumerates the coordinator's state machine.
type State int

const (
	StatePreflight State = iota
	StateArtistsResolved
	StateAlbumCreated
	StateTrackArtistsResolved
	StateMediaReady
	StateLyricsResolved
	StatePersisted
	StateCompleted
	StateRollingBack
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePreflight:
		return "preflight"
	case StateArtistsResolved:
		return "artists_resolved"
	case StateAlbumCreated:
		return "album_created"
	case StateTrackArtistsResolved:
		return "track_artists_resolved"
	case StateMediaReady:
		return "media_ready"
	case StateLyricsResolved:
		return "lyrics_resolved"
	case StatePersisted:
		return "persisted"
	case StateCompleted:
		return "completed"
	case StateRollingBack:
		return "rolling_back"
	case StateFailed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func preflightUpdate(msg string) ProgressUpdate {
	return ProgressUpdate{State: StatePreflight, Message: msg}
}

func artistsResolvedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		State:   StateArtistsResolved,
		Message: fmt.Sprintf("Resolved %d album artist(s)", count),
	}
}

func albumCreatedUpdate(album *models.Album, existing bool) ProgressUpdate {
	msg := fmt.Sprintf("Album created: %s [%s] (ID: %s)", album.Title, album.Type, album.ID())
	if existing {
		msg = fmt.Sprintf("Appending to album: %s (ID: %s)", album.Title, album.ID())
	}
	return ProgressUpdate{State: StateAlbumCreated, Message: msg, Data: album}
}

func trackUpdate(state State, step, total int, title string) ProgressUpdate {
	var verb string
	switch state {
	case StateTrackArtistsResolved:
		verb = "Artists resolved"
	case StateMediaReady:
		verb = "Media uploaded"
	case StateLyricsResolved:
		verb = "Lyrics resolved"
	default:
		verb = state.String()
	}
	return ProgressUpdate{
		State:   state,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %s", step, total, verb, title),
	}
}

func persistedUpdate(step, total int, song *models.Song) ProgressUpdate {
	return ProgressUpdate{
		State:   StatePersisted,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (ID: %s)", step, total, song.Title, song.ID()),
		Data:    song,
	}
}

func completedUpdate(total int, result *IngestResult) ProgressUpdate {
	return ProgressUpdate{
		State:   StateCompleted,
		Step:    total,
		Total:   total,
		Message: fmt.Sprintf("Ingested %d song(s) into %s", len(result.Songs), result.Album.Title),
		Data:    result,
	}
}

func rollingBackUpdate(err error) ProgressUpdate {
	return ProgressUpdate{State: StateRollingBack, Message: fmt.Sprintf("Rolling back: %v", err)}
}

func failedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{State: StateFailed, Message: fmt.Sprintf("✗ %v", err), Data: err}
}
