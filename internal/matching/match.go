package matching

import (
	"fmt"
	"strings"

	"github.com/desertthunder/tracklift/internal/services"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/hbollon/go-edlib"
)

// Match pairs one listing track with its files.
type Match struct {
	Track services.TrackDescriptor
	Files TrackFiles
	// Exact is false when the key was found by substring containment.
	Exact bool
	// Alternatives lists other keys that also satisfied containment; the first hit won.
	Alternatives []string
}

// Ambiguous reports whether more than one key could have matched.
func (m Match) Ambiguous() bool { return len(m.Alternatives) > 0 }

// Lookup resolves a track name to the files of one key.
//
// An exact key wins. Otherwise the first key in insertion order that contains, or is contained
// by, the normalized name is taken. Keys without an audio file never match.
func (c *Classification) Lookup(name string) (Match, bool) {
	norm := NormalizeKey(name)
	if norm == "" {
		return Match{}, false
	}

	if entry, ok := c.files[norm]; ok && entry.HasAudio() {
		return Match{Files: *entry, Exact: true}, true
	}

	var (
		found Match
		hit   bool
	)
	for _, key := range c.keys {
		entry := c.files[key]
		if !entry.HasAudio() {
			continue
		}
		if !strings.Contains(norm, key) && !strings.Contains(key, norm) {
			continue
		}
		if !hit {
			found, hit = Match{Files: *entry}, true
			continue
		}
		found.Alternatives = append(found.Alternatives, key)
	}

	return found, hit
}

// MatchAll resolves every track or fails with [shared.ErrValidation] naming each unmatched track.
// It has no side effects, so it gates the pipeline before anything is written.
func MatchAll(tracks []services.TrackDescriptor, c *Classification) ([]Match, error) {
	matches := make([]Match, 0, len(tracks))
	var missing []string

	for _, track := range tracks {
		m, ok := c.Lookup(track.Title)
		if !ok {
			missing = append(missing, c.describeMiss(track.Title))
			continue
		}
		m.Track = track
		matches = append(matches, m)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %d of %d tracks have no matching audio file: %s",
			shared.ErrValidation, len(missing), len(tracks), strings.Join(missing, "; "))
	}

	return matches, nil
}

// Closest returns the audio key most similar to name by Jaro-Winkler similarity.
func (c *Classification) Closest(name string) (TrackFiles, float32, bool) {
	norm := NormalizeKey(name)

	var (
		best      TrackFiles
		bestScore float32
		found     bool
	)
	for _, key := range c.keys {
		entry := c.files[key]
		if !entry.HasAudio() {
			continue
		}
		score, err := edlib.StringsSimilarity(norm, key, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = *entry, score, true
		}
	}
	return best, bestScore, found
}

func (c *Classification) describeMiss(title string) string {
	closest, score, ok := c.Closest(title)
	if !ok {
		return fmt.Sprintf("%q", title)
	}
	return fmt.Sprintf("%q (closest file %q, %.0f%% similar)", title, closest.Name, score*100)
}
