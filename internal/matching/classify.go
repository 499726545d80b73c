// package matching pairs extracted archive files with the tracks of an album listing.
//
// Files are grouped by a canonical key derived from the filename, so "Song One.mp3" and
// "Song One-lyrics.lrc" land on the same [TrackFiles]. Track titles are then resolved to keys by
// exact match first and substring containment second.
package matching

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/shared"
	"golang.org/x/text/unicode/norm"
)

// Role is what a file contributes to a track.
type Role int

const (
	RoleUnknown Role = iota
	RoleAudio
	RoleLyric
)

func (r Role) String() string {
	switch r {
	case RoleAudio:
		return "audio"
	case RoleLyric:
		return "lyric"
	default:
		return "unknown"
	}
}

var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".wav": true, ".m4a": true, ".aac": true,
	".ogg": true, ".opus": true, ".wma": true, ".aiff": true, ".alac": true,
}

const lyricExtension = ".lrc"

var (
	// Role markers only. A bare space is not a separator, so "Old Master" stays a title.
	markers         = `instrumental|lyrics|lyric`
	separatedSuffix = regexp.MustCompile(`(?i)\s*[_-]+\s*(?:` + markers + `)\s*$`)
	wrappedSuffix   = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:` + markers + `)\s*[\)\]]\s*$`)
)

// RoleOf classifies a path by extension.
func RoleOf(path string) Role {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case audioExtensions[ext]:
		return RoleAudio
	case ext == lyricExtension:
		return RoleLyric
	default:
		return RoleUnknown
	}
}

// CanonicalName is the filename without extension and trailing role markers such as "-lyrics" or "(Instrumental)".
func CanonicalName(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))

	for {
		stripped := wrappedSuffix.ReplaceAllString(name, "")
		stripped = strings.TrimSpace(separatedSuffix.ReplaceAllString(stripped, ""))
		if stripped == name || stripped == "" {
			return name
		}
		name = stripped
	}
}

// NormalizeKey lower-cases s and drops everything but letters and digits.
// Input is NFC-composed first, so decomposed names from macOS archives keep their accented letters.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(norm.NFC.String(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TrackFiles holds the files sharing one canonical key.
type TrackFiles struct {
	Key       string
	Name      string // Canonical name of the first file seen for the key
	AudioPath string
	LyricPath string
}

// HasAudio reports whether an audio file was classified under the key.
func (t TrackFiles) HasAudio() bool { return t.AudioPath != "" }

// Classification maps normalized keys to files, remembering insertion order.
type Classification struct {
	keys   []string
	files  map[string]*TrackFiles
	logger *log.Logger
}

// NewClassification creates an empty Classification. A nil logger discards output.
func NewClassification(logger *log.Logger) *Classification {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Classification{files: make(map[string]*TrackFiles), logger: logger}
}

// Classify adds every path, in order, to a new Classification.
func Classify(logger *log.Logger, paths ...string) *Classification {
	c := NewClassification(logger)
	for _, p := range paths {
		c.Add(p)
	}
	return c
}

// Add classifies one file. It returns the role assigned, or [RoleUnknown] when the file was skipped.
// A second file with the same key and role replaces the first.
func (c *Classification) Add(path string) Role {
	if isJunk(path) {
		c.logger.Debug("skipping metadata entry", "path", path)
		return RoleUnknown
	}

	role := RoleOf(path)
	if role == RoleUnknown {
		c.logger.Warn("skipping file with unrecognized extension", "file", filepath.Base(path))
		return RoleUnknown
	}

	name := CanonicalName(path)
	key := NormalizeKey(name)
	if key == "" {
		c.logger.Warn("skipping file without letters or digits in its name", "file", filepath.Base(path))
		return RoleUnknown
	}

	entry, ok := c.files[key]
	if !ok {
		entry = &TrackFiles{Key: key, Name: name}
		c.files[key] = entry
		c.keys = append(c.keys, key)
	}

	target := &entry.AudioPath
	if role == RoleLyric {
		target = &entry.LyricPath
	}
	if *target != "" && *target != path {
		c.logger.Warn("replacing file for key", "key", key, "role", role, "old", filepath.Base(*target), "new", filepath.Base(path))
	}
	*target = path

	return role
}

// Get returns the files for a normalized key.
func (c *Classification) Get(key string) (TrackFiles, bool) {
	entry, ok := c.files[key]
	if !ok {
		return TrackFiles{}, false
	}
	return *entry, true
}

// Keys returns the classified keys in insertion order.
func (c *Classification) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Len returns the number of distinct keys.
func (c *Classification) Len() int { return len(c.keys) }

// isJunk reports macOS resource forks, Finder metadata and other hidden files.
func isJunk(path string) bool {
	slashed := filepath.ToSlash(path)
	if strings.Contains(slashed, "__MACOSX/") {
		return true
	}
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.EqualFold(base, "Thumbs.db")
}
