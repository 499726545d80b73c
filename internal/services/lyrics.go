package services

import (
	"bufio"
	"cmp"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// LyricLine is a single timestamped lyric line.
type LyricLine struct {
	Time time.Duration
	Text string
}

// ParsedLyrics is the result of [ParseLRC].
type ParsedLyrics struct {
	Lines  []LyricLine
	Title  string
	Artist string
	Album  string
}

// HasLines reports whether at least one timestamped line carries text.
func (l *ParsedLyrics) HasLines() bool {
	for _, line := range l.Lines {
		if line.Text != "" {
			return true
		}
	}
	return false
}

var (
	// [mm:ss], [mm:ss.xx] or [mm:ss:xx]
	lrcTimestampRe = regexp.MustCompile(`\[(\d+):(\d+)(?:[.:](\d+))?\]`)
	// [ar:Artist Name]
	lrcMetadataRe = regexp.MustCompile(`^\[([a-zA-Z]+):(.+)\]$`)
)

// ParseLRC parses LRC formatted lyrics. Lines may carry several timestamps; output is sorted by time.
func ParseLRC(r io.Reader) (*ParsedLyrics, error) {
	lyrics := &ParsedLyrics{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}

		if meta := lrcMetadataRe.FindStringSubmatch(line); meta != nil {
			value := strings.TrimSpace(meta[2])
			switch strings.ToLower(meta[1]) {
			case "ar":
				lyrics.Artist = value
			case "ti":
				lyrics.Title = value
			case "al":
				lyrics.Album = value
			}
			continue
		}

		matches := lrcTimestampRe.FindAllStringSubmatchIndex(line, -1)
		if len(matches) == 0 || matches[0][0] != 0 {
			continue
		}

		text := strings.TrimSpace(line[matches[len(matches)-1][1]:])
		for _, m := range matches {
			ts, ok := lrcTimestamp(line[m[2]:m[3]], line[m[4]:m[5]], submatch(line, m, 6))
			if !ok {
				continue
			}
			lyrics.Lines = append(lyrics.Lines, LyricLine{Time: ts, Text: text})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(lyrics.Lines, func(a, b LyricLine) int {
		return cmp.Compare(a.Time, b.Time)
	})

	return lyrics, nil
}

func submatch(s string, m []int, i int) string {
	if m[i] < 0 {
		return ""
	}
	return s[m[i]:m[i+1]]
}

func lrcTimestamp(min, sec, frac string) (time.Duration, bool) {
	minutes, err := strconv.Atoi(min)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(sec)
	if err != nil || seconds >= 60 {
		return 0, false
	}

	var millis int
	if frac != "" {
		n, err := strconv.Atoi(frac)
		if err != nil {
			return 0, false
		}
		// "5" is 500ms, "45" is 450ms, "456" is 456ms
		switch len(frac) {
		case 1:
			millis = n * 100
		case 2:
			millis = n * 10
		default:
			millis = n
			for i := len(frac); i > 3; i-- {
				millis /= 10
			}
		}
	}

	return time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, true
}
