package media

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/shared"
)

const (
	// ManifestName is the playlist written into every HLS workspace.
	ManifestName   = "index.m3u8"
	segmentPattern = "segment_%03d.ts"

	defaultSegmentSeconds = 10
	defaultAudioBitrate   = "128k"
	sampleRate            = "44100"
	channels              = "2"
	stderrTail            = 2048
)

// FFmpeg implements [Transcoder] and [Prober] with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath     string
	ffprobePath    string
	segmentSeconds int
	bitrate        string
	logger         *log.Logger
}

// NewFFmpeg builds an FFmpeg from cfg. Empty tool paths resolve to "ffmpeg" and "ffprobe" on PATH.
func NewFFmpeg(cfg shared.MediaConfig, logger *log.Logger) *FFmpeg {
	f := &FFmpeg{
		ffmpegPath:     cfg.FFmpegPath,
		ffprobePath:    cfg.FFprobePath,
		segmentSeconds: cfg.SegmentSeconds,
		bitrate:        cfg.AudioBitrate,
		logger:         logger,
	}

	if f.ffmpegPath == "" {
		f.ffmpegPath = "ffmpeg"
	}
	if f.ffprobePath == "" {
		f.ffprobePath = "ffprobe"
	}
	if f.segmentSeconds <= 0 {
		f.segmentSeconds = defaultSegmentSeconds
	}
	if f.bitrate == "" {
		f.bitrate = defaultAudioBitrate
	}
	if f.logger == nil {
		f.logger = shared.DiscardLogger()
	}
	return f
}

// CheckTools verifies both binaries can be found.
func (f *FFmpeg) CheckTools() error {
	for _, tool := range []string{f.ffmpegPath, f.ffprobePath} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s not found: %v", shared.ErrInvalidConfig, tool, err)
		}
	}
	return nil
}

// BuildArgs returns the ffmpeg arguments that turn input into a VOD HLS rendition in outDir:
// stereo AAC at 44.1 kHz, fixed length MPEG-TS segments.
func (f *FFmpeg) BuildArgs(input, outDir string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-vn",
		"-c:a", "aac",
		"-b:a", f.bitrate,
		"-ac", channels,
		"-ar", sampleRate,
		"-f", "hls",
		"-hls_time", strconv.Itoa(f.segmentSeconds),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(outDir, segmentPattern),
		filepath.Join(outDir, ManifestName),
	}
}

// Transcode writes the HLS manifest and segments for input into outDir.
func (f *FFmpeg) Transcode(ctx context.Context, input, outDir string) error {
	args := f.BuildArgs(input, outDir)
	f.logger.Debug("executing ffmpeg", "args", args)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String()))
	}

	if _, err := os.Stat(filepath.Join(outDir, ManifestName)); err != nil {
		return fmt.Errorf("HLS manifest not created: %w", err)
	}
	return nil
}

// Duration reads the container duration with ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil || math.IsNaN(seconds) || seconds < 0 {
		return 0, fmt.Errorf("ffprobe returned invalid duration %q", strings.TrimSpace(string(output)))
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}
	return s
}
