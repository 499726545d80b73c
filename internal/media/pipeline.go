// package media turns a source audio file into an uploaded HLS asset.
package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/desertthunder/tracklift/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	SourceFolder = "songs/source"
	StreamFolder = "songs/hls"
)

// Transcoder renders a source file into an HLS workspace.
type Transcoder interface {
	Transcode(ctx context.Context, input, outDir string) error
}

// Prober reads the playback duration of a media file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// UploadRecorder is told about every key or prefix as soon as its upload call returns.
type UploadRecorder interface {
	RecordUpload(key string)
}

// RecorderFunc adapts a function to [UploadRecorder].
type RecorderFunc func(key string)

func (f RecorderFunc) RecordUpload(key string) { f(key) }

// Result describes a processed track.
type Result struct {
	StreamURL    string // URL of the HLS manifest
	SourceKey    string // Key of the uploaded source file
	StreamPrefix string // Key prefix holding the manifest and segments, with trailing slash
	Duration     int    // Whole seconds
}

// Pipeline uploads, transcodes and probes source audio.
type Pipeline struct {
	store      storage.Store
	transcoder Transcoder
	prober     Prober
	workDir    string
	logger     *log.Logger
}

// NewPipeline creates a Pipeline. workDir is the parent for temporary workspaces; empty uses the OS default.
func NewPipeline(store storage.Store, transcoder Transcoder, prober Prober, workDir string, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Pipeline{store: store, transcoder: transcoder, prober: prober, workDir: workDir, logger: logger}
}

// Process runs the four media steps in order: upload source, transcode, upload the workspace, probe duration.
//
// rec sees the source key and the stream prefix as soon as each upload returns, including a stream
// prefix whose directory upload failed part way. The temporary workspace is always removed.
func (p *Pipeline) Process(ctx context.Context, src string, rec UploadRecorder) (Result, error) {
	if rec == nil {
		rec = RecorderFunc(func(string) {})
	}

	source, err := p.store.Upload(ctx, src, SourceFolder, "")
	if err != nil {
		return Result{}, wrap(shared.ErrUpload, "upload source", err)
	}
	rec.RecordUpload(source.Key)
	p.logger.Debug("uploaded source", "key", source.Key, "size", humanize.Bytes(uint64(source.Size)))

	workspace, err := os.MkdirTemp(p.workDir, "hls-*")
	if err != nil {
		return Result{}, wrap(shared.ErrTranscode, "create workspace", err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			p.logger.Warn("failed to remove workspace", "dir", workspace, "error", err)
		}
	}()

	started := time.Now()
	if err := p.transcoder.Transcode(ctx, src, workspace); err != nil {
		return Result{}, wrap(shared.ErrTranscode, "transcode", err)
	}
	p.logger.Debug("transcoded", "source", path.Base(src), "elapsed", time.Since(started).Round(time.Millisecond))

	prefix := path.Join(StreamFolder, uuid.NewString()) + "/"
	objects, err := p.store.UploadDir(ctx, workspace, prefix)
	rec.RecordUpload(prefix)
	if err != nil {
		return Result{}, wrap(shared.ErrUpload, "upload stream", err)
	}

	manifestKey := prefix + ManifestName
	if !containsKey(objects, manifestKey) {
		return Result{}, wrap(shared.ErrTranscode, "upload stream", errors.New("workspace has no manifest"))
	}

	duration, err := p.prober.Duration(ctx, src)
	if err != nil {
		return Result{}, wrap(shared.ErrTranscode, "probe duration", err)
	}

	return Result{
		StreamURL:    p.store.URL(manifestKey),
		SourceKey:    source.Key,
		StreamPrefix: prefix,
		Duration:     int(math.Round(duration.Seconds())),
	}, nil
}

func containsKey(objects []storage.Object, key string) bool {
	for _, obj := range objects {
		if obj.Key == key {
			return true
		}
	}
	return false
}

// wrap tags err with sentinel unless it already carries it.
func wrap(sentinel error, op string, err error) error {
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, op, err)
}
