package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/desertthunder/tracklift/internal/storage"
	tu "github.com/desertthunder/tracklift/internal/testing"
)

type fakeTranscoder struct {
	err       error
	segments  int
	workspace string
}

func (f *fakeTranscoder) Transcode(_ context.Context, _ string, outDir string) error {
	f.workspace = outDir
	if f.err != nil {
		return f.err
	}
	if err := os.WriteFile(filepath.Join(outDir, ManifestName), []byte("#EXTM3U\n"), 0o644); err != nil {
		return err
	}
	for i := range f.segments {
		name := filepath.Join(outDir, fmt.Sprintf("segment_%03d.ts", i))
		if err := os.WriteFile(name, []byte("ts"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type fakeProber struct {
	duration time.Duration
	err      error
}

func (f fakeProber) Duration(context.Context, string) (time.Duration, error) {
	return f.duration, f.err
}

type recorder struct{ keys []string }

func (r *recorder) RecordUpload(key string) { r.keys = append(r.keys, key) }

func TestBuildArgs(t *testing.T) {
	f := NewFFmpeg(shared.MediaConfig{}, nil)
	args := f.BuildArgs("/in/song.flac", "/work")

	pairs := map[string]string{
		"-i":                    "/in/song.flac",
		"-c:a":                  "aac",
		"-b:a":                  "128k",
		"-ac":                   "2",
		"-ar":                   "44100",
		"-f":                    "hls",
		"-hls_time":             "10",
		"-hls_playlist_type":    "vod",
		"-hls_segment_filename": filepath.Join("/work", "segment_%03d.ts"),
	}
	for flag, want := range pairs {
		t.Run(flag, func(t *testing.T) {
			i := slices.Index(args, flag)
			if i < 0 || i+1 >= len(args) {
				t.Fatalf("flag %s missing from %v", flag, args)
			}
			if args[i+1] != want {
				t.Errorf("expected %s %q, got %q", flag, want, args[i+1])
			}
		})
	}

	if last := args[len(args)-1]; last != filepath.Join("/work", ManifestName) {
		t.Errorf("expected manifest as final argument, got %q", last)
	}

	t.Run("configured values", func(t *testing.T) {
		f := NewFFmpeg(shared.MediaConfig{SegmentSeconds: 6, AudioBitrate: "192k"}, nil)
		args := f.BuildArgs("in.mp3", "out")
		if args[slices.Index(args, "-hls_time")+1] != "6" {
			t.Error("expected configured segment length")
		}
		if args[slices.Index(args, "-b:a")+1] != "192k" {
			t.Error("expected configured bitrate")
		}
	})
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestFFmpegDuration(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    time.Duration
		wantErr bool
	}{
		{name: "fractional seconds", output: "183.600000", want: 183600 * time.Millisecond},
		{name: "whole seconds", output: "42", want: 42 * time.Second},
		{name: "garbage", output: "N/A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := writeScript(t, "ffprobe", "echo "+tt.output)
			f := NewFFmpeg(shared.MediaConfig{FFprobePath: probe}, nil)

			got, err := f.Duration(context.Background(), "song.mp3")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFFmpegTranscode(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		ff := writeScript(t, "ffmpeg", "exit 0")
		f := NewFFmpeg(shared.MediaConfig{FFmpegPath: ff}, nil)

		if err := f.Transcode(context.Background(), "in.mp3", t.TempDir()); err == nil {
			t.Fatal("expected error when no manifest is written")
		}
	})

	t.Run("tool failure includes stderr", func(t *testing.T) {
		ff := writeScript(t, "ffmpeg", "echo 'Invalid data found' >&2; exit 1")
		f := NewFFmpeg(shared.MediaConfig{FFmpegPath: ff}, nil)

		err := f.Transcode(context.Background(), "in.mp3", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
			t.Fatalf("expected stderr in error, got %v", err)
		}
	})
}

func TestPipelineProcess(t *testing.T) {
	src := tu.MustWriteFile(t, t.TempDir(), "Song One.flac", "audio")

	t.Run("success", func(t *testing.T) {
		store := storage.NewMemoryStore("https://cdn.test")
		tr := &fakeTranscoder{segments: 2}
		rec := &recorder{}
		p := NewPipeline(store, tr, fakeProber{duration: 183600 * time.Millisecond}, t.TempDir(), nil)

		res, err := p.Process(context.Background(), src, rec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if res.Duration != 184 {
			t.Errorf("expected rounded duration 184, got %d", res.Duration)
		}
		if !strings.HasPrefix(res.SourceKey, SourceFolder+"/") || !strings.HasSuffix(res.SourceKey, ".flac") {
			t.Errorf("unexpected source key %q", res.SourceKey)
		}
		if !strings.HasPrefix(res.StreamPrefix, StreamFolder+"/") || !strings.HasSuffix(res.StreamPrefix, "/") {
			t.Errorf("unexpected stream prefix %q", res.StreamPrefix)
		}
		if res.StreamURL != "https://cdn.test/"+res.StreamPrefix+ManifestName {
			t.Errorf("unexpected stream URL %q", res.StreamURL)
		}
		if !slices.Equal(rec.keys, []string{res.SourceKey, res.StreamPrefix}) {
			t.Errorf("expected both uploads recorded in order, got %v", rec.keys)
		}
		if got := len(store.Keys()); got != 4 {
			t.Errorf("expected source, manifest and 2 segments stored, got %d: %v", got, store.Keys())
		}
		tu.AssertNotExists(t, tr.workspace)
	})

	t.Run("transcode failure", func(t *testing.T) {
		store := storage.NewMemoryStore("")
		tr := &fakeTranscoder{err: errors.New("codec not supported")}
		rec := &recorder{}
		p := NewPipeline(store, tr, fakeProber{}, t.TempDir(), nil)

		_, err := p.Process(context.Background(), src, rec)
		if !errors.Is(err, shared.ErrTranscode) || !errors.Is(err, shared.ErrMediaPipeline) {
			t.Fatalf("expected ErrTranscode, got %v", err)
		}
		if len(rec.keys) != 1 || !strings.HasPrefix(rec.keys[0], SourceFolder) {
			t.Errorf("expected only the source key recorded, got %v", rec.keys)
		}
		tu.AssertNotExists(t, tr.workspace)
	})

	t.Run("source upload failure records nothing", func(t *testing.T) {
		store := storage.NewMemoryStore("")
		store.FailOn = func(string) error { return errors.New("bucket unavailable") }
		rec := &recorder{}
		p := NewPipeline(store, &fakeTranscoder{}, fakeProber{}, t.TempDir(), nil)

		_, err := p.Process(context.Background(), src, rec)
		if !errors.Is(err, shared.ErrUpload) {
			t.Fatalf("expected ErrUpload, got %v", err)
		}
		if len(rec.keys) != 0 {
			t.Errorf("expected no recorded keys, got %v", rec.keys)
		}
	})

	t.Run("partial stream upload records prefix", func(t *testing.T) {
		store := storage.NewMemoryStore("")
		store.FailOn = func(key string) error {
			if strings.HasSuffix(key, "segment_001.ts") {
				return errors.New("connection reset")
			}
			return nil
		}
		rec := &recorder{}
		p := NewPipeline(store, &fakeTranscoder{segments: 2}, fakeProber{}, t.TempDir(), nil)

		_, err := p.Process(context.Background(), src, rec)
		if !errors.Is(err, shared.ErrUpload) {
			t.Fatalf("expected ErrUpload, got %v", err)
		}
		if len(rec.keys) != 2 || !strings.HasPrefix(rec.keys[1], StreamFolder) {
			t.Errorf("expected stream prefix recorded after failure, got %v", rec.keys)
		}
	})

	t.Run("probe failure", func(t *testing.T) {
		store := storage.NewMemoryStore("")
		p := NewPipeline(store, &fakeTranscoder{}, fakeProber{err: errors.New("no duration")}, t.TempDir(), nil)

		_, err := p.Process(context.Background(), src, nil)
		if !errors.Is(err, shared.ErrTranscode) {
			t.Fatalf("expected ErrTranscode, got %v", err)
		}
	})
}
