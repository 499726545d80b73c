// package storage implements the remote object store used for artist images, source audio and HLS assets.
//
// Keys are slash separated. A key ending in "/" names a prefix: [Store.Delete] removes every object under it.
package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/google/uuid"
)

// Object describes an uploaded object.
type Object struct {
	Key  string
	URL  string
	Size int64
}

// Store uploads and deletes objects.
type Store interface {
	// Upload copies a local file to folder/filename. An empty filename gets a unique name with the file's extension.
	Upload(ctx context.Context, localPath, folder, filename string) (Object, error)
	// UploadBytes writes data to folder/filename. An empty filename gets a unique name.
	UploadBytes(ctx context.Context, data []byte, folder, filename, contentType string) (Object, error)
	// UploadDir uploads every regular file under dir beneath prefix, keeping relative paths.
	// Objects uploaded before a failure are returned alongside the error.
	UploadDir(ctx context.Context, dir, prefix string) ([]Object, error)
	// Delete removes a key, or every key under a prefix ending in "/". Missing keys are not an error.
	Delete(ctx context.Context, keyOrPrefix string) error
	// URL returns the public URL for key.
	URL(key string) string
}

// New builds the [Store] selected by cfg.Backend.
func New(ctx context.Context, cfg shared.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "filesystem", "file":
		return NewFileStore(cfg.Root, cfg.PublicURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	case "memory":
		return NewMemoryStore(cfg.PublicURL), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", shared.ErrInvalidConfig, cfg.Backend)
	}
}

// ObjectKey joins folder and filename into a key. An empty filename is replaced by a
// random name carrying ext.
func ObjectKey(folder, filename, ext string) string {
	if filename == "" {
		filename = uuid.NewString() + ext
	}
	return strings.TrimPrefix(path.Join(folder, filename), "/")
}

// ContentType guesses the MIME type of a key from its extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".lrc":
		return "text/plain; charset=utf-8"
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	}

	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// IsPrefix reports whether key names a prefix.
func IsPrefix(key string) bool {
	return strings.HasSuffix(key, "/")
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func relativeKey(prefix, root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}
	return path.Join(prefix, filepath.ToSlash(rel)), nil
}
