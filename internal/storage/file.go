package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/tracklift/internal/shared"
)

// FileStore keeps objects in a local directory. It backs development setups and tests.
type FileStore struct {
	root      string
	publicURL string
}

// NewFileStore creates root if needed. Without publicURL, URLs are file:// paths.
func NewFileStore(root, publicURL string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage root is required", shared.ErrInvalidConfig)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &FileStore{root: abs, publicURL: publicURL}, nil
}

// Root returns the absolute storage directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Upload(ctx context.Context, localPath, folder, filename string) (Object, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}
	defer src.Close()

	key := ObjectKey(folder, filename, filepath.Ext(localPath))
	return s.write(ctx, key, src)
}

func (s *FileStore) UploadBytes(ctx context.Context, data []byte, folder, filename, _ string) (Object, error) {
	key := ObjectKey(folder, filename, "")
	return s.write(ctx, key, bytes.NewReader(data))
}

func (s *FileStore) UploadDir(ctx context.Context, dir, prefix string) ([]Object, error) {
	var uploaded []Object

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		key, err := relativeKey(prefix, dir, p)
		if err != nil {
			return err
		}

		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()

		obj, err := s.write(ctx, key, src)
		if err != nil {
			return err
		}
		uploaded = append(uploaded, obj)
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("%w: %s: %v", shared.ErrUpload, dir, err)
	}

	return uploaded, nil
}

func (s *FileStore) Delete(ctx context.Context, keyOrPrefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.path(strings.TrimSuffix(keyOrPrefix, "/"))
	if err != nil {
		return err
	}

	if IsPrefix(keyOrPrefix) {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", keyOrPrefix, err)
	}
	return nil
}

func (s *FileStore) URL(key string) string {
	if s.publicURL != "" {
		return joinURL(s.publicURL, key)
	}
	return "file://" + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(key)))
}

func (s *FileStore) write(ctx context.Context, key string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}

	target, err := s.path(key)
	if err != nil {
		return Object{}, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}

	dst, err := os.Create(target)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}

	n, err := io.Copy(dst, r)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Object{}, fmt.Errorf("%w: %s: %v", shared.ErrUpload, key, err)
	}

	return Object{Key: key, URL: s.URL(key), Size: n}, nil
}

// path maps a key into the root, refusing keys that climb out of it.
func (s *FileStore) path(key string) (string, error) {
	target := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: invalid object key %q", shared.ErrValidation, key)
	}
	return target, nil
}
