package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/tracklift/internal/shared"
)

// MemoryStore keeps objects in memory. It serves dry runs and tests; FailOn lets tests inject upload failures.
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	publicURL string

	// FailOn, when set, is consulted before every object write; a non-nil error aborts the write.
	FailOn func(key string) error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(publicURL string) *MemoryStore {
	if publicURL == "" {
		publicURL = "memory://objects"
	}
	return &MemoryStore{objects: make(map[string][]byte), publicURL: publicURL}
}

func (s *MemoryStore) Upload(ctx context.Context, localPath, folder, filename string) (Object, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}
	return s.put(ctx, ObjectKey(folder, filename, filepath.Ext(localPath)), data)
}

func (s *MemoryStore) UploadBytes(ctx context.Context, data []byte, folder, filename, _ string) (Object, error) {
	return s.put(ctx, ObjectKey(folder, filename, ""), data)
}

func (s *MemoryStore) UploadDir(ctx context.Context, dir, prefix string) ([]Object, error) {
	var uploaded []Object

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		key, err := relativeKey(prefix, dir, p)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		obj, err := s.put(ctx, key, data)
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

func (s *MemoryStore) Delete(_ context.Context, keyOrPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted = append(s.deleted, keyOrPrefix)
	if !IsPrefix(keyOrPrefix) {
		delete(s.objects, keyOrPrefix)
		return nil
	}

	for key := range s.objects {
		if strings.HasPrefix(key, keyOrPrefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return joinURL(s.publicURL, key)
}

// Keys returns every stored key in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Get returns the object stored at key.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	return data, ok
}

// Deleted returns every key or prefix passed to Delete, in call order.
func (s *MemoryStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deleted)
}

func (s *MemoryStore) put(ctx context.Context, key string, data []byte) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}
	if s.FailOn != nil {
		if err := s.FailOn(key); err != nil {
			return Object{}, fmt.Errorf("%w: %s: %v", shared.ErrUpload, key, err)
		}
	}

	s.mu.Lock()
	s.objects[key] = slices.Clone(data)
	s.mu.Unlock()

	return Object{Key: key, URL: s.URL(key), Size: int64(len(data))}, nil
}
