package tasks

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracklift/internal/models"
	"github.com/desertthunder/tracklift/internal/services"
	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/desertthunder/tracklift/internal/storage"
)

//go:embed assets/default_artist.png
var defaultArtistImage []byte

// ArtistImageFolder is the storage folder for artist images.
const ArtistImageFolder = "artists"

// ArtistResolver finds artists by exact name or creates them, at most once per name.
//
// Lookup-or-create is serialized by a mutex. A duplicate from another process is caught by the
// unique-name constraint; the resolver then discards its image and returns the stored artist.
type ArtistResolver struct {
	mu       sync.Mutex
	artists  ArtistStore
	metadata services.MetadataProvider
	store    storage.Store
	timeout  time.Duration
	logger   *log.Logger
}

// NewArtistResolver creates an ArtistResolver. metadata may be nil, in which case new artists get the default image.
func NewArtistResolver(artists ArtistStore, metadata services.MetadataProvider, store storage.Store, timeout time.Duration, logger *log.Logger) *ArtistResolver {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &ArtistResolver{artists: artists, metadata: metadata, store: store, timeout: timeout, logger: logger}
}

// Resolve returns the artist named by desc, creating it when absent. New artist ids and image keys go into ledger.
func (r *ArtistResolver) Resolve(ctx context.Context, desc services.ArtistDescriptor, ledger *Ledger) (*models.Artist, error) {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: artist name is required", shared.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.artists.GetByName(name)
	if err == nil {
		r.logger.Debug("artist exists", "name", name, "id", existing.ID())
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up artist %q: %w", name, err)
	}

	artist := models.NewArtist(0, name, desc.ExternalID)

	image, err := r.image(ctx, desc)
	if err != nil {
		return nil, err
	}

	obj, err := r.store.UploadBytes(ctx, image.data, ArtistImageFolder, shared.GenerateID()+image.ext(), image.contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image for artist %q: %w", name, err)
	}
	ledger.AddKey(obj.Key)
	artist.ImageURL = obj.URL
	artist.ImageKey = obj.Key

	err = r.artists.Create(artist)
	switch {
	case err == nil:
		ledger.AddArtist(artist.ID())
		r.logger.Info("created artist", "name", name, "id", artist.ID())
		return artist, nil
	case errors.Is(err, shared.ErrDuplicate):
		return r.adopt(ctx, name, obj.Key)
	default:
		return nil, fmt.Errorf("failed to create artist %q: %w", name, err)
	}
}

// adopt returns the artist another writer created first and removes the image uploaded for the lost race.
func (r *ArtistResolver) adopt(ctx context.Context, name, imageKey string) (*models.Artist, error) {
	existing, err := r.artists.GetByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artist %q after conflict: %w", name, err)
	}
	if err := r.store.Delete(ctx, imageKey); err != nil {
		r.logger.Warn("failed to delete unused artist image", "key", imageKey, "error", err)
	}
	r.logger.Info("artist created concurrently, reusing", "name", name, "id", existing.ID())
	return existing, nil
}

type artistImage struct {
	data        []byte
	contentType string
}

func (i artistImage) ext() string {
	switch i.contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// image fetches the provider's artist image. Provider detail errors fail the step; a missing or
// undownloadable image falls back to the embedded default.
func (r *ArtistResolver) image(ctx context.Context, desc services.ArtistDescriptor) (artistImage, error) {
	fallback := artistImage{data: defaultArtistImage, contentType: "image/png"}
	if r.metadata == nil || desc.ExternalID == "" {
		return fallback, nil
	}

	details, err := withTimeout(ctx, r.timeout, func(ctx context.Context) (*services.ArtistDetails, error) {
		return r.metadata.Artist(ctx, desc.ExternalID)
	})
	if err != nil {
		return artistImage{}, fmt.Errorf("failed to fetch artist %q: %w", desc.Name, err)
	}
	if details == nil || details.ImageURL == "" {
		return fallback, nil
	}

	data, err := withTimeout(ctx, r.timeout, func(ctx context.Context) ([]byte, error) {
		return r.metadata.FetchImage(ctx, details.ImageURL)
	})
	if err != nil || len(data) == 0 {
		r.logger.Warn("using default artist image", "name", desc.Name, "url", details.ImageURL, "error", err)
		return fallback, nil
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = storage.ContentType(path.Base(details.ImageURL))
	}
	return artistImage{data: data, contentType: contentType}, nil
}

// withTimeout bounds one provider call. A deadline hit is reported as [shared.ErrTimeout].
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	v, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, shared.ErrTimeout) {
		err = fmt.Errorf("%w after %s: %w", shared.ErrTimeout, timeout, err)
	}
	return v, err
}
