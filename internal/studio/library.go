package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"dealer-studio-backend/internal/models"
)

var ErrUnknownStudio = errors.New("studio has no reference plate mapping")

// Loader fetches raw plate bytes by object name.
type Loader interface {
	Load(ctx context.Context, object string) ([]byte, error)
}

// Cache is an optional shared cache in front of the loader.
type Cache interface {
	Get(ctx context.Context, studioID string) (models.Image, bool, error)
	Set(ctx context.Context, studioID string, img models.Image) error
}

// DirLoader reads plates from a local directory.
type DirLoader struct {
	Root string
}

func (d DirLoader) Load(_ context.Context, object string) ([]byte, error) {
	clean := filepath.Clean("/" + object)
	return os.ReadFile(filepath.Join(d.Root, clean))
}

type Options struct {
	Cache  Cache
	Logger *slog.Logger
}

// Library resolves studio ids to plate images. Plates are memoized once
// loaded, so every job of a batch gets the same bytes.
type Library struct {
	catalog *Catalog
	loader  Loader
	cache   Cache
	logger  *slog.Logger

	mu     sync.RWMutex
	plates map[string]models.Image
}

func NewLibrary(catalog *Catalog, loader Loader, opts Options) *Library {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Library{
		catalog: catalog,
		loader:  loader,
		cache:   opts.Cache,
		logger:  logger,
		plates:  make(map[string]models.Image),
	}
}

func (l *Library) Catalog() *Catalog { return l.catalog }

// Plate returns the reference image for studioID.
func (l *Library) Plate(ctx context.Context, studioID string) (models.Image, error) {
	s, ok := l.catalog.Lookup(studioID)
	if !ok {
		return models.Image{}, fmt.Errorf("%w: %q", ErrUnknownStudio, studioID)
	}

	l.mu.RLock()
	img, ok := l.plates[studioID]
	l.mu.RUnlock()
	if ok {
		return img.Clone(), nil
	}

	if l.cache != nil {
		cached, hit, err := l.cache.Get(ctx, studioID)
		if err != nil {
			l.logger.Warn("plate cache read failed", "studio_id", studioID, "error", err)
		} else if hit && !cached.Empty() {
			l.remember(studioID, cached)
			return cached.Clone(), nil
		}
	}

	data, err := l.loader.Load(ctx, s.Object)
	if err != nil {
		return models.Image{}, fmt.Errorf("load plate for studio %s: %w", studioID, err)
	}
	if len(data) == 0 {
		return models.Image{}, fmt.Errorf("load plate for studio %s: empty file", studioID)
	}
	img = models.NewImage(data)

	if l.cache != nil {
		if err := l.cache.Set(ctx, studioID, img); err != nil {
			l.logger.Warn("plate cache write failed", "studio_id", studioID, "error", err)
		}
	}
	l.remember(studioID, img)
	return img.Clone(), nil
}

func (l *Library) remember(studioID string, img models.Image) {
	l.mu.Lock()
	l.plates[studioID] = img.Clone()
	l.mu.Unlock()
}

// Preload warms every plate in the catalog with at most limit loads in
// flight. Missing plates are logged and reported together; the others stay
// loaded.
func (l *Library) Preload(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	var errs []error
	for _, s := range l.catalog.All() {
		s := s // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			if _, err := l.Plate(gctx, s.ID); err != nil {
				l.logger.Warn("plate preload failed", "studio_id", s.ID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
